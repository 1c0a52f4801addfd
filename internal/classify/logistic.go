// Package classify trains the binary sentiment classifier and scores it.
package classify

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrSingleClass is returned when the training labels contain only one class.
var ErrSingleClass = errors.New("training labels contain a single class")

// FitOptions control regularisation and the optimiser budget.
type FitOptions struct {
	C       float64 // inverse regularisation strength
	MaxIter int
}

// DefaultFitOptions mirrors the usual library defaults for logistic regression.
func DefaultFitOptions() FitOptions {
	return FitOptions{C: 1.0, MaxIter: 100}
}

// Model is a fitted L2-regularised logistic regression.
type Model struct {
	Weights   []float64
	Intercept float64
	// Converged is false when the iteration limit stopped the optimiser
	// before the gradient threshold was reached.
	Converged bool
}

// Fit minimises 0.5*||w||^2 + C*sum(logloss) with an unpenalised intercept
// using L-BFGS. y must contain only 0 and 1, and both classes.
func Fit(X [][]float64, y []int, opts FitOptions) (*Model, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels", len(X), len(y))
	}
	dims := len(X[0])
	if dims == 0 {
		return nil, fmt.Errorf("training rows have no features")
	}
	var pos int
	for i, row := range X {
		if len(row) != dims {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), dims)
		}
		switch y[i] {
		case 0:
		case 1:
			pos++
		default:
			return nil, fmt.Errorf("row %d: label %d is not 0 or 1", i, y[i])
		}
	}
	if pos == 0 || pos == len(y) {
		return nil, ErrSingleClass
	}
	if opts.C <= 0 {
		opts.C = 1.0
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 100
	}

	// Map labels to -1/+1 so the loss is softplus(-s*z).
	signs := make([]float64, len(y))
	for i, v := range y {
		signs[i] = float64(2*v - 1)
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			w, b := theta[:dims], theta[dims]
			loss := 0.5 * floats.Dot(w, w)
			for i, row := range X {
				loss += opts.C * softplus(-signs[i]*(floats.Dot(w, row)+b))
			}
			return loss
		},
		Grad: func(grad, theta []float64) {
			w, b := theta[:dims], theta[dims]
			copy(grad[:dims], w)
			grad[dims] = 0
			for i, row := range X {
				// d/dz softplus(-s*z) = -s*sigmoid(-s*z)
				g := -opts.C * signs[i] * sigmoid(-signs[i]*(floats.Dot(w, row)+b))
				floats.AddScaled(grad[:dims], g, row)
				grad[dims] += g
			}
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-4,
		MajorIterations:   opts.MaxIter,
	}
	result, err := optimize.Minimize(problem, make([]float64, dims+1), settings, &optimize.LBFGS{})
	if result == nil || len(result.X) != dims+1 {
		if err == nil {
			err = fmt.Errorf("optimiser returned no solution")
		}
		return nil, fmt.Errorf("fitting logistic regression: %w", err)
	}
	// A stalled line search near the optimum still leaves a usable iterate.
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("fitting logistic regression: non-finite weights (status %v)", result.Status)
		}
	}

	return &Model{
		Weights:   append([]float64(nil), result.X[:dims]...),
		Intercept: result.X[dims],
		Converged: result.Status != optimize.IterationLimit && err == nil,
	}, nil
}

// PredictProba returns P(label = 1 | x).
func (m *Model) PredictProba(x []float64) float64 {
	return sigmoid(floats.Dot(m.Weights, x) + m.Intercept)
}

// PredictProbaBatch scores every row of X.
func (m *Model) PredictProbaBatch(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.PredictProba(row)
	}
	return out
}

// Uncertainty is one minus the larger class posterior: 0 for a confident
// prediction, 0.5 for a coin flip.
func Uncertainty(p float64) float64 {
	return 1 - math.Max(p, 1-p)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1 + exp(u)) without overflow.
func softplus(u float64) float64 {
	return math.Max(u, 0) + math.Log1p(math.Exp(-math.Abs(u)))
}
