package classify

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitSeparatesClasses(t *testing.T) {
	X := [][]float64{{-2, 0.1}, {-1, -0.2}, {-1.5, 0.3}, {1, 0.2}, {2, -0.1}, {1.5, 0}}
	y := []int{0, 0, 0, 1, 1, 1}

	m, err := Fit(X, y, DefaultFitOptions())
	require.NoError(t, err)
	require.Len(t, m.Weights, 2)

	assert.Greater(t, m.Weights[0], 0.0)
	for i, row := range X {
		p := m.PredictProba(row)
		if y[i] == 1 {
			assert.Greater(t, p, 0.5, "row %d", i)
		} else {
			assert.Less(t, p, 0.5, "row %d", i)
		}
	}
}

func TestFitSymmetricDataHasNoIntercept(t *testing.T) {
	X := [][]float64{{-1}, {-2}, {1}, {2}}
	y := []int{0, 0, 1, 1}

	m, err := Fit(X, y, DefaultFitOptions())
	require.NoError(t, err)
	assert.InDelta(t, 0, m.Intercept, 1e-3)
	assert.InDelta(t, 0.5, m.PredictProba([]float64{0}), 1e-3)
}

func TestFitRegularisationShrinksWeights(t *testing.T) {
	X := [][]float64{{-1}, {-2}, {1}, {2}}
	y := []int{0, 0, 1, 1}

	weak, err := Fit(X, y, FitOptions{C: 10, MaxIter: 200})
	require.NoError(t, err)
	strong, err := Fit(X, y, FitOptions{C: 0.01, MaxIter: 200})
	require.NoError(t, err)

	assert.Greater(t, math.Abs(weak.Weights[0]), math.Abs(strong.Weights[0]))
}

func TestFitRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []int
	}{
		{"empty", nil, nil},
		{"length mismatch", [][]float64{{1}, {2}}, []int{0}},
		{"ragged", [][]float64{{1}, {2, 3}}, []int{0, 1}},
		{"bad label", [][]float64{{1}, {2}}, []int{0, 4}},
		{"no features", [][]float64{{}, {}}, []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.X, tt.y, DefaultFitOptions())
			assert.Error(t, err)
		})
	}
}

func TestFitSingleClass(t *testing.T) {
	_, err := Fit([][]float64{{1}, {2}}, []int{1, 1}, DefaultFitOptions())
	assert.True(t, errors.Is(err, ErrSingleClass))
}

func TestPredictProbaBatch(t *testing.T) {
	m := &Model{Weights: []float64{1}, Intercept: 0}
	got := m.PredictProbaBatch([][]float64{{0}, {100}, {-100}})
	require.Len(t, got, 3)
	assert.InDelta(t, 0.5, got[0], 1e-12)
	assert.InDelta(t, 1, got[1], 1e-12)
	assert.InDelta(t, 0, got[2], 1e-12)
}

func TestUncertainty(t *testing.T) {
	assert.InDelta(t, 0.5, Uncertainty(0.5), 1e-12)
	assert.InDelta(t, 0.1, Uncertainty(0.9), 1e-12)
	assert.InDelta(t, 0.1, Uncertainty(0.1), 1e-12)
	assert.Equal(t, 0.0, Uncertainty(1))
	assert.Equal(t, 0.0, Uncertainty(0))
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		labels []int
		want   float64
	}{
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}, 1},
		{"inverted", []float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}, 0},
		{"partial", []float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1}, 0.75},
		{"all tied", []float64{0.5, 0.5, 0.5, 0.5}, []int{0, 1, 0, 1}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ROCAUC(tt.scores, tt.labels)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestROCAUCDoesNotReorderInput(t *testing.T) {
	scores := []float64{0.9, 0.1}
	_, err := ROCAUC(scores, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1}, scores)
}

func TestROCAUCNeedsBothClasses(t *testing.T) {
	_, err := ROCAUC([]float64{0.1, 0.2}, []int{1, 1})
	assert.Error(t, err)
	_, err = ROCAUC([]float64{0.1}, []int{0, 1})
	assert.Error(t, err)
	_, err = ROCAUC([]float64{0.1, 0.2}, []int{0, 2})
	assert.Error(t, err)
}
