// Package experiment compares sampling strategies by retraining the
// classifier on a growing sample and scoring it on the held-out test set.
package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/classify"
	"github.com/TobiSchelling/activelabel/internal/database"
	"github.com/TobiSchelling/activelabel/internal/metrics"
	"github.com/TobiSchelling/activelabel/internal/sampling"
)

// Data holds embedded train and test rows.
type Data struct {
	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int
}

// Options configure a comparison run.
type Options struct {
	BatchSize  int
	Rounds     int
	Seed       int64
	Strategies []string
	Fit        classify.FitOptions
	Logger     *zap.Logger
}

// Record is the score of one strategy after one round.
type Record struct {
	Strategy  string
	Round     int
	TrainSize int
	ROCAUC    float64
}

// Result collects every round of every strategy, in execution order.
type Result struct {
	Strategies []string
	Records    []Record
}

// Row is one line of the pivoted table: the AUC of each strategy at a
// training-set size. A strategy missing at that size has no entry.
type Row struct {
	TrainSize int
	AUC       map[string]float64
}

// Table pivots the records to one row per training-set size.
func (r *Result) Table() []Row {
	bySize := map[int]*Row{}
	var sizes []int
	for _, rec := range r.Records {
		row, ok := bySize[rec.TrainSize]
		if !ok {
			row = &Row{TrainSize: rec.TrainSize, AUC: map[string]float64{}}
			bySize[rec.TrainSize] = row
			sizes = append(sizes, rec.TrainSize)
		}
		row.AUC[rec.Strategy] = rec.ROCAUC
	}
	sort.Ints(sizes)

	out := make([]Row, len(sizes))
	for i, size := range sizes {
		out[i] = *bySize[size]
	}
	return out
}

// InitialSample returns the seeded starting rows shared by every strategy.
func InitialSample(n, batch int, seed int64) []int {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	if batch > n {
		batch = n
	}
	return perm[:batch]
}

// Run executes every strategy from the same initial sample.
func Run(ctx context.Context, data Data, opts Options) (*Result, error) {
	if err := validate(data, opts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &Result{}
	for _, name := range opts.Strategies {
		strategy, err := sampling.ParseStrategy(name, strategySeed(opts.Seed))
		if err != nil {
			return nil, err
		}
		result.Strategies = append(result.Strategies, strategy.Name())

		records, err := runStrategy(ctx, data, opts, strategy, logger)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}
		result.Records = append(result.Records, records...)
	}
	return result, nil
}

func runStrategy(ctx context.Context, data Data, opts Options, strategy sampling.Strategy, logger *zap.Logger) ([]Record, error) {
	state := sampling.NewState(len(data.TrainX))
	if err := state.Add(InitialSample(len(data.TrainX), opts.BatchSize, opts.Seed)...); err != nil {
		return nil, err
	}

	var records []Record
	for round := 1; round <= opts.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model, err := fitSelected(data, state, opts.Fit)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		auc, err := classify.ROCAUC(model.PredictProbaBatch(data.TestX), data.TestY)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		rec := Record{Strategy: strategy.Name(), Round: round, TrainSize: state.Len(), ROCAUC: auc}
		records = append(records, rec)
		metrics.ExperimentRoundsTotal.WithLabelValues(rec.Strategy).Inc()
		metrics.ExperimentLastAUC.WithLabelValues(rec.Strategy).Set(auc)
		logger.Info("Round scored",
			zap.String("strategy", rec.Strategy),
			zap.Int("round", round),
			zap.Int("train_size", rec.TrainSize),
			zap.Float64("roc_auc", auc),
			zap.Bool("converged", model.Converged))

		if round == opts.Rounds {
			break
		}
		remaining := state.Size() - state.Len()
		if remaining == 0 {
			break
		}

		scorer := func(rows []int) []float64 {
			out := make([]float64, len(rows))
			for i, r := range rows {
				out[i] = model.PredictProba(data.TrainX[r])
			}
			return out
		}
		before := state.Len()
		if err := state.Add(strategy.Next(state, scorer, opts.BatchSize)...); err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		if want := before + min(opts.BatchSize, remaining); state.Len() != want {
			return nil, fmt.Errorf("round %d: sample grew to %d rows, want %d", round, state.Len(), want)
		}
	}
	return records, nil
}

func fitSelected(data Data, state *sampling.State, opts classify.FitOptions) (*classify.Model, error) {
	rows := state.Selected()
	X := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, r := range rows {
		X[i] = data.TrainX[r]
		y[i] = data.TrainY[r]
	}
	return classify.Fit(X, y, opts)
}

func validate(data Data, opts Options) error {
	if len(data.TrainX) != len(data.TrainY) {
		return fmt.Errorf("%d train rows but %d labels", len(data.TrainX), len(data.TrainY))
	}
	if len(data.TestX) != len(data.TestY) {
		return fmt.Errorf("%d test rows but %d labels", len(data.TestX), len(data.TestY))
	}
	if len(data.TrainX) == 0 || len(data.TestX) == 0 {
		return fmt.Errorf("need both train and test rows, got %d and %d", len(data.TrainX), len(data.TestX))
	}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", opts.Rounds)
	}
	if len(opts.Strategies) == 0 {
		return fmt.Errorf("no sampling strategies configured")
	}
	return nil
}

// strategySeed derives the seed for strategies that draw at random, so
// their stream is independent of the one InitialSample uses.
func strategySeed(seed int64) int64 {
	return seed + 1
}

// FromRecords rebuilds a Result from stored records. Strategies keep the
// order in which they first appear.
func FromRecords(records []Record) *Result {
	res := &Result{Records: records}
	seen := map[string]bool{}
	for _, r := range records {
		if !seen[r.Strategy] {
			seen[r.Strategy] = true
			res.Strategies = append(res.Strategies, r.Strategy)
		}
	}
	return res
}

// FromBatchResults rebuilds a Result from rows stored in the database.
func FromBatchResults(batches []database.BatchResult) *Result {
	records := make([]Record, len(batches))
	for i, b := range batches {
		records[i] = Record{Strategy: b.Strategy, Round: b.Round, TrainSize: b.TrainSize, ROCAUC: b.ROCAUC}
	}
	return FromRecords(records)
}
