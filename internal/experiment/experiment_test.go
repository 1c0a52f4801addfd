package experiment

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/activelabel/internal/classify"
	"github.com/TobiSchelling/activelabel/internal/database"
	"github.com/TobiSchelling/activelabel/internal/sampling"
)

func synthetic(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		y[i] = i % 2
		center := float64(2*y[i] - 1)
		X[i] = []float64{center + rng.NormFloat64(), rng.NormFloat64()}
	}
	return X, y
}

func testData() Data {
	trainX, trainY := synthetic(200, 1)
	testX, testY := synthetic(100, 2)
	return Data{TrainX: trainX, TrainY: trainY, TestX: testX, TestY: testY}
}

func TestRunRecordsEveryRound(t *testing.T) {
	res, err := Run(context.Background(), testData(), Options{
		BatchSize:  20,
		Rounds:     4,
		Seed:       42,
		Strategies: []string{"random", "uncertainty"},
		Fit:        classify.DefaultFitOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"random", "uncertainty"}, res.Strategies)
	require.Len(t, res.Records, 8)

	for i, rec := range res.Records {
		assert.Equal(t, i%4+1, rec.Round)
		assert.Equal(t, 20*(i%4+1), rec.TrainSize)
		assert.GreaterOrEqual(t, rec.ROCAUC, 0.0)
		assert.LessOrEqual(t, rec.ROCAUC, 1.0)
	}
	// Well separated classes: even the first round should beat chance.
	assert.Greater(t, res.Records[0].ROCAUC, 0.7)

	table := res.Table()
	require.Len(t, table, 4)
	for i, row := range table {
		assert.Equal(t, 20*(i+1), row.TrainSize)
		assert.Len(t, row.AUC, 2)
	}
}

func TestRunStrategiesShareInitialSample(t *testing.T) {
	res, err := Run(context.Background(), testData(), Options{
		BatchSize:  30,
		Rounds:     1,
		Seed:       9,
		Strategies: []string{"random", "uncertainty"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.InDelta(t, res.Records[0].ROCAUC, res.Records[1].ROCAUC, 1e-12)
}

func TestRunStopsWhenComplementExhausted(t *testing.T) {
	data := testData()
	data.TrainX, data.TrainY = data.TrainX[:30], data.TrainY[:30]

	res, err := Run(context.Background(), data, Options{
		BatchSize:  20,
		Rounds:     5,
		Seed:       3,
		Strategies: []string{"uncertainty"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 20, res.Records[0].TrainSize)
	assert.Equal(t, 30, res.Records[1].TrainSize)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testData(), Options{BatchSize: 10, Rounds: 2, Strategies: []string{"random"}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunRejectsBadOptions(t *testing.T) {
	data := testData()
	tests := []struct {
		name string
		data Data
		opts Options
	}{
		{"zero batch", data, Options{BatchSize: 0, Rounds: 1, Strategies: []string{"random"}}},
		{"zero rounds", data, Options{BatchSize: 5, Rounds: 0, Strategies: []string{"random"}}},
		{"no strategies", data, Options{BatchSize: 5, Rounds: 1}},
		{"unknown strategy", data, Options{BatchSize: 5, Rounds: 1, Strategies: []string{"margin"}}},
		{"no test rows", Data{TrainX: data.TrainX, TrainY: data.TrainY}, Options{BatchSize: 5, Rounds: 1, Strategies: []string{"random"}}},
		{"label mismatch", Data{TrainX: data.TrainX, TrainY: data.TrainY[:3], TestX: data.TestX, TestY: data.TestY}, Options{BatchSize: 5, Rounds: 1, Strategies: []string{"random"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.data, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestInitialSampleIsSeeded(t *testing.T) {
	a := InitialSample(100, 10, 5)
	assert.Equal(t, a, InitialSample(100, 10, 5))
	assert.Len(t, InitialSample(4, 10, 5), 4)
}

func TestRandomStrategyUsesDerivedSeed(t *testing.T) {
	const seed = 5
	require.NotEqual(t, int64(seed), strategySeed(seed))

	next := func(s int64) []int {
		state := sampling.NewState(100)
		require.NoError(t, state.Add(InitialSample(100, 10, seed)...))
		strategy, err := sampling.ParseStrategy("random", s)
		require.NoError(t, err)
		return strategy.Next(state, nil, 10)
	}
	assert.Equal(t, next(strategySeed(seed)), next(strategySeed(seed)))
	assert.NotEqual(t, next(seed), next(strategySeed(seed)))
}

func TestTablePivotsBySize(t *testing.T) {
	res := &Result{
		Strategies: []string{"random", "uncertainty"},
		Records: []Record{
			{Strategy: "random", Round: 1, TrainSize: 10, ROCAUC: 0.6},
			{Strategy: "random", Round: 2, TrainSize: 20, ROCAUC: 0.7},
			{Strategy: "uncertainty", Round: 1, TrainSize: 10, ROCAUC: 0.6},
			{Strategy: "uncertainty", Round: 2, TrainSize: 20, ROCAUC: 0.8},
		},
	}
	table := res.Table()
	require.Len(t, table, 2)
	assert.Equal(t, map[string]float64{"random": 0.7, "uncertainty": 0.8}, table[1].AUC)
}

func TestFromRecords(t *testing.T) {
	res := FromRecords([]Record{
		{Strategy: "uncertainty", Round: 1, TrainSize: 10, ROCAUC: 0.6},
		{Strategy: "random", Round: 1, TrainSize: 10, ROCAUC: 0.5},
		{Strategy: "uncertainty", Round: 2, TrainSize: 20, ROCAUC: 0.7},
	})
	assert.Equal(t, []string{"uncertainty", "random"}, res.Strategies)
	assert.Len(t, res.Table(), 2)
}

func TestFromBatchResults(t *testing.T) {
	res := FromBatchResults([]database.BatchResult{
		{RunID: "r1", Strategy: "random", Round: 1, TrainSize: 10, ROCAUC: 0.55},
		{RunID: "r1", Strategy: "uncertainty", Round: 1, TrainSize: 10, ROCAUC: 0.55},
		{RunID: "r1", Strategy: "uncertainty", Round: 2, TrainSize: 20, ROCAUC: 0.75},
	})
	assert.Equal(t, []string{"random", "uncertainty"}, res.Strategies)
	require.Len(t, res.Records, 3)
	assert.Equal(t, Record{Strategy: "uncertainty", Round: 2, TrainSize: 20, ROCAUC: 0.75}, res.Records[2])

	assert.Empty(t, FromBatchResults(nil).Strategies)
}
