// Package pipeline runs the active-learning workflow end to end.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/classify"
	"github.com/TobiSchelling/activelabel/internal/config"
	"github.com/TobiSchelling/activelabel/internal/database"
	"github.com/TobiSchelling/activelabel/internal/dataset"
	"github.com/TobiSchelling/activelabel/internal/embed"
	"github.com/TobiSchelling/activelabel/internal/experiment"
	"github.com/TobiSchelling/activelabel/internal/export"
	"github.com/TobiSchelling/activelabel/internal/labeling"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
	Skipped bool
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID string
	Steps []StepResult
}

// Platform is the part of the annotation platform the pipeline uses.
type Platform interface {
	IsConfigured() bool
	EnsureProject(ctx context.Context, name string) (*labeling.Project, bool, error)
	EnsureDataset(ctx context.Context, name, projectID string) (*labeling.Dataset, bool, error)
	ConnectOntology(ctx context.Context, projectID string, o labeling.Ontology) (string, error)
	CreateDataRows(ctx context.Context, datasetID string, rows []labeling.DataRowInput) (map[string]string, error)
	SetLabelingPriority(ctx context.Context, projectID string, overrides []labeling.PriorityOverride) error
}

// Pipeline orchestrates the six-step workflow.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	platform Platform
	embedder embed.Embedder
	logger   *zap.Logger
}

// New creates a pipeline with the configured platform client and embedder.
func New(cfg *config.Config, db *database.DB, logger *zap.Logger) (*Pipeline, error) {
	embedder, err := embed.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return NewWithDeps(cfg, db, labeling.NewClient(cfg.Labeling, logger), embedder, logger), nil
}

// NewWithDeps creates a pipeline around explicit dependencies.
func NewWithDeps(cfg *config.Config, db *database.DB, platform Platform, embedder embed.Embedder, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, platform: platform, embedder: embedder, logger: logger}
}

// Run executes Load, Upload, Embed, Experiment, Prioritize and Export.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}

	// Step 1: Load
	step := p.Load(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 2: Upload
	r.Steps = append(r.Steps, p.Upload(ctx))

	// Step 3: Embed
	step = p.Embed(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 4: Experiment
	runID, step := p.Experiment(ctx)
	r.RunID = runID
	r.Steps = append(r.Steps, step)

	// Step 5: Prioritize
	r.Steps = append(r.Steps, p.Prioritize(ctx))

	// Step 6: Export
	if runID == "" {
		r.Steps = append(r.Steps, StepResult{Name: "Export", Skipped: true, Summary: "Skipped: no experiment results"})
		return r
	}
	_, step = p.Export(runID)
	r.Steps = append(r.Steps, step)

	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	stats, err := p.db.GetStats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Load",
		Summary: fmt.Sprintf("[dry-run] Would load up to %d tweets from %s (%d already in DB)",
			p.cfg.Dataset.SampleSize, p.cfg.Dataset.Path, stats.TotalTweets),
	})

	needUpload, _ := p.db.GetTweetsNeedingUpload()
	uploadSummary := fmt.Sprintf("[dry-run] %d train tweets need uploading", len(needUpload))
	if !p.platform.IsConfigured() {
		uploadSummary += fmt.Sprintf(" (platform not configured, set %s)", p.cfg.Labeling.APIKeyEnv)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Upload", Summary: uploadSummary})

	needEmbed, _ := p.db.GetTweetsNeedingEmbedding(p.cfg.Embedding.Model)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Embed",
		Summary: fmt.Sprintf("[dry-run] %d tweets need %s embeddings", len(needEmbed), p.cfg.Embedding.Model),
	})

	exp := p.cfg.Experiment
	r.Steps = append(r.Steps, StepResult{
		Name: "Experiment",
		Summary: fmt.Sprintf("[dry-run] Would compare %s over %d rounds of %d rows",
			strings.Join(exp.Strategies, ", "), exp.Rounds, exp.BatchSize),
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Prioritize",
		Summary: fmt.Sprintf("[dry-run] %d uploaded tweets could be prioritized", stats.UploadedTweets),
	})

	r.Steps = append(r.Steps, StepResult{
		Name: "Export",
		Summary: fmt.Sprintf("[dry-run] Would write %s to %s",
			strings.Join(p.cfg.Output.Formats, ", "), p.cfg.GetResultsDir()),
	})

	return r
}

// Load reads the CSV, samples and splits it, and stores new tweets.
func (p *Pipeline) Load(ctx context.Context) StepResult {
	p.logger.Info("Step 1/6: Loading tweets", zap.String("path", p.cfg.Dataset.Path))
	ds := p.cfg.Dataset

	records, err := dataset.LoadFile(ds.Path, dataset.ReadOptions{Encoding: ds.Encoding, SkipUnlabeled: true})
	if err != nil {
		return StepResult{Name: "Load", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return StepResult{Name: "Load", Err: err}
	}

	sample := dataset.Sample(records, ds.SampleSize, ds.Seed)
	train, test, err := dataset.Split(sample, ds.TestFraction, ds.Seed)
	if err != nil {
		return StepResult{Name: "Load", Err: err}
	}

	tweets := make([]database.Tweet, 0, len(sample))
	for _, rec := range train {
		tweets = append(tweets, toTweet(rec, database.SplitTrain))
	}
	for _, rec := range test {
		tweets = append(tweets, toTweet(rec, database.SplitTest))
	}
	inserted, err := p.db.InsertTweets(tweets)
	if err != nil {
		return StepResult{Name: "Load", Err: err}
	}

	neg, pos := dataset.LabelCounts(sample)
	return StepResult{
		Name: "Load",
		Summary: fmt.Sprintf("Read %d rows, kept %d (%d train, %d test; %d negative, %d positive), %d new",
			len(records), len(sample), len(train), len(test), neg, pos, inserted),
	}
}

func toTweet(rec dataset.Record, split database.Split) database.Tweet {
	return database.Tweet{ExternalID: rec.ExternalID, Text: rec.Text, Label: rec.Label, Split: split}
}

// Upload makes sure the project and dataset exist and pushes train tweets
// that have no platform id yet.
func (p *Pipeline) Upload(ctx context.Context) StepResult {
	p.logger.Info("Step 2/6: Uploading tweets to the labeling platform")
	if !p.platform.IsConfigured() {
		return skipped("Upload", p.cfg.Labeling.APIKeyEnv)
	}

	projectID, err := p.ensureProject(ctx)
	if err != nil {
		return StepResult{Name: "Upload", Err: err}
	}
	datasetID, err := p.ensureDataset(ctx, projectID)
	if err != nil {
		return StepResult{Name: "Upload", Err: err}
	}

	pending, err := p.db.GetTweetsNeedingUpload()
	if err != nil {
		return StepResult{Name: "Upload", Err: err}
	}
	if len(pending) == 0 {
		return StepResult{Name: "Upload", Summary: "All train tweets already uploaded"}
	}

	rows := make([]labeling.DataRowInput, len(pending))
	for i, t := range pending {
		rows[i] = labeling.DataRowInput{ExternalID: t.ExternalID, RowData: t.Text}
	}
	ids, uploadErr := p.platform.CreateDataRows(ctx, datasetID, rows)
	// Keep ids of chunks that made it before a failure.
	if err := p.db.SetPlatformIDs(ids); err != nil {
		return StepResult{Name: "Upload", Err: err}
	}
	if uploadErr != nil {
		return StepResult{Name: "Upload", Err: uploadErr, Summary: fmt.Sprintf("Uploaded %d of %d tweets", len(ids), len(rows))}
	}
	return StepResult{
		Name:    "Upload",
		Summary: fmt.Sprintf("Uploaded %d tweets to dataset %s", len(ids), p.cfg.Labeling.DatasetName),
	}
}

// ensureProject resolves the project id from the local cache or the
// platform. The project is cached only after the sentiment ontology is
// attached, so a failed attachment is retried on the next run.
func (p *Pipeline) ensureProject(ctx context.Context) (string, error) {
	name := p.cfg.Labeling.ProjectName
	cached, err := p.db.GetPlatformResource(database.ResourceProject, name)
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.PlatformID, nil
	}

	project, _, err := p.platform.EnsureProject(ctx, name)
	if err != nil {
		return "", fmt.Errorf("ensuring project: %w", err)
	}
	if _, err := p.platform.ConnectOntology(ctx, project.ID, labeling.SentimentOntology(name+" sentiment")); err != nil {
		return "", fmt.Errorf("configuring editor: %w", err)
	}
	if err := p.db.PutPlatformResource(database.ResourceProject, name, project.ID); err != nil {
		return "", err
	}
	return project.ID, nil
}

func (p *Pipeline) ensureDataset(ctx context.Context, projectID string) (string, error) {
	name := p.cfg.Labeling.DatasetName
	cached, err := p.db.GetPlatformResource(database.ResourceDataset, name)
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.PlatformID, nil
	}

	ds, _, err := p.platform.EnsureDataset(ctx, name, projectID)
	if err != nil {
		return "", fmt.Errorf("ensuring dataset: %w", err)
	}
	if err := p.db.PutPlatformResource(database.ResourceDataset, name, ds.ID); err != nil {
		return "", err
	}
	return ds.ID, nil
}

// Embed computes vectors for tweets that have none for the configured model.
func (p *Pipeline) Embed(ctx context.Context) StepResult {
	model := p.cfg.Embedding.Model
	p.logger.Info("Step 3/6: Embedding tweets", zap.String("model", model))

	pending, err := p.db.GetTweetsNeedingEmbedding(model)
	if err != nil {
		return StepResult{Name: "Embed", Err: err}
	}
	if len(pending) == 0 {
		return StepResult{Name: "Embed", Summary: "All tweets already embedded"}
	}

	texts := make([]string, len(pending))
	for i, t := range pending {
		texts[i] = t.Text
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return StepResult{Name: "Embed", Err: err}
	}
	if len(vecs) != len(pending) {
		return StepResult{Name: "Embed", Err: fmt.Errorf("embedder returned %d vectors for %d tweets", len(vecs), len(pending))}
	}

	byID := make(map[int64][]float64, len(pending))
	for i, t := range pending {
		byID[t.ID] = vecs[i]
	}
	if err := p.db.SaveEmbeddings(model, byID); err != nil {
		return StepResult{Name: "Embed", Err: err}
	}
	return StepResult{
		Name:    "Embed",
		Summary: fmt.Sprintf("Embedded %d tweets (%d dimensions)", len(vecs), len(vecs[0])),
	}
}

// split is one split's tweets with their vectors, in tweet id order.
type split struct {
	tweets []database.Tweet
	X      [][]float64
	y      []int
}

func (p *Pipeline) loadSplit(s database.Split) (*split, error) {
	tweets, err := p.db.GetTweets(s)
	if err != nil {
		return nil, err
	}
	vecs, err := p.db.GetEmbeddings(p.cfg.Embedding.Model, s)
	if err != nil {
		return nil, err
	}

	out := &split{tweets: tweets}
	var missing int
	for _, t := range tweets {
		vec, ok := vecs[t.ID]
		if !ok {
			missing++
			continue
		}
		out.X = append(out.X, vec)
		out.y = append(out.y, t.Label)
	}
	if missing > 0 {
		return nil, fmt.Errorf("%d %s tweets have no %s embedding; run embed first", missing, s, p.cfg.Embedding.Model)
	}
	if len(tweets) == 0 {
		return nil, fmt.Errorf("no %s tweets; run load first", s)
	}
	return out, nil
}

func (p *Pipeline) fitOptions() classify.FitOptions {
	return classify.FitOptions{C: p.cfg.Experiment.C, MaxIter: p.cfg.Experiment.MaxIter}
}

// Experiment compares the configured sampling strategies and stores the
// per-round scores under a new run id.
func (p *Pipeline) Experiment(ctx context.Context) (string, StepResult) {
	p.logger.Info("Step 4/6: Comparing sampling strategies")
	exp := p.cfg.Experiment

	train, err := p.loadSplit(database.SplitTrain)
	if err != nil {
		return "", StepResult{Name: "Experiment", Err: err}
	}
	test, err := p.loadSplit(database.SplitTest)
	if err != nil {
		return "", StepResult{Name: "Experiment", Err: err}
	}

	res, err := experiment.Run(ctx, experiment.Data{
		TrainX: train.X, TrainY: train.y,
		TestX: test.X, TestY: test.y,
	}, experiment.Options{
		BatchSize:  exp.BatchSize,
		Rounds:     exp.Rounds,
		Seed:       exp.Seed,
		Strategies: exp.Strategies,
		Fit:        p.fitOptions(),
		Logger:     p.logger,
	})
	if err != nil {
		return "", StepResult{Name: "Experiment", Err: err}
	}

	runID := uuid.NewString()
	if err := p.db.InsertRun(database.ExperimentRun{
		ID:             runID,
		BatchSize:      exp.BatchSize,
		Rounds:         exp.Rounds,
		Seed:           exp.Seed,
		EmbeddingModel: p.cfg.Embedding.Model,
		TrainSize:      len(train.X),
		TestSize:       len(test.X),
	}); err != nil {
		return "", StepResult{Name: "Experiment", Err: err}
	}

	batches := make([]database.BatchResult, len(res.Records))
	for i, rec := range res.Records {
		batches[i] = database.BatchResult{
			RunID:     runID,
			Strategy:  rec.Strategy,
			Round:     rec.Round,
			TrainSize: rec.TrainSize,
			ROCAUC:    rec.ROCAUC,
		}
	}
	if err := p.db.InsertBatchResults(batches); err != nil {
		return "", StepResult{Name: "Experiment", Err: err}
	}

	return runID, StepResult{Name: "Experiment", Summary: summarizeFinal(runID, res)}
}

func summarizeFinal(runID string, res *experiment.Result) string {
	table := res.Table()
	if len(table) == 0 {
		return fmt.Sprintf("Run %s produced no rounds", runID)
	}
	last := table[len(table)-1]
	parts := make([]string, 0, len(res.Strategies))
	for _, s := range res.Strategies {
		if auc, ok := last.AUC[s]; ok {
			parts = append(parts, fmt.Sprintf("%s %.4f", s, auc))
		}
	}
	return fmt.Sprintf("Run %s: %d rounds, ROC-AUC at %d rows: %s",
		runID, len(table), last.TrainSize, strings.Join(parts, ", "))
}

// Prioritize trains on the seed sample, scores every uploaded train tweet
// outside it, and pushes queue priorities with the most uncertain first.
func (p *Pipeline) Prioritize(ctx context.Context) StepResult {
	p.logger.Info("Step 5/6: Prioritizing the labeling queue")
	if !p.platform.IsConfigured() {
		return skipped("Prioritize", p.cfg.Labeling.APIKeyEnv)
	}

	train, err := p.loadSplit(database.SplitTrain)
	if err != nil {
		return StepResult{Name: "Prioritize", Err: err}
	}
	exp := p.cfg.Experiment
	seed := experiment.InitialSample(len(train.X), exp.BatchSize, exp.Seed)
	inSeed := make(map[int]bool, len(seed))
	X := make([][]float64, len(seed))
	y := make([]int, len(seed))
	for i, idx := range seed {
		inSeed[idx] = true
		X[i], y[i] = train.X[idx], train.y[idx]
	}
	model, err := classify.Fit(X, y, p.fitOptions())
	if err != nil {
		return StepResult{Name: "Prioritize", Err: err}
	}

	type candidate struct {
		tweet       database.Tweet
		uncertainty float64
	}
	var candidates []candidate
	scores := make(map[int64]float64)
	for i, t := range train.tweets {
		if inSeed[i] || t.PlatformID == nil {
			continue
		}
		u := classify.Uncertainty(model.PredictProba(train.X[i]))
		candidates = append(candidates, candidate{tweet: t, uncertainty: u})
		scores[t.ID] = u
	}
	if len(candidates) == 0 {
		return StepResult{Name: "Prioritize", Summary: "No uploaded tweets to prioritize"}
	}
	if err := p.db.SetUncertainties(scores); err != nil {
		return StepResult{Name: "Prioritize", Err: err}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].uncertainty > candidates[j].uncertainty
	})
	overrides := make([]labeling.PriorityOverride, len(candidates))
	for i, c := range candidates {
		overrides[i] = labeling.PriorityOverride{DataRowID: *c.tweet.PlatformID, Priority: i + 1, NumLabels: 1}
	}

	projectID, err := p.ensureProject(ctx)
	if err != nil {
		return StepResult{Name: "Prioritize", Err: err}
	}
	if err := p.platform.SetLabelingPriority(ctx, projectID, overrides); err != nil {
		return StepResult{Name: "Prioritize", Err: err}
	}
	return StepResult{
		Name: "Prioritize",
		Summary: fmt.Sprintf("Pushed priorities for %d tweets (top uncertainty %.3f)",
			len(overrides), candidates[0].uncertainty),
	}
}

// Export writes a run's results in the configured formats. An empty runID
// exports the latest run.
func (p *Pipeline) Export(runID string) ([]string, StepResult) {
	p.logger.Info("Step 6/6: Exporting results")
	if runID == "" {
		latest, err := p.db.GetLatestRun()
		if err != nil {
			return nil, StepResult{Name: "Export", Err: err}
		}
		if latest == nil {
			return nil, StepResult{Name: "Export", Err: fmt.Errorf("no experiment runs; run experiment first")}
		}
		runID = latest.ID
	}

	res, err := LoadResult(p.db, runID)
	if err != nil {
		return nil, StepResult{Name: "Export", Err: err}
	}

	dir := p.cfg.GetResultsDir()
	paths, err := export.WriteFiles(dir, runID, runID, res, p.cfg.Output.Formats)
	if err != nil {
		return paths, StepResult{Name: "Export", Err: err}
	}
	names := make([]string, len(paths))
	for i, path := range paths {
		names[i] = filepath.Base(path)
	}
	return paths, StepResult{
		Name:    "Export",
		Summary: fmt.Sprintf("Wrote %s to %s", strings.Join(names, ", "), dir),
	}
}

// LoadResult reads a stored run back into an experiment result.
func LoadResult(db *database.DB, runID string) (*experiment.Result, error) {
	batches, err := db.GetBatchResults(runID)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("no results for run %s", runID)
	}
	return experiment.FromBatchResults(batches), nil
}

func skipped(name, keyEnv string) StepResult {
	return StepResult{
		Name:    name,
		Skipped: true,
		Summary: fmt.Sprintf("Skipped: labeling platform not configured (set %s)", keyEnv),
	}
}
