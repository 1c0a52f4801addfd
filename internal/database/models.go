package database

// Split tags a tweet as training or held-out test data.
type Split string

const (
	SplitTrain Split = "train"
	SplitTest  Split = "test"
)

// Tweet is a labeled tweet and everything derived from it.
type Tweet struct {
	ID          int64
	ExternalID  string
	Text        string
	Label       int // 0 negative, 1 positive
	Split       Split
	PlatformID  *string
	Uncertainty *float64
	CreatedAt   *string
}

// PlatformResource caches an id returned by the annotation platform.
type PlatformResource struct {
	Kind       string // "project" or "dataset"
	Name       string
	PlatformID string
	CreatedAt  *string
}

const (
	ResourceProject = "project"
	ResourceDataset = "dataset"
)

// ExperimentRun describes one comparison of sampling strategies.
type ExperimentRun struct {
	ID             string
	BatchSize      int
	Rounds         int
	Seed           int64
	EmbeddingModel string
	TrainSize      int
	TestSize       int
	CreatedAt      *string
}

// BatchResult is the score of one training round of one strategy.
type BatchResult struct {
	RunID     string
	Strategy  string
	Round     int
	TrainSize int
	ROCAUC    float64
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalTweets       int
	TrainTweets       int
	TestTweets        int
	UploadedTweets    int
	EmbeddedTweets    int
	PrioritizedTweets int
	ExperimentRuns    int
}
