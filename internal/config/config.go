package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/activelabel/internal/sampling"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Dataset    Dataset    `yaml:"dataset"`
	Labeling   Labeling   `yaml:"labeling"`
	Embedding  Embedding  `yaml:"embedding"`
	Experiment Experiment `yaml:"experiment"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Metrics    Metrics    `yaml:"metrics"`
}

// Dataset describes the labeled tweet CSV and how it is split.
type Dataset struct {
	Path         string  `yaml:"path"`
	Encoding     string  `yaml:"encoding"` // latin1 or utf8
	SampleSize   int     `yaml:"sample_size"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
}

// Labeling configures the hosted annotation platform.
type Labeling struct {
	Endpoint        string  `yaml:"endpoint"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	ProjectName     string  `yaml:"project_name"`
	DatasetName     string  `yaml:"dataset_name"`
	UploadChunkSize int     `yaml:"upload_chunk_size"`
	TimeoutSec      int     `yaml:"timeout_sec"`
	Breaker         Breaker `yaml:"breaker"`
}

// Breaker holds circuit breaker settings for a remote dependency.
type Breaker struct {
	MaxRequests      uint32  `yaml:"max_requests"`
	IntervalSec      int     `yaml:"interval_sec"`
	TimeoutSec       int     `yaml:"timeout_sec"`
	ReadyToTripRatio float64 `yaml:"ready_to_trip_ratio"`
}

type Embedding struct {
	Provider      string  `yaml:"provider"` // ollama or openai
	Model         string  `yaml:"model"`
	OllamaURL     string  `yaml:"ollama_url"`
	OpenAIBaseURL string  `yaml:"openai_base_url"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	BatchSize     int     `yaml:"batch_size"`
	TimeoutSec    int     `yaml:"timeout_sec"`
	Breaker       Breaker `yaml:"breaker"`
}

type Experiment struct {
	BatchSize  int      `yaml:"batch_size"`
	Rounds     int      `yaml:"rounds"`
	Seed       int64    `yaml:"seed"`
	Strategies []string `yaml:"strategies"`
	C          float64  `yaml:"c"`
	MaxIter    int      `yaml:"max_iter"`
}

type Output struct {
	DataDir    string   `yaml:"data_dir"`
	ResultsDir string   `yaml:"results_dir"`
	Formats    []string `yaml:"formats"` // csv, parquet
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"` // dev or prod
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// ConfigDir returns the XDG config directory for activelabel.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "activelabel")
}

// DataDir returns the XDG data directory for activelabel.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "activelabel")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/activelabel/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'activelabel init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults, then validates it.
func parse(data []byte) (*Config, error) {
	breaker := Breaker{
		MaxRequests:      1,
		IntervalSec:      60,
		TimeoutSec:       30,
		ReadyToTripRatio: 0.6,
	}
	cfg := &Config{
		Dataset: Dataset{
			Path:         "training.1600000.processed.noemoticon.csv",
			Encoding:     "latin1",
			SampleSize:   2000,
			TestFraction: 0.2,
			Seed:         42,
		},
		Labeling: Labeling{
			Endpoint:        "https://api.labelbox.com/graphql",
			APIKeyEnv:       "LABELBOX_API_KEY",
			ProjectName:     "Tweet Sentiment Active Learning",
			DatasetName:     "Sentiment140 Tweets",
			UploadChunkSize: 500,
			TimeoutSec:      60,
			Breaker:         breaker,
		},
		Embedding: Embedding{
			Provider:      "ollama",
			Model:         "all-minilm",
			OllamaURL:     "http://localhost:11434",
			OpenAIBaseURL: "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			BatchSize:     64,
			TimeoutSec:    120,
			Breaker:       breaker,
		},
		Experiment: Experiment{
			BatchSize:  100,
			Rounds:     10,
			Seed:       42,
			Strategies: []string{"random", "uncertainty"},
			C:          1.0,
			MaxIter:    100,
		},
		Output:  Output{Formats: []string{"csv"}},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info", Env: "dev"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Dataset.TestFraction < 0 || c.Dataset.TestFraction >= 1 {
		return fmt.Errorf("dataset.test_fraction must be in [0, 1), got %v", c.Dataset.TestFraction)
	}
	switch strings.ToLower(c.Dataset.Encoding) {
	case "", "latin1", "utf8":
	default:
		return fmt.Errorf("dataset.encoding must be latin1 or utf8, got %q", c.Dataset.Encoding)
	}
	if c.Experiment.BatchSize <= 0 {
		return fmt.Errorf("experiment.batch_size must be positive, got %d", c.Experiment.BatchSize)
	}
	if c.Experiment.Rounds <= 0 {
		return fmt.Errorf("experiment.rounds must be positive, got %d", c.Experiment.Rounds)
	}
	if len(c.Experiment.Strategies) == 0 {
		return fmt.Errorf("experiment.strategies must not be empty")
	}
	seen := make(map[string]bool, len(c.Experiment.Strategies))
	for _, name := range c.Experiment.Strategies {
		strategy, err := sampling.ParseStrategy(name, c.Experiment.Seed)
		if err != nil {
			return fmt.Errorf("experiment.strategies: %w", err)
		}
		if seen[strategy.Name()] {
			return fmt.Errorf("experiment.strategies: %q listed twice", strategy.Name())
		}
		seen[strategy.Name()] = true
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be ollama or openai, got %q", c.Embedding.Provider)
	}
	for _, f := range c.Output.Formats {
		if f != "csv" && f != "parquet" {
			return fmt.Errorf("output.formats: unknown format %q", f)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetResultsDir returns where exported result tables are written.
func (c *Config) GetResultsDir() string {
	if c.Output.ResultsDir != "" {
		return c.Output.ResultsDir
	}
	return filepath.Join(c.GetDataDir(), "results")
}

// APIKey reads the platform API key from the configured environment variable.
func (l Labeling) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}

// Timeout returns the platform request timeout.
func (l Labeling) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

// Timeout returns the embedding request timeout.
func (e Embedding) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
