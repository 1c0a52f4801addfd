package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/config"
	"github.com/TobiSchelling/activelabel/internal/database"
	"github.com/TobiSchelling/activelabel/internal/logger"
	"github.com/TobiSchelling/activelabel/internal/metrics"
	"github.com/TobiSchelling/activelabel/internal/pipeline"
	"github.com/TobiSchelling/activelabel/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "activelabel",
	Short:   "Active learning for tweet sentiment labeling",
	Long:    "activelabel loads labeled tweets, pushes them to an annotation platform, embeds them, and compares random and uncertainty sampling by ROC-AUC.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.NewLogger(cfg.Logging.Env, level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		metrics.Register()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		_ = log.Sync()
		if cfg == nil || cfg.Metrics.Textfile == "" {
			return nil
		}
		return metrics.WriteTextfile(cfg.Metrics.Textfile)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(experimentCmd)
	rootCmd.AddCommand(prioritizeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("activelabel", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/activelabel/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the dataset path, platform project, and embedding provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Tweets:")
		fmt.Printf("  Total: %d (%d train, %d test)\n", stats.TotalTweets, stats.TrainTweets, stats.TestTweets)
		fmt.Printf("  Uploaded: %d\n", stats.UploadedTweets)
		fmt.Printf("  Embedded: %d\n", stats.EmbeddedTweets)
		fmt.Printf("  Prioritized: %d\n", stats.PrioritizedTweets)
		fmt.Println("\nExperiments:")
		fmt.Printf("  Runs: %d\n", stats.ExperimentRuns)

		latest, err := db.GetLatestRun()
		if err != nil {
			return err
		}
		if latest != nil {
			fmt.Printf("  Latest: %s\n", latest.ID)
		}

		fmt.Println("\nPlatform:")
		if cfg.Labeling.APIKey() == "" {
			fmt.Printf("  Not configured (set %s)\n", cfg.Labeling.APIKeyEnv)
		} else {
			fmt.Printf("  Project: %s\n", cfg.Labeling.ProjectName)
		}
		return nil
	},
}

// --- single-step commands ---

func stepCommand(use, short string, step func(ctx context.Context, p *pipeline.Pipeline) pipeline.StepResult) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
				result := step(ctx, p)
				printStep(result)
				return result.Err
			})
		},
	}
}

var loadCmd = stepCommand("load", "Load and split the tweet CSV into the database",
	func(ctx context.Context, p *pipeline.Pipeline) pipeline.StepResult { return p.Load(ctx) })

var uploadCmd = stepCommand("upload", "Upload train tweets to the labeling platform",
	func(ctx context.Context, p *pipeline.Pipeline) pipeline.StepResult { return p.Upload(ctx) })

var embedCmd = stepCommand("embed", "Compute sentence embeddings for stored tweets",
	func(ctx context.Context, p *pipeline.Pipeline) pipeline.StepResult { return p.Embed(ctx) })

var experimentCmd = stepCommand("experiment", "Compare random and uncertainty sampling",
	func(ctx context.Context, p *pipeline.Pipeline) pipeline.StepResult {
		_, step := p.Experiment(ctx)
		return step
	})

var prioritizeCmd = stepCommand("prioritize", "Push uncertainty-ranked priorities to the labeling queue",
	func(ctx context.Context, p *pipeline.Pipeline) pipeline.StepResult { return p.Prioritize(ctx) })

// --- export command ---

var exportRunID string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a run's ROC-AUC table to the results directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			paths, step := p.Export(exportRunID)
			printStep(step)
			for _, path := range paths {
				fmt.Printf("  %s\n", path)
			}
			return step.Err
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "Run ID to export (default: latest)")
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: load -> upload -> embed -> experiment -> prioritize -> export",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			var result *pipeline.Result
			if dryRun {
				result = p.DryRun()
			} else {
				result = p.Run(ctx)
			}

			for i, step := range result.Steps {
				fmt.Printf("\nStep %d/6: %s\n", i+1, step.Name)
				printStep(step)
			}

			if !dryRun && result.RunID != "" {
				fmt.Printf("\nPipeline complete! Run 'activelabel serve' to view run %s.\n", result.RunID)
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local results server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func withPipeline(fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pipe, err := pipeline.New(cfg, db, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return fn(ctx, pipe)
}

func printStep(step pipeline.StepResult) {
	if step.Err != nil {
		fmt.Printf("  Error: %v\n", step.Err)
		if step.Summary != "" {
			fmt.Printf("  %s\n", step.Summary)
		}
		return
	}
	fmt.Printf("  %s\n", step.Summary)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "activelabel.db")
	return database.Open(dbPath)
}
