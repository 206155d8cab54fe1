package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/database"
	"github.com/TobiSchelling/chronos/internal/feedback"
	"github.com/TobiSchelling/chronos/internal/llm"
	"github.com/TobiSchelling/chronos/internal/logging"
	"github.com/TobiSchelling/chronos/internal/metrics"
	"github.com/TobiSchelling/chronos/internal/orchestrator"
	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/server"
	"github.com/TobiSchelling/chronos/internal/suggest"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logging.Sync(logger)
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chronos",
	Short:   "Learning schedule assistant",
	Long:    "Chronos learns when you work best from your task history and feedback, and suggests when to schedule new tasks.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = zap.NewNop()
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

		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chronos", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/chronos/",
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
		fmt.Println("Edit it to configure the AI provider and the Notion task database.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show learning store and integration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context(), cfg.Learning.ConfidenceThreshold)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Patterns:")
		fmt.Printf("  Stored: %d\n", stats.Patterns)
		fmt.Printf("  Above threshold (%.2f): %d\n", cfg.Learning.ConfidenceThreshold, stats.ConfidentPatterns)
		fmt.Printf("  Validations: %d\n", stats.Validations)
		if stats.LastPatternUpdate != nil {
			fmt.Printf("  Last updated: %s\n", stats.LastPatternUpdate.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Println("  Last updated: never")
		}
		fmt.Println("\nFeedback:")
		fmt.Printf("  Events: %d\n", stats.FeedbackEvents)
		fmt.Printf("  Insights: %d\n", stats.Insights)
		fmt.Printf("  Performance snapshots: %d\n", stats.PerformanceRecords)

		fmt.Println("\nIntegrations:")
		fmt.Printf("  AI provider: %s (%s)\n", cfg.AI.Provider, cfg.AI.Model)
		if cfg.TaskStore.Enabled() {
			fmt.Printf("  Task store: %s (database %s)\n", cfg.TaskStore.Provider, cfg.TaskStore.DatabaseID)
		} else {
			fmt.Println("  Task store: not configured")
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		a, err := newApp(ctx, reg)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		srv, err := server.New(cfg.Server, server.Deps{
			Orchestrator: a.orchestrator,
			Analyzer:     a.analyzer,
			Processor:    a.processor,
			Gatherer:     reg,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		fmt.Printf("Serving at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to listen on (overrides server.port)")
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.GetDatabasePath(), logger)
}

// app wires the learning core for commands that need more than the database.
type app struct {
	db           *database.DB
	store        taskstore.Store
	analyzer     *patterns.Analyzer
	processor    *feedback.Processor
	orchestrator *orchestrator.Orchestrator
}

// newApp opens the database and builds the components. reg may be nil for
// one-shot commands.
func newApp(ctx context.Context, reg prometheus.Registerer) (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	a := &app{
		db:        db,
		analyzer:  patterns.NewAnalyzer(db, cfg.Learning, logger, m),
		processor: feedback.NewProcessor(db, cfg.Learning, logger, m),
	}

	if cfg.TaskStore.Enabled() {
		store, err := taskstore.NewNotionStore(cfg.TaskStore, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.store = store
	}

	var primary suggest.Strategy
	if provider := llm.CreateProvider(ctx, cfg.AI, logger); provider != nil {
		primary = suggest.NewGenerator(provider, cfg.AI, logger)
	}

	a.orchestrator = orchestrator.New(cfg.AI, orchestrator.Deps{
		Patterns: a.analyzer,
		Primary:  primary,
		Tasks:    a.store,
		Logger:   logger,
		Metrics:  m,
	})
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
