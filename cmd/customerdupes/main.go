package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/movebox/customerdupes/internal/config"
	"github.com/movebox/customerdupes/internal/database"
	"github.com/movebox/customerdupes/internal/dedupe"
	"github.com/movebox/customerdupes/internal/models"
	"github.com/movebox/customerdupes/internal/scheduler"
	"github.com/movebox/customerdupes/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	scan := flag.Bool("scan", false, "Detect duplicates, print them and exit without changing anything")
	autoMerge := flag.Bool("auto-merge", false, "Merge all exact duplicates once and exit")
	reportPath := flag.String("report", "", "Write a JSON report (with -scan or -auto-merge)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("customerdupes %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Error("Invalid environment override", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Initialize database
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Database initialized", "path", cfg.Database.Path)

	engine := dedupe.NewEngine(db, dedupe.NewGreedyGrouper(cfg.Dedupe))
	engine.SetObserver(db.RecordMerge)

	if *scan || *autoMerge {
		if err := runOnce(engine, db, *autoMerge, *reportPath); err != nil {
			slog.Error("Run failed", "error", err)
			db.Close()
			os.Exit(1)
		}
		return
	}

	slog.Info("Starting customerdupes", "version", version)

	generated, err := server.EnsureAPIKey(db, cfg.APIKey)
	if err != nil {
		slog.Error("Failed to set up API key", "error", err)
		os.Exit(1)
	}
	if generated != "" {
		fmt.Printf("Generated API key (shown once): %s\n", generated)
	}

	sched := scheduler.New(engine, time.Duration(cfg.Scheduler.AutoMergeIntervalMinutes)*time.Minute)
	srv := server.New(cfg, db, engine, sched, version, buildTime)

	// Start scheduler in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// runOnce handles the -scan and -auto-merge modes.
func runOnce(engine *dedupe.Engine, db *database.DB, merge bool, reportPath string) error {
	ctx := context.Background()

	groups, customers, err := engine.Detect(ctx)
	if err != nil {
		return err
	}
	stats := dedupe.CountByType(groups)
	stats.TotalCustomers = len(customers)

	mode := "dry-run"
	var res dedupe.BatchResult
	if merge {
		mode = "auto-merge"
		res = engine.AutoMergeExact(ctx, groups)
		if stats.Processed, err = db.ProcessedCount(ctx); err != nil {
			return fmt.Errorf("count processed: %w", err)
		}
	}

	printSummary(stats, groups, merge, res)

	if reportPath == "" {
		return nil
	}
	// After a merge the report lists only what was actually merged.
	reported := groups
	if merge {
		reported = dedupe.SelectGroups(groups, res.MergedMasters)
	}
	report := dedupe.NewReport(mode, time.Now(), stats, reported)
	report.Errors = res.ErrorStrings()
	if err := report.WriteFile(reportPath); err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", reportPath)
	return nil
}

func printSummary(stats models.Stats, groups []dedupe.Group, merged bool, res dedupe.BatchResult) {
	fmt.Printf("%d customers, %d duplicate groups (exact %d, similar %d, potential %d)\n",
		stats.TotalCustomers, stats.TotalGroups, stats.Exact, stats.Similar, stats.Potential)
	for _, g := range groups {
		if len(g.Members) == 0 {
			continue
		}
		fmt.Printf("  [%-9s %.2f] %s (%s) +%d: %v\n",
			g.MatchType, g.Confidence, g.Members[0].Name, g.MasterID, len(g.Members)-1, g.MatchReasons)
	}
	if merged {
		fmt.Printf("Auto-merge: %d merged, %d failed\n", res.Succeeded, res.Failed)
		for _, e := range res.ErrorStrings() {
			fmt.Printf("  error: %s\n", e)
		}
	}
}
