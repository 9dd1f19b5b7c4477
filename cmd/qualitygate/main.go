// Command qualitygate checks the published structured tables without running
// a transform and prints the report as JSON.
//
// Usage:
//
//	go run ./cmd/qualitygate [-config configs/transform.yaml] [-strict] [-save]
//
// With -strict the exit status is 3 when any check flags a row.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/quality"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/store/pgstore"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/postgres"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/transform.yaml", "path to config file")
	strict := flag.Bool("strict", false, "exit non-zero when any violation is found")
	save := flag.Bool("save", false, "persist the report to quality_reports")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	runID := uuid.NewString()
	report, err := quality.NewGate(pgstore.New(db)).Run(ctx, runID)
	if err != nil {
		slog.Error("quality gate failed to run", "error", err)
		os.Exit(1)
	}

	if *save {
		if err := quality.NewReportStore(db).Save(ctx, report); err != nil {
			slog.Error("failed to save report", "error", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to print report", "error", err)
		os.Exit(1)
	}

	if *strict && !report.Passed {
		db.Close()
		os.Exit(3)
	}
}
