package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/recruiter/internal/config"
	"github.com/MikeSquared-Agency/recruiter/internal/export"
	"github.com/MikeSquared-Agency/recruiter/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	out := flag.String("out", filepath.Join(cfg.ExportDir, export.Filename), "output file, - for stdout")
	interviewID := flag.String("interview", "", "only export results for this interview id")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var results []store.Result
	if *interviewID != "" {
		results, err = db.ListResultsByInterview(ctx, *interviewID)
	} else {
		results, err = db.ListResults(ctx)
	}
	if err != nil {
		logger.Error("failed to list results", "error", err)
		os.Exit(1)
	}

	if *out == "-" {
		if err := export.Write(os.Stdout, results); err != nil {
			logger.Error("failed to write export", "error", err)
			os.Exit(1)
		}
	} else if err := writeFile(*out, results); err != nil {
		logger.Error("failed to write export", "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "rows", len(results), "out", *out)
}

func writeFile(path string, results []store.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := export.Write(f, results); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
