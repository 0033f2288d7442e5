package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/MikeSquared-Agency/recruiter/internal/store"
)

// ResultLister supplies the results to export.
type ResultLister interface {
	ListResults(ctx context.Context) ([]store.Result, error)
}

// Scheduler writes candidates.csv snapshots into a directory, on a cron
// spec and on demand.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	source ResultLister
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

func NewScheduler(source ResultLister, dir, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		spec:   spec,
		source: source,
		dir:    dir,
		logger: logger,
	}
}

// Start registers the export job. An empty spec leaves only RunNow active.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunNow(ctx); err != nil {
			s.logger.Error("scheduled export failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("export scheduler started", "spec", s.spec, "dir", s.dir)
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow writes a fresh snapshot and returns its path.
func (s *Scheduler) RunNow(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.source.ListResults(ctx)
	if err != nil {
		return "", fmt.Errorf("list results: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	path := filepath.Join(s.dir, Filename)
	tmp, err := os.CreateTemp(s.dir, Filename+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, results); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("replace export: %w", err)
	}

	s.logger.Info("export written", "path", path, "rows", len(results))
	return path, nil
}
