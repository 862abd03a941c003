package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/medkb/medkb/internal/app"
	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/ingest"
	"github.com/medkb/medkb/internal/log"
)

// runIngest indexes a corpus directory. The directory comes from the
// first positional argument, falling back to the configured corpus dir.
// Any failed document makes the command exit non-zero, so cron jobs and
// CI notice partial runs.
func runIngest(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	dir := cfg.CorpusDir
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}
	if dir == "" {
		return fmt.Errorf("no corpus directory: pass one (medkb ingest ./corpus) or set corpus_dir in config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	pipeline, err := ingest.New(a.Chunker, a.Embedder, a.Index, logger)
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}

	report, err := pipeline.Run(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}

	fmt.Printf("Indexed %d document(s), %d chunk(s)\n", report.Indexed, report.Chunks)
	for _, f := range report.Failed {
		fmt.Fprintf(os.Stderr, "failed: %s: %v\n", f.Source, f.Err)
	}
	return report.Err()
}
