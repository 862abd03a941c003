package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/medkb/medkb/internal/app"
	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/log"
)

// runAsk answers a single question from the command line, streaming the
// answer to stdout as it is generated.
func runAsk(logger log.Logger) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: medkb ask <question>")
	}
	query := strings.TrimSpace(strings.Join(os.Args[2:], " "))
	if query == "" {
		return fmt.Errorf("question is empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
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

	ans, err := a.Service.Answer(ctx, nil, query,
		func(_ context.Context, fragment string) error {
			_, werr := fmt.Print(fragment)
			return werr
		})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}

	if len(ans.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(ans.Sources, ", "))
	}
	return nil
}
