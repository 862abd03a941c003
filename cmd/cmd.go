// Package cmd provides the medkb CLI commands.
//
// Commands:
//   - serve: HTTP API server with SSE answer streaming
//   - ingest: index a corpus directory into the knowledge base
//   - ask: one-shot question from the terminal
//
// All long-running commands handle SIGINT/SIGTERM via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/medkb/medkb/internal/log"
)

// Execute is the main entry point for the medkb CLI.
func Execute() error {
	logger := log.New(log.Config{Level: logLevel()})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "ingest":
		return runIngest(logger)
	case "ask":
		return runAsk(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("medkb - medical knowledge base question answering")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  medkb serve [addr]   Start HTTP API server (default: 127.0.0.1:3400)")
	fmt.Println("  medkb ingest [dir]   Index all *.txt documents in a directory")
	fmt.Println("  medkb ask <question> Ask a one-shot question")
	fmt.Println("  medkb --version      Show version information")
	fmt.Println("  medkb --help         Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY       Required: Gemini API key")
	fmt.Println("  DATABASE_URL         Optional: overrides the configured PostgreSQL connection")
	fmt.Println("  DEBUG                Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.medkb/config.yaml or ./config.yaml.")
}
