package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dmorley/finance-ingest/internal/report"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		dir = flag.String("dir", "", "inbound directory whose archive siblings to report on (required)")
		out = flag.String("out", "", "output XLSX file path (optional, defaults to the archive parent)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	baseDir := filepath.Dir(filepath.Clean(*dir))
	if *out == "" {
		*out = filepath.Join(baseDir, "ingest-report.xlsx")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	svc := report.NewService(baseDir, logger)
	data, err := svc.BuildXLSX()
	if err != nil {
		printError("Error: building report: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		printError("Error: writing %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}
