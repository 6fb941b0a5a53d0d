package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmorley/finance-ingest/internal/entity"
)

// Terminal directories, siblings of the inbound directory.
const (
	DirProcessed        = ".processed-successfully"
	DirNonJSONFile      = ".not-processed-non-json-file"
	DirJSONParseErrors  = ".not-processed-json-parsing-errors"
	DirFailedWithErrors = ".not-processed-failed-with-errors"
)

// Classifier maps an IngestionOutcome to exactly one archive directory and
// performs the move. The move is the terminal, durable record of what happened
// to a file; once moved, the pipeline takes no further action on it.
type Classifier struct {
	baseDir string
	logger  *slog.Logger
}

// NewClassifier builds a classifier whose archive directories live under
// baseDir (the parent of the inbound directory).
func NewClassifier(baseDir string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{baseDir: baseDir, logger: logger}
}

// DirFor returns the archive directory name for an outcome.
func DirFor(outcome entity.IngestionOutcome) string {
	switch outcome {
	case entity.OutcomeSucceeded:
		return DirProcessed
	case entity.OutcomeFailedNotJSON:
		return DirNonJSONFile
	case entity.OutcomeFailedJSONParse:
		return DirJSONParseErrors
	default:
		return DirFailedWithErrors
	}
}

// Archive moves a claimed file to its terminal directory, creating the
// directory if absent, and writes a diagnostic sidecar for failures. Returns
// the final archived path.
func (c *Classifier) Archive(claimedPath string, outcome entity.IngestionOutcome, diagnostic string) (string, error) {
	dir := filepath.Join(c.baseDir, DirFor(outcome))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir %s: %w", dir, err)
	}

	dest := filepath.Join(dir, filepath.Base(claimedPath))
	if _, err := os.Stat(dest); err == nil {
		// A same-named file was archived before; keep both.
		dest = timestamped(dest)
	}

	if err := os.Rename(claimedPath, dest); err != nil {
		return "", fmt.Errorf("archive %s: %w", claimedPath, err)
	}

	if outcome != entity.OutcomeSucceeded && diagnostic != "" {
		sidecar := dest + ".reason.txt"
		if err := os.WriteFile(sidecar, []byte(diagnostic+"\n"), 0o644); err != nil {
			c.logger.Warn("failed to write diagnostic sidecar", "path", sidecar, "error", err)
		}
	}

	c.logger.Info("archived file", "file", filepath.Base(dest), "outcome", string(outcome), "dir", dir)
	return dest, nil
}

func timestamped(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", stem, time.Now().UTC().Format("20060102T150405.000000000Z"), ext)
}
