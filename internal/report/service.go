package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/dmorley/finance-ingest/internal/ingest"
)

// Service produces an XLSX workbook summarizing the archive directories for
// operator review: one summary sheet with per-outcome counts and one sheet
// listing every archived file with its diagnostic, when a sidecar exists.
type Service struct {
	baseDir string
	logger  *slog.Logger
}

// NewService builds a report service rooted at the parent of the inbound
// directory (where the archive directories live).
func NewService(baseDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{baseDir: baseDir, logger: logger}
}

type archivedFile struct {
	Dir        string
	Name       string
	Size       int64
	Modified   string
	Diagnostic string
}

var outcomeDirs = []string{
	ingest.DirProcessed,
	ingest.DirNonJSONFile,
	ingest.DirJSONParseErrors,
	ingest.DirFailedWithErrors,
}

const sidecarSuffix = ".reason.txt"

// BuildXLSX scans the archive directories and returns workbook bytes.
func (s *Service) BuildXLSX() ([]byte, error) {
	counts := make(map[string]int, len(outcomeDirs))
	var files []archivedFile

	for _, dir := range outcomeDirs {
		full := filepath.Join(s.baseDir, dir)
		entries, err := os.ReadDir(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read archive dir %s: %w", full, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), sidecarSuffix) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			counts[dir]++
			files = append(files, archivedFile{
				Dir:        dir,
				Name:       e.Name(),
				Size:       info.Size(),
				Modified:   info.ModTime().UTC().Format("2006-01-02 15:04:05"),
				Diagnostic: readSidecar(filepath.Join(full, e.Name()+sidecarSuffix)),
			})
		}
	}

	f := excelize.NewFile()
	const summarySheet = "Summary"
	const filesSheet = "Files"

	idx, err := f.NewSheet(summarySheet)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(filesSheet); err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		s.logger.Warn("failed to drop default sheet", "error", err)
	}

	write := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(summarySheet, 1, 1, "Outcome Directory")
	write(summarySheet, 2, 1, "Files")
	for i, dir := range outcomeDirs {
		write(summarySheet, 1, i+2, dir)
		write(summarySheet, 2, i+2, counts[dir])
	}

	headers := []string{"Directory", "File", "Size (bytes)", "Archived (UTC)", "Diagnostic"}
	for i, h := range headers {
		write(filesSheet, i+1, 1, h)
	}
	for i, af := range files {
		row := i + 2
		write(filesSheet, 1, row, af.Dir)
		write(filesSheet, 2, row, af.Name)
		write(filesSheet, 3, row, af.Size)
		write(filesSheet, 4, row, af.Modified)
		write(filesSheet, 5, row, truncate(af.Diagnostic, 500))
	}

	_ = f.SetColWidth(filesSheet, "A", "A", 34)
	_ = f.SetColWidth(filesSheet, "B", "B", 30)
	_ = f.SetColWidth(filesSheet, "D", "D", 20)
	_ = f.SetColWidth(filesSheet, "E", "E", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("built archive report", "files", len(files))
	return buf.Bytes(), nil
}

func readSidecar(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character mid-sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
