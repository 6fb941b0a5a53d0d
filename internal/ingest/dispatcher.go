package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dmorley/finance-ingest/internal/common"
	"github.com/dmorley/finance-ingest/internal/entity"
)

// TransactionStore is the persistence boundary the pipeline consumes: one
// all-or-nothing insert of a file's records, failing distinctly on a duplicate
// GUID (common.ErrDuplicateIdentity).
type TransactionStore interface {
	InsertTransactions(ctx context.Context, records []entity.TransactionRecord) error
}

// Stats counts files by disposition across the dispatcher's lifetime.
type Stats struct {
	Processed uint64
	Succeeded uint64
	Failed    uint64
}

// Dispatcher drives each claimed file through decode -> validate -> persist ->
// classify on a bounded worker pool. Files are processed independently and
// possibly out of order; the stages for one file run sequentially on one worker.
type Dispatcher struct {
	decoder    *Decoder
	validator  *RecordValidator
	store      TransactionStore
	classifier *Classifier
	logger     *slog.Logger

	workers int
	jobs    chan string
	wg      sync.WaitGroup

	processed atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(decoder *Decoder, validator *RecordValidator, store TransactionStore, classifier *Classifier, workers int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		decoder:    decoder,
		validator:  validator,
		store:      store,
		classifier: classifier,
		logger:     logger,
		workers:    workers,
		jobs:       make(chan string, workers*2),
	}
}

// Start launches the worker pool. Workers drain the job channel even after ctx
// is cancelled so every already-claimed file still reaches a terminal outcome.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for path := range d.jobs {
				d.Process(ctx, path)
			}
		}()
	}
}

// Submit hands one claimed file to the pool.
func (d *Dispatcher) Submit(path string) {
	d.jobs <- path
}

// Stop closes intake and waits for in-flight files to finish.
func (d *Dispatcher) Stop() {
	close(d.jobs)
	d.wg.Wait()
}

// Snapshot returns the current counters.
func (d *Dispatcher) Snapshot() Stats {
	return Stats{
		Processed: d.processed.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
	}
}

// Process runs the full per-file pipeline and archives the file under its
// terminal directory. No failure escapes as an error: every path ends in a
// classified outcome and a file move.
func (d *Dispatcher) Process(ctx context.Context, claimedPath string) entity.FileResult {
	// Workers drain already-claimed files after shutdown is signalled; the
	// cancelled signal context must not fail their persistence calls, or a
	// valid queued file would be misarchived as a store failure.
	ctx = context.WithoutCancel(ctx)

	res := entity.FileResult{Path: claimedPath}
	res.Outcome, res.Diagnostic, res.Records = d.run(ctx, claimedPath)

	dest, err := d.classifier.Archive(claimedPath, res.Outcome, res.Diagnostic)
	if err != nil {
		// The file stays in the working directory for manual recovery.
		d.logger.Error("failed to archive file", "file", claimedPath, "outcome", string(res.Outcome), "error", err)
	}
	res.ArchivedTo = dest

	d.processed.Add(1)
	if res.Outcome == entity.OutcomeSucceeded {
		d.succeeded.Add(1)
	} else {
		d.failed.Add(1)
	}
	return res
}

func (d *Dispatcher) run(ctx context.Context, claimedPath string) (entity.IngestionOutcome, string, int) {
	data, err := os.ReadFile(claimedPath)
	if err != nil {
		d.logger.Error("failed to read claimed file", "file", claimedPath, "error", err)
		return entity.OutcomeFailedValidation, "read file: " + err.Error(), 0
	}

	candidates, err := d.decoder.Decode(data)
	if err != nil {
		if errors.Is(err, common.ErrNotJSON) {
			return entity.OutcomeFailedNotJSON, err.Error(), 0
		}
		return entity.OutcomeFailedJSONParse, err.Error(), 0
	}

	records, err := d.validator.ValidateAll(candidates)
	if err != nil {
		return entity.OutcomeFailedValidation, err.Error(), 0
	}

	if err := d.store.InsertTransactions(ctx, records); err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			d.logger.Warn("duplicate transaction identity", "file", claimedPath, "error", err)
		} else {
			// Infrastructure failures route the same way but get full detail
			// for operator diagnosis; they are not retried here.
			d.logger.Error("store failure", "file", claimedPath, "records", len(records), "error", err)
		}
		return entity.OutcomeFailedValidation, err.Error(), 0
	}

	return entity.OutcomeSucceeded, "", len(records)
}
