// Package pipeline composes the loader and the writer for each record kind:
// every record is fetched page by page, persisted, and only then shown to
// the kind's observers. The driver is the only layer that decides whether a
// failure aborts the sync or is skipped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/rickmorty-sync/pkg/ledger"
	"github.com/Sternrassler/rickmorty-sync/pkg/pagination"
	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/Sternrassler/rickmorty-sync/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// RecordWriter persists one record and passes it through.
type RecordWriter interface {
	Persist(rec record.Record) (record.Record, error)
}

// Recorder keeps a history of runs. Failures are logged, never fatal.
type Recorder interface {
	Start(ctx context.Context, kind record.Kind) (*ledger.Run, error)
	Finish(ctx context.Context, run *ledger.Run, runErr error) error
}

// Config holds the driver configuration.
type Config struct {
	// BaseURL of the API, e.g. https://rickandmortyapi.com/api.
	BaseURL string

	// Kinds to sync, in order. Empty means record.AllKinds().
	Kinds []record.Kind

	// Concurrent syncs all kinds in parallel.
	Concurrent bool

	// ContinueOnWriteError skips records that cannot be written instead of
	// aborting the kind.
	ContinueOnWriteError bool
}

// KindError is returned when the sync of a kind fails.
type KindError struct {
	Kind record.Kind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// KindSummary describes the sync of one kind.
type KindSummary struct {
	Kind     record.Kind
	Pages    int
	Written  int
	Skipped  int
	Matched  int
	Duration time.Duration
	Err      error
}

// Report is the outcome of a Run.
type Report struct {
	Kinds []KindSummary
}

// Written returns the number of records written across kinds.
func (r Report) Written() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.Written
	}
	return n
}

// Skipped returns the number of records skipped across kinds.
func (r Report) Skipped() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.Skipped
	}
	return n
}

// Driver runs the sync.
type Driver struct {
	cfg       Config
	fetcher   pagination.PageFetcher
	writer    RecordWriter
	recorder  Recorder
	observers map[record.Kind][]Observer
	logger    zerolog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithRecorder records each kind's run.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithObserver adds an observer for kind.
func WithObserver(kind record.Kind, obs Observer) Option {
	return func(d *Driver) { d.observers[kind] = append(d.observers[kind], obs) }
}

// WithObservers adds several observers per kind.
func WithObservers(observers map[record.Kind][]Observer) Option {
	return func(d *Driver) {
		for kind, list := range observers {
			d.observers[kind] = append(d.observers[kind], list...)
		}
	}
}

// WithLogger sets the driver's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New creates a Driver.
func New(cfg Config, fetcher pagination.PageFetcher, writer RecordWriter, opts ...Option) *Driver {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = record.AllKinds()
	}

	d := &Driver{
		cfg:       cfg,
		fetcher:   fetcher,
		writer:    writer,
		observers: make(map[record.Kind][]Observer),
		logger:    log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run syncs every configured kind. Sequentially, the first failing kind
// stops the run; concurrently, it cancels the others. The report contains a
// summary for every kind that was started.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	if d.cfg.Concurrent {
		return d.runConcurrent(ctx)
	}

	var report Report
	for _, kind := range d.cfg.Kinds {
		summary := d.runKind(ctx, kind)
		report.Kinds = append(report.Kinds, summary)
		if summary.Err != nil {
			return report, summary.Err
		}
	}
	return report, nil
}

func (d *Driver) runConcurrent(ctx context.Context) (Report, error) {
	summaries := make([]KindSummary, len(d.cfg.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range d.cfg.Kinds {
		g.Go(func() error {
			summaries[i] = d.runKind(gctx, kind)
			return summaries[i].Err
		})
	}
	err := g.Wait()

	return Report{Kinds: summaries}, err
}

// runKind drains one kind's loader through the writer and observers.
func (d *Driver) runKind(ctx context.Context, kind record.Kind) KindSummary {
	logger := d.logger.With().Str("kind", kind.String()).Logger()
	start := time.Now()
	summary := KindSummary{Kind: kind}

	run := d.startRun(ctx, kind, logger)
	loader := pagination.NewLoader(d.fetcher, d.cfg.BaseURL, kind)

	logger.Info().Str("cursor", loader.Cursor()).Msg("Sync started")

	var err error
	for rec, loadErr := range loader.All(ctx) {
		if loadErr != nil {
			err = loadErr
			break
		}

		if _, writeErr := d.writer.Persist(rec); writeErr != nil {
			if d.cfg.ContinueOnWriteError {
				summary.Skipped++
				logger.Warn().
					Err(writeErr).
					Int("id", rec.RecordID()).
					Str("name", rec.RecordName()).
					Msg("Record skipped")
				continue
			}
			err = writeErr
			break
		}
		summary.Written++

		if d.observe(rec) {
			summary.Matched++
		}
	}

	summary.Pages = loader.Pages()
	summary.Duration = time.Since(start)
	if err != nil {
		summary.Err = &KindError{Kind: kind, Err: err}
	}

	d.finishRun(ctx, run, summary, logger)

	event := logger.Info()
	if summary.Err != nil {
		event = logger.Error().Err(summary.Err)
	}
	event.
		Int("pages", summary.Pages).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Int("matched", summary.Matched).
		Dur("duration", summary.Duration).
		Msg("Sync finished")

	return summary
}

// observe shows rec to every observer of its kind and reports whether any
// of them selected it.
func (d *Driver) observe(rec record.Record) bool {
	matched := false
	for _, obs := range d.observers[rec.RecordKind()] {
		if obs.Observe(rec) {
			matched = true
		}
	}
	return matched
}

func (d *Driver) startRun(ctx context.Context, kind record.Kind, logger zerolog.Logger) *ledger.Run {
	if d.recorder == nil {
		return nil
	}
	run, err := d.recorder.Start(ctx, kind)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to record run start")
		return nil
	}
	return run
}

// finishRun stores the outcome even when ctx was cancelled.
func (d *Driver) finishRun(ctx context.Context, run *ledger.Run, summary KindSummary, logger zerolog.Logger) {
	if d.recorder == nil || run == nil {
		return
	}

	run.Pages = summary.Pages
	run.Written = summary.Written
	run.Skipped = summary.Skipped

	var runErr error
	if summary.Err != nil {
		runErr = summary.Err
		var kindErr *KindError
		if errors.As(runErr, &kindErr) {
			runErr = kindErr.Err
		}
	}

	if err := d.recorder.Finish(context.WithoutCancel(ctx), run, runErr); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run finish")
	}
}

// compile-time checks
var (
	_ RecordWriter = (*storage.Writer)(nil)
	_ Recorder     = (*ledger.Ledger)(nil)
)
