package pagination

import (
	"context"
	"errors"
	"iter"
	"net/url"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rmsync_pages_fetched_total",
	Help: "Total pages fetched and decoded by kind",
}, []string{"kind"})

// PageFetcher performs one logical GET and returns the JSON body. Transient
// failures are expected to be retried inside FetchJSON.
type PageFetcher interface {
	FetchJSON(ctx context.Context, rawURL string) ([]byte, error)
}

// Batch is the outcome of fetching one page.
type Batch struct {
	Cursor  string
	Records []record.Record
	Info    Info
	// Next is the cursor of the following page, "" on the last page.
	Next string
}

// Loader walks the pages of one kind. A Loader is single pass and not safe
// for concurrent use; construct a new one to start over.
type Loader struct {
	fetcher PageFetcher
	kind    record.Kind
	logger  zerolog.Logger

	cursor  string
	done    bool
	err     error
	pages   int
	visited map[string]struct{}
}

// NewLoader returns a Loader positioned at page 0 of kind.
func NewLoader(fetcher PageFetcher, base string, kind record.Kind) *Loader {
	return NewLoaderAt(fetcher, kind, RequestURL(base, kind, 0))
}

// NewLoaderAt returns a Loader positioned at an arbitrary cursor.
func NewLoaderAt(fetcher PageFetcher, kind record.Kind, cursor string) *Loader {
	return &Loader{
		fetcher: fetcher,
		kind:    kind,
		cursor:  cursor,
		visited: make(map[string]struct{}),
		logger:  log.With().Str("component", "loader").Str("kind", kind.String()).Logger(),
	}
}

// Kind returns the record kind being loaded.
func (l *Loader) Kind() record.Kind {
	return l.kind
}

// Cursor returns the URL of the page Next will fetch, or "" once exhausted.
func (l *Loader) Cursor() string {
	if l.done {
		return ""
	}
	return l.cursor
}

// Pages returns the number of pages successfully loaded.
func (l *Loader) Pages() int {
	return l.pages
}

// Next fetches and decodes the page at the current cursor and advances.
// It returns ErrExhausted, without fetching, once the last page was loaded.
// After any other error the Loader is stuck and keeps returning it.
func (l *Loader) Next(ctx context.Context) (Batch, error) {
	if l.err != nil {
		return Batch{}, l.err
	}
	if l.done {
		return Batch{}, ErrExhausted
	}

	batch, err := l.load(ctx)
	if err != nil {
		l.err = err
		return Batch{}, err
	}

	l.pages++
	pagesFetched.WithLabelValues(l.kind.String()).Inc()

	if batch.Next == "" {
		l.done = true
	} else {
		l.cursor = batch.Next
	}

	l.logger.Info().
		Str("cursor", batch.Cursor).
		Int("page", l.pages).
		Int("records", len(batch.Records)).
		Bool("last", l.done).
		Msg("Page loaded")

	return batch, nil
}

func (l *Loader) load(ctx context.Context) (Batch, error) {
	cursor := l.cursor
	l.visited[cursor] = struct{}{}

	body, err := l.fetcher.FetchJSON(ctx, cursor)
	if err != nil {
		return Batch{}, &PageError{Kind: l.kind, Cursor: cursor, Err: err}
	}

	page, err := ParsePage(body)
	if err != nil {
		return Batch{}, &ProtocolError{Kind: l.kind, Cursor: cursor, Reason: err.Error()}
	}

	records, err := page.Decode(l.kind)
	if err != nil {
		return Batch{}, &PageError{Kind: l.kind, Cursor: cursor, Err: err}
	}

	next := page.NextCursor()
	if next != "" {
		if err := l.checkNext(cursor, next); err != nil {
			return Batch{}, err
		}
	}

	return Batch{
		Cursor:  cursor,
		Records: records,
		Info:    page.Info,
		Next:    next,
	}, nil
}

// checkNext rejects next links that cannot be fetched or would loop.
func (l *Loader) checkNext(cursor, next string) error {
	protocolErr := func(reason string) error {
		return &ProtocolError{Kind: l.kind, Cursor: cursor, Next: next, Reason: reason}
	}

	u, err := url.Parse(next)
	if err != nil {
		return protocolErr("malformed next url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return protocolErr("next url is not http(s)")
	}
	if u.Host == "" {
		return protocolErr("next url has no host")
	}
	if _, seen := l.visited[next]; seen {
		return protocolErr("next url was already visited")
	}
	return nil
}

// All returns the records of every remaining page as a lazy sequence. A page
// is fetched only when the consumer asks for a record past the previous one.
// The sequence stops after yielding the first error.
func (l *Loader) All(ctx context.Context) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		for {
			batch, err := l.Next(ctx)
			if errors.Is(err, ErrExhausted) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range batch.Records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}
