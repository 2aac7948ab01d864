package archiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pevans/archivist/config"
	"github.com/pevans/archivist/discovery"
	"github.com/pevans/archivist/extract"
	"github.com/pevans/archivist/fetcher"
	"github.com/pevans/archivist/journal"
	"github.com/pevans/archivist/logger"
	"github.com/pevans/archivist/store"
)

// Discoverer resolves the post URLs of a site.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// Extractor turns a page into a post and renders its Markdown as HTML.
type Extractor interface {
	Extract(html string) (*extract.Post, error)
	RenderHTML(markdown string) (string, error)
}

// Journal records run history.
type Journal interface {
	StartRun(site, mode string) (uuid.UUID, error)
	RecordOutcome(runID uuid.UUID, url, status, path string, err error) error
	FinishRun(runID uuid.UUID, totals journal.Totals) error
}

// Archiver archives one site.
type Archiver struct {
	cfg        config.Config
	fetcher    fetcher.Fetcher
	store      *store.Store
	discoverer Discoverer
	extractor  Extractor
	journal    Journal
	limiter    *rate.Limiter
	log        logger.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Archiver) { a.log = logger.OrNop(log) }
}

// WithJournal records every run in j.
func WithJournal(j Journal) Option {
	return func(a *Archiver) { a.journal = j }
}

// WithDiscoverer replaces the HTTP discoverer.
func WithDiscoverer(d Discoverer) Option {
	return func(a *Archiver) { a.discoverer = d }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e Extractor) Option {
	return func(a *Archiver) { a.extractor = e }
}

// WithLimiter replaces the pacing limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(a *Archiver) { a.limiter = l }
}

// New creates an Archiver for cfg.BaseURL that fetches through f. The site
// directory is created under cfg.OutputDir.
func New(cfg config.Config, f fetcher.Fetcher, opts ...Option) (*Archiver, error) {
	if f == nil {
		return nil, errors.New("archiver: fetcher is required")
	}

	a := &Archiver{
		cfg:     cfg,
		fetcher: f,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	st, err := store.New(cfg.OutputDir, cfg.BaseURL, a.log)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.log = a.log.With(logger.String("site", st.Site()))

	if a.discoverer == nil {
		a.discoverer = discovery.New(cfg.DiscoveryOptions(), a.log)
	}
	if a.extractor == nil {
		a.extractor = extract.New(cfg.ExtractSelectors)
	}
	if a.limiter == nil {
		a.limiter = NewLimiter(cfg)
	}

	return a, nil
}

// NewLimiter paces fetches at one per cfg.FetchInterval. A zero interval
// disables pacing.
func NewLimiter(cfg config.Config) *rate.Limiter {
	if cfg.FetchInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(cfg.FetchInterval), 1)
}

// Store is the site archive.
func (a *Archiver) Store() *store.Store {
	return a.store
}

// Run discovers the site's posts and archives them. Discovery failure is
// logged and the batch proceeds with zero posts.
func (a *Archiver) Run(ctx context.Context) (*Report, error) {
	urls, err := a.discoverer.Discover(ctx, a.cfg.BaseURL)
	if err != nil {
		a.log.Warn("discovery found no posts", logger.Error(err))
		urls = nil
	}
	return a.Drive(ctx, urls, a.cfg.Limit)
}

// Drive archives urls in order, processing at most limit posts (0 means
// all). Per-post failures are counted in the report, never returned. Each
// archived post is merged into the index immediately; the final merge and
// the index page run even when the loop stops early, and an error is
// returned only when that final step fails.
func (a *Archiver) Drive(ctx context.Context, urls []string, limit int) (*Report, error) {
	report := &Report{Site: a.store.Site(), Records: []store.Record{}}
	report.RunID = a.startRun()

	if err := a.store.EnsureStylesheet(); err != nil {
		a.log.Warn("failed to write stylesheet", logger.Error(err))
	}

	processed := 0
	for _, url := range urls {
		if limit > 0 && processed >= limit {
			break
		}
		if ctx.Err() != nil {
			a.log.Warn("run cancelled", logger.Error(ctx.Err()))
			report.Cancelled = true
			break
		}

		out := a.process(ctx, url)
		a.recordOutcome(report.RunID, out)

		switch out.Status {
		case StatusArchived:
			report.Archived++
			report.Records = append(report.Records, *out.Record)
			// Index now so a killed run leaves no unindexed Markdown file.
			if _, err := a.store.MergeIndex([]store.Record{*out.Record}); err != nil {
				a.log.Warn("failed to update index", logger.String("url", url), logger.Error(err))
			}
		case StatusExists, StatusTimeout, StatusPaywalled:
			report.Skipped++
		case StatusFailed:
			report.Failed++
		case StatusHalted:
			report.Halted = true
		case StatusCancelled:
			report.Cancelled = true
		}

		if report.Halted || report.Cancelled {
			break
		}
		if out.Status.counts() {
			processed++
		}
	}

	index, err := a.store.MergeIndex(report.Records)
	if err != nil {
		a.finishRun(report)
		return report, fmt.Errorf("failed to save index: %w", err)
	}
	report.Index = index

	if err := a.store.WriteIndexPage(index); err != nil {
		a.finishRun(report)
		return report, err
	}

	a.finishRun(report)
	a.log.Info("run complete",
		logger.String("run_id", report.RunID.String()),
		logger.Int("archived", report.Archived),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", report.Failed),
		logger.Bool("halted", report.Halted),
		logger.Int("indexed", len(index)),
	)
	return report, nil
}

func (a *Archiver) startRun() uuid.UUID {
	if a.journal == nil {
		return uuid.New()
	}
	id, err := a.journal.StartRun(a.store.Site(), a.cfg.Mode())
	if err != nil {
		a.log.Warn("failed to record run start", logger.Error(err))
		return uuid.New()
	}
	return id
}

func (a *Archiver) recordOutcome(runID uuid.UUID, out outcome) {
	if a.journal == nil {
		return
	}
	if err := a.journal.RecordOutcome(runID, out.URL, out.Status.String(), a.store.Rel(out.Path), out.Err); err != nil {
		a.log.Warn("failed to record outcome", logger.String("url", out.URL), logger.Error(err))
	}
}

func (a *Archiver) finishRun(r *Report) {
	if a.journal == nil {
		return
	}
	err := a.journal.FinishRun(r.RunID, journal.Totals{
		Archived: r.Archived,
		Skipped:  r.Skipped,
		Failed:   r.Failed,
		Halted:   r.Halted,
	})
	if err != nil {
		a.log.Warn("failed to record run end", logger.Error(err))
	}
}
