package archiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pevans/archivist/extract"
	"github.com/pevans/archivist/fetcher"
	"github.com/pevans/archivist/logger"
	"github.com/pevans/archivist/store"
)

// Status is what happened to one post.
type Status int

const (
	StatusArchived Status = iota
	// StatusExists means the Markdown file was already on disk; nothing was
	// fetched.
	StatusExists
	StatusPaywalled
	StatusTimeout
	StatusFailed
	// StatusHalted means the fetcher reported a broken session and the
	// batch stopped.
	StatusHalted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusArchived:
		return "archived"
	case StatusExists:
		return "exists"
	case StatusPaywalled:
		return "paywalled"
	case StatusTimeout:
		return "timeout"
	case StatusFailed:
		return "failed"
	case StatusHalted:
		return "halted"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// counts reports whether the post uses up one unit of the run limit.
// Paywalled posts are skipped without counting.
func (s Status) counts() bool {
	return s != StatusPaywalled
}

// Report summarises one Drive call.
type Report struct {
	RunID     uuid.UUID
	Site      string
	Archived  int
	Skipped   int
	Failed    int
	Halted    bool
	Cancelled bool
	// Records are the entries produced by this run.
	Records []store.Record
	// Index is the complete merged index.
	Index []store.Record
}

type outcome struct {
	URL    string
	Status Status
	Path   string
	Record *store.Record
	Err    error
}

// process runs the pipeline for one post. Every failure, including a panic
// in a parser, is converted into the returned outcome.
func (a *Archiver) process(ctx context.Context, url string) (out outcome) {
	mdPath := a.store.MarkdownPath(url)
	htmlPath := a.store.HTMLPath(url)
	out = outcome{URL: url, Path: mdPath}
	log := a.log.With(logger.String("url", url), logger.String("path", mdPath))

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic: %v", r)
			log.Error("failed to archive post", logger.Error(out.Err))
		}
	}()

	if a.store.Exists(mdPath) {
		log.Warn("skipping post, file already exists")
		out.Status = StatusExists
		return out
	}

	if err := a.limiter.Wait(ctx); err != nil {
		out.Status = StatusCancelled
		out.Err = err
		return out
	}

	res := a.fetcher.Fetch(ctx, url)
	switch res.Status {
	case fetcher.StatusOK:
	case fetcher.StatusPaywalled:
		log.Warn("skipping paywalled post")
		out.Status = StatusPaywalled
		return out
	case fetcher.StatusTimeout:
		log.Warn("skipping post, page did not load", logger.Error(res.Err))
		out.Status = StatusTimeout
		out.Err = res.Err
		return out
	case fetcher.StatusHardError:
		log.Error("session failure, stopping run", logger.Error(res.Err))
		out.Status = StatusHalted
		out.Err = res.Err
		return out
	default:
		log.Error("failed to fetch post", logger.Error(res.Err))
		out.Status = StatusFailed
		out.Err = res.Err
		return out
	}

	record, err := a.persist(url, res.HTML, mdPath, htmlPath)
	if err != nil {
		var elErr *extract.ElementError
		if errors.As(err, &elErr) {
			log.Error("skipping post, required element missing", logger.String("field", elErr.Field), logger.Error(err))
		} else {
			log.Error("failed to archive post", logger.Error(err))
		}
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	log.Info("archived post", logger.String("title", record.Title))
	out.Status = StatusArchived
	out.Record = record
	return out
}

// persist extracts the post and writes the HTML mirror rendered from its
// Markdown, then the Markdown itself. The Markdown is the checkpoint, so it
// is written last.
func (a *Archiver) persist(url, html, mdPath, htmlPath string) (*store.Record, error) {
	post, err := a.extractor.Extract(html)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	fragment, err := a.extractor.RenderHTML(post.Markdown)
	if err != nil {
		return nil, err
	}
	page, err := extract.RenderPage(fragment, a.store.StylesheetHref(htmlPath), post.Title)
	if err != nil {
		return nil, err
	}
	if err := a.store.WriteFile(htmlPath, page); err != nil {
		return nil, err
	}

	written, err := a.store.WriteOnce(mdPath, post.Markdown)
	if err != nil {
		return nil, err
	}
	if !written {
		return nil, fmt.Errorf("markdown for %s appeared during the run", url)
	}

	return &store.Record{
		Title:     post.Title,
		Subtitle:  post.Subtitle,
		LikeCount: post.LikeCount,
		Date:      post.Date,
		FileLink:  a.store.Rel(mdPath),
		HTMLLink:  a.store.Rel(htmlPath),
	}, nil
}
