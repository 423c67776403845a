// Package bot runs the bestseller, thread and digest jobs end to end.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drallgood/bookfeed/internal/api/nyt"
	"github.com/drallgood/bookfeed/internal/delivery"
	"github.com/drallgood/bookfeed/internal/feed"
	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/models"
)

// ErrUnknownJob is returned by Run for a job name it does not know
var ErrUnknownJob = errors.New("unknown job")

// BestsellerSource fetches bestseller list entries
type BestsellerSource interface {
	Bestsellers(ctx context.Context, lists []string) ([]nyt.Entry, error)
}

// ThreadSource finds the reading thread and returns its comments newest-first
type ThreadSource interface {
	FindThread(ctx context.Context, subreddit, title string) (string, error)
	Comments(ctx context.Context, threadID string, limit int) ([]string, error)
}

// MessageSender posts plain text
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
}

// Deliverer posts books as albums
type Deliverer interface {
	Deliver(ctx context.Context, books []models.Book) (*delivery.Report, error)
}

// Options are the per-job settings
type Options struct {
	ChatID       string
	Lists        []string
	Subreddit    string
	ThreadTitle  string
	ThreadID     string
	CommentLimit int
}

// Deps wires a Service. Nil sources disable the jobs that need them.
type Deps struct {
	Bestsellers        BestsellerSource
	Thread             ThreadSource
	Normalizer         *feed.Normalizer
	Messages           MessageSender
	BestsellerDelivery Deliverer
	ThreadDelivery     Deliverer
}

// Summary describes one job run
type Summary struct {
	Job       string
	Normalize feed.Report
	Filter    feed.Report
	Delivery  *delivery.Report
	Duration  time.Duration
}

// Fields renders the summary for structured logging
func (s Summary) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"job":         s.Job,
		"duration_ms": s.Duration.Milliseconds(),
	}
	for k, v := range s.Normalize.Fields() {
		f["normalize_"+k] = v
	}
	for k, v := range s.Filter.Fields() {
		f["filter_"+k] = v
	}
	if s.Delivery != nil {
		for k, v := range s.Delivery.Fields() {
			f[k] = v
		}
	}
	return f
}

// Service holds the collaborators for every job
type Service struct {
	deps   Deps
	opts   Options
	logger *logger.Logger
}

// logFor prefers the job logger carried by ctx
func (s *Service) logFor(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, s.logger).Component("bot")
}

// NewService creates a Service
func NewService(deps Deps, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	return &Service{deps: deps, opts: opts, logger: log}
}

// Run dispatches a job by name
func (s *Service) Run(ctx context.Context, job string) (Summary, error) {
	switch job {
	case "bestsellers":
		return s.RunBestsellers(ctx)
	case "thread":
		return s.RunThread(ctx)
	case "digest":
		return s.RunDigest(ctx)
	}
	return Summary{Job: job}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
}

// RunBestsellers posts the current bestseller lists as albums
func (s *Service) RunBestsellers(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{Job: "bestsellers"}
	if s.deps.Bestsellers == nil || s.deps.BestsellerDelivery == nil {
		return summary, errors.New("bestsellers job is not configured")
	}

	entries, err := s.deps.Bestsellers.Bestsellers(ctx, s.opts.Lists)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch bestsellers: %w", err)
	}

	books, report := feed.FromBestsellers(entries)
	summary.Normalize = report

	err = s.deliver(ctx, s.deps.BestsellerDelivery, books, &summary)
	summary.Duration = time.Since(start)
	s.logSummary(ctx, summary, err)
	return summary, err
}

// RunThread posts the books mentioned in the latest reading thread
func (s *Service) RunThread(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{Job: "thread"}
	if s.deps.Thread == nil || s.deps.Normalizer == nil || s.deps.ThreadDelivery == nil {
		return summary, errors.New("thread job is not configured")
	}

	threadID := s.opts.ThreadID
	if threadID == "" {
		id, err := s.deps.Thread.FindThread(ctx, s.opts.Subreddit, s.opts.ThreadTitle)
		if err != nil {
			return summary, fmt.Errorf("failed to find thread: %w", err)
		}
		threadID = id
	}
	s.logFor(ctx).Info("Reading thread", map[string]interface{}{"thread_id": threadID})

	bodies, err := s.deps.Thread.Comments(ctx, threadID, s.opts.CommentLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch comments: %w", err)
	}

	books, report := s.deps.Normalizer.FromComments(ctx, bodies)
	summary.Normalize = report
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	err = s.deliver(ctx, s.deps.ThreadDelivery, books, &summary)
	summary.Duration = time.Since(start)
	s.logSummary(ctx, summary, err)
	return summary, err
}

// RunDigest sends the bestseller lists as one plain text message
func (s *Service) RunDigest(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{Job: "digest"}
	if s.deps.Bestsellers == nil || s.deps.Messages == nil {
		return summary, errors.New("digest job is not configured")
	}

	entries, err := s.deps.Bestsellers.Bestsellers(ctx, s.opts.Lists)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch bestsellers: %w", err)
	}
	books, report := feed.FromBestsellers(entries)
	summary.Normalize = report

	if len(books) > 0 {
		err = s.deps.Messages.SendMessage(ctx, s.opts.ChatID, FormatDigest(books), "")
		if err != nil {
			err = fmt.Errorf("failed to send digest: %w", err)
		}
	}
	summary.Duration = time.Since(start)
	s.logSummary(ctx, summary, err)
	return summary, err
}

func (s *Service) deliver(ctx context.Context, d Deliverer, books []models.Book, summary *Summary) error {
	deliverable, filter := feed.Deliverable(books)
	summary.Filter = filter

	report, err := d.Deliver(ctx, deliverable)
	summary.Delivery = report
	if err != nil {
		return fmt.Errorf("failed to deliver books: %w", err)
	}
	return nil
}

func (s *Service) logSummary(ctx context.Context, summary Summary, err error) {
	log := s.logFor(ctx)
	fields := summary.Fields()
	if err != nil {
		fields["error"] = err.Error()
		log.Error("Job failed", fields)
		return
	}
	log.Info("Job complete", fields)
}

// FormatDigest renders books as a plain text digest, one block per book
func FormatDigest(books []models.Book) string {
	blocks := make([]string, 0, len(books))
	for _, b := range books {
		var sb strings.Builder
		sb.WriteString(b.Author + "\n")
		sb.WriteString(b.Title + "\n\n")
		if b.Description != "" {
			sb.WriteString(b.Description + "\n")
		}
		if b.ProductURL != "" {
			sb.WriteString(b.ProductURL + "\n")
		}
		if b.ImageURL != "" {
			sb.WriteString("\n" + b.ImageURL + "\n")
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n")
}
