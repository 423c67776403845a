// Package delivery posts Book records to a chat as batched photo albums.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/drallgood/bookfeed/internal/api/telegram"
	"github.com/drallgood/bookfeed/internal/chunk"
	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/models"
)

// Mode selects how images reach the endpoint
type Mode string

const (
	// ModeDownload fetches every image and uploads the bytes
	ModeDownload Mode = "download"
	// ModeLink passes image URLs and paces sends
	ModeLink Mode = "link"
)

// FailurePolicy decides what a failed batch does to the run
type FailurePolicy string

const (
	PolicyDefault  FailurePolicy = ""
	PolicyAbort    FailurePolicy = "abort"
	PolicyContinue FailurePolicy = "continue"
)

const (
	DownloadBatchSize = 10
	LinkBatchSize     = 5
	DefaultPaceDelay  = 3 * time.Second

	captionPattern = "https://www.goodreads.com/search?q=%s"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeDownload:
		return ModeDownload, nil
	case ModeLink:
		return ModeLink, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q", s)
}

// ParsePolicy validates a policy name. The empty string selects the mode default.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(s)) {
	case PolicyDefault:
		return PolicyDefault, nil
	case PolicyAbort:
		return PolicyAbort, nil
	case PolicyContinue:
		return PolicyContinue, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// MediaSender submits one album to a chat
type MediaSender interface {
	SendMediaGroup(ctx context.Context, chatID string, photos []telegram.InputPhoto) error
}

// ImageFetcher downloads image bytes
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config controls a Pipeline
type Config struct {
	ChatID string
	Mode   Mode
	// BatchSize overrides the mode's batch size when positive
	BatchSize int
	// PaceDelay is the pause after each link-mode send. Zero selects DefaultPaceDelay, negative disables it.
	PaceDelay time.Duration
	// Policy overrides the mode's failure policy
	Policy FailurePolicy
}

// BatchError ties a failure to the batch it happened in
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// BatchResult records the outcome of one album
type BatchResult struct {
	Index int
	Size  int
	Err   error
}

// Report summarises a delivery
type Report struct {
	Batches []BatchResult
	Sent    int
	Failed  int
}

// Fields renders the report for structured logging
func (r *Report) Fields() map[string]interface{} {
	return map[string]interface{}{
		"batches":        len(r.Batches),
		"books_sent":     r.Sent,
		"books_failed":   r.Failed,
		"batches_failed": r.FailedBatches(),
	}
}

// FailedBatches counts batches with an error
func (r *Report) FailedBatches() int {
	n := 0
	for _, b := range r.Batches {
		if b.Err != nil {
			n++
		}
	}
	return n
}

// Pipeline chunks books and posts each chunk as one album, in order
type Pipeline struct {
	sender  MediaSender
	fetcher ImageFetcher
	cfg     Config
	logger  *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a Pipeline. fetcher is required for ModeDownload.
func NewPipeline(sender MediaSender, fetcher ImageFetcher, cfg Config, log *logger.Logger) (*Pipeline, error) {
	if sender == nil {
		return nil, errors.New("media sender is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLink
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.Mode == ModeDownload && fetcher == nil {
		return nil, errors.New("download mode requires an image fetcher")
	}
	if cfg.BatchSize > telegram.MaxMediaGroupSize {
		return nil, fmt.Errorf("batch size %d exceeds album limit %d", cfg.BatchSize, telegram.MaxMediaGroupSize)
	}
	if cfg.PaceDelay == 0 {
		cfg.PaceDelay = DefaultPaceDelay
	}
	if log == nil {
		log = logger.Get()
	}
	return &Pipeline{
		sender:  sender,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  log,
		sleep:   sleepContext,
	}, nil
}

// BatchSize is the album size in effect
func (p *Pipeline) BatchSize() int {
	if p.cfg.BatchSize > 0 {
		return p.cfg.BatchSize
	}
	if p.cfg.Mode == ModeDownload {
		return DownloadBatchSize
	}
	return LinkBatchSize
}

// Policy is the failure policy in effect. Link mode tolerates failed
// batches; download mode aborts on the first failure.
func (p *Pipeline) Policy() FailurePolicy {
	if p.cfg.Policy != PolicyDefault {
		return p.cfg.Policy
	}
	if p.cfg.Mode == ModeDownload {
		return PolicyAbort
	}
	return PolicyContinue
}

// Caption builds the search link shown under a photo
func Caption(b models.Book) string {
	q := b.ISBN
	if q == "" {
		q = b.Title
	}
	return fmt.Sprintf(captionPattern, url.QueryEscape(q))
}

// Deliver posts books in albums. Books without an image are skipped. In
// download mode every image is fetched before the first album is sent, so an
// aborting fetch failure posts nothing. Under PolicyAbort the first failure
// ends the run and is returned; under PolicyContinue failures are recorded in
// the report and the run goes on. Link mode pauses after each successful send.
func (p *Pipeline) Deliver(ctx context.Context, books []models.Book) (*Report, error) {
	report := &Report{}

	deliverable := make([]models.Book, 0, len(books))
	for _, b := range books {
		if b.Deliverable() {
			deliverable = append(deliverable, b)
		}
	}

	log := logger.FromContext(ctx, p.logger).Component("delivery")
	policy := p.Policy()
	size := p.BatchSize()
	log.Info("Delivering books", map[string]interface{}{
		"books":      len(deliverable),
		"mode":       string(p.cfg.Mode),
		"batch_size": size,
		"policy":     string(policy),
	})

	items := make([]item, len(deliverable))
	for i, b := range deliverable {
		items[i].photo = telegram.InputPhoto{URL: b.ImageURL, Caption: Caption(b)}
		if p.cfg.Mode != ModeDownload {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data, err := p.fetcher.Fetch(ctx, b.ImageURL)
		if err != nil {
			err = fmt.Errorf("fetch image for %q: %w", b.Title, err)
			if policy == PolicyAbort {
				report.Failed = len(deliverable)
				log.Error("Failed to fetch book image, nothing sent", map[string]interface{}{
					"title": b.Title,
					"error": err.Error(),
				})
				return report, &BatchError{Index: i/size + 1, Err: err}
			}
			items[i].err = err
			continue
		}
		items[i].photo.Data = data
	}

	batches, err := chunk.Batches(items, size)
	if err != nil {
		return report, err
	}

	index := 0
	for batch := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		index++

		err := p.sendBatch(ctx, batch)
		report.Batches = append(report.Batches, BatchResult{Index: index, Size: len(batch), Err: err})
		if err != nil {
			report.Failed += len(batch)
			log.Error("Failed to send book images", map[string]interface{}{
				"batch": index,
				"size":  len(batch),
				"error": err.Error(),
			})
			if policy == PolicyAbort {
				return report, &BatchError{Index: index, Err: err}
			}
			continue
		}

		report.Sent += len(batch)
		log.Debug("Sent batch", map[string]interface{}{
			"batch": index,
			"size":  len(batch),
		})
		if p.cfg.Mode == ModeLink && p.cfg.PaceDelay > 0 {
			if err := p.sleep(ctx, p.cfg.PaceDelay); err != nil {
				return report, err
			}
		}
	}

	log.Info("Delivery complete", report.Fields())
	return report, nil
}

// item is a prepared album entry; err is a fetch failure kept under PolicyContinue
type item struct {
	photo telegram.InputPhoto
	err   error
}

func (p *Pipeline) sendBatch(ctx context.Context, batch []item) error {
	photos := make([]telegram.InputPhoto, 0, len(batch))
	for _, it := range batch {
		if it.err != nil {
			return it.err
		}
		photos = append(photos, it.photo)
	}
	return p.sender.SendMediaGroup(ctx, p.cfg.ChatID, photos)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
