// Package feed normalizes source records into Book values.
//
// Records missing a required field are dropped rather than reported as
// errors (best-effort filtering). Every drop is counted in a Report by reason.
package feed

import (
	"context"
	"slices"

	"github.com/drallgood/bookfeed/internal/api/nyt"
	"github.com/drallgood/bookfeed/internal/comment"
	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/models"
)

// DefaultMaxThreadBooks caps how many thread records one run accepts
const DefaultMaxThreadBooks = 30

// DiscardReason names why a record was dropped
type DiscardReason string

const (
	DiscardMissingTitle DiscardReason = "missing_title"
	DiscardMissingImage DiscardReason = "missing_image"
	DiscardOverLimit    DiscardReason = "over_limit"
	DiscardCancelled    DiscardReason = "cancelled"
)

// Report counts what a normalization or filtering step kept and dropped
type Report struct {
	Seen      int
	Accepted  int
	Discarded map[DiscardReason]int
}

func newReport() Report {
	return Report{Discarded: map[DiscardReason]int{}}
}

func (r *Report) discard(reason DiscardReason) {
	if r.Discarded == nil {
		r.Discarded = map[DiscardReason]int{}
	}
	r.Discarded[reason]++
}

// TotalDiscarded sums all discard reasons
func (r Report) TotalDiscarded() int {
	n := 0
	for _, c := range r.Discarded {
		n += c
	}
	return n
}

// Fields renders the report for structured logging
func (r Report) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"seen":      r.Seen,
		"accepted":  r.Accepted,
		"discarded": r.TotalDiscarded(),
	}
	for reason, n := range r.Discarded {
		f["discarded_"+string(reason)] = n
	}
	return f
}

// FromBestsellers converts list entries. They already carry an image and an
// ISBN, so no enrichment happens; entries without a title are dropped.
func FromBestsellers(entries []nyt.Entry) ([]models.Book, Report) {
	report := newReport()
	books := make([]models.Book, 0, len(entries))
	for _, e := range entries {
		report.Seen++
		if e.Title == "" {
			report.discard(DiscardMissingTitle)
			continue
		}
		isbn := e.PrimaryISBN10
		if isbn == "" {
			isbn = e.PrimaryISBN13
		}
		books = append(books, models.Book{
			Title:       e.Title,
			Author:      e.Author,
			ImageURL:    e.BookImage,
			ISBN:        isbn,
			Source:      models.SourceBestseller,
			Description: e.Description,
			ProductURL:  e.AmazonProductURL,
			WeeksOnList: e.WeeksOnList,
		})
		report.Accepted++
	}
	return books, report
}

// Enricher recovers cover and ISBN for a title. Implementations must not fail;
// an unknown title yields an empty Enrichment.
type Enricher interface {
	Enrich(ctx context.Context, title string) models.Enrichment
}

// EnricherFunc adapts a function to Enricher
type EnricherFunc func(ctx context.Context, title string) models.Enrichment

func (f EnricherFunc) Enrich(ctx context.Context, title string) models.Enrichment {
	return f(ctx, title)
}

// Normalizer turns thread comments into enriched Book records
type Normalizer struct {
	enricher Enricher
	maxBooks int
	logger   *logger.Logger
}

// NewNormalizer creates a Normalizer. maxBooks <= 0 selects DefaultMaxThreadBooks.
// A nil enricher disables enrichment.
func NewNormalizer(enricher Enricher, maxBooks int, log *logger.Logger) *Normalizer {
	if maxBooks <= 0 {
		maxBooks = DefaultMaxThreadBooks
	}
	if log == nil {
		log = logger.Get()
	}
	return &Normalizer{enricher: enricher, maxBooks: maxBooks, logger: log.Component("feed")}
}

// FromComments parses bodies, given newest first, in oldest-first order. Each
// parsed record is enriched before the next comment is read. Accepting stops
// once maxBooks records are collected or ctx is done; the unread comments
// are still counted as seen.
func (n *Normalizer) FromComments(ctx context.Context, bodies []string) ([]models.Book, Report) {
	report := newReport()
	ordered := slices.Clone(bodies)
	slices.Reverse(ordered)

	var books []models.Book
	for i, body := range ordered {
		if len(books) == n.maxBooks {
			n.skipRest(&report, ordered[i:], DiscardOverLimit)
			break
		}
		if ctx.Err() != nil {
			n.skipRest(&report, ordered[i:], DiscardCancelled)
			break
		}
		report.Seen++

		book, ok := comment.Parse(body)
		if !ok {
			report.discard(DiscardMissingTitle)
			continue
		}
		if n.enricher != nil {
			book.Apply(n.enricher.Enrich(ctx, book.Title))
		}
		books = append(books, book)
		report.Accepted++
	}

	n.logger.Info("Normalized thread comments", report.Fields())
	return books, report
}

func (n *Normalizer) skipRest(report *Report, rest []string, reason DiscardReason) {
	for range rest {
		report.Seen++
		report.discard(reason)
	}
}

// Deliverable keeps the books that have an image, preserving order
func Deliverable(books []models.Book) ([]models.Book, Report) {
	report := newReport()
	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		report.Seen++
		if !b.Deliverable() {
			report.discard(DiscardMissingImage)
			continue
		}
		out = append(out, b)
		report.Accepted++
	}
	return out, report
}
