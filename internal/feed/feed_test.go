package feed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookfeed/internal/api/nyt"
	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/models"
)

func TestFromBestsellers(t *testing.T) {
	entries := []nyt.Entry{
		{Title: "THE WOMEN", Author: "Kristin Hannah", BookImage: "https://img/women.jpg", PrimaryISBN10: "1250178630",
			AmazonProductURL: "https://amazon/women", WeeksOnList: 30, Description: "A nurse in Vietnam."},
		{Title: "", Author: "Nobody"},
		{Title: "NO IMAGE", Author: "Someone", PrimaryISBN13: "9780000000000"},
	}

	books, report := FromBestsellers(entries)
	require.Len(t, books, 2)
	assert.Equal(t, models.Book{
		Title:       "THE WOMEN",
		Author:      "Kristin Hannah",
		ImageURL:    "https://img/women.jpg",
		ISBN:        "1250178630",
		Source:      models.SourceBestseller,
		Description: "A nurse in Vietnam.",
		ProductURL:  "https://amazon/women",
		WeeksOnList: 30,
	}, books[0])
	assert.Equal(t, "9780000000000", books[1].ISBN)

	assert.Equal(t, 3, report.Seen)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 1, report.Discarded[DiscardMissingTitle])
}

func TestFromCommentsOrderAndEnrichment(t *testing.T) {
	var looked []string
	enricher := EnricherFunc(func(ctx context.Context, title string) models.Enrichment {
		looked = append(looked, title)
		if title == "circe" {
			return models.Enrichment{}
		}
		return models.Enrichment{ImageURL: "https://covers/" + title, ISBN: "isbn-" + title}
	})

	// newest first, as the source returns them
	bodies := []string{
		"Reading: Babel by R. F. Kuang",
		"Nothing for me this week",
		"Finished: Circe by Madeline Miller",
		"Started reading: Project Hail Mary by Andy Weir",
	}

	n := NewNormalizer(enricher, 0, logger.Nop())
	books, report := n.FromComments(context.Background(), bodies)

	require.Len(t, books, 3)
	assert.Equal(t, []string{"project hail mary", "circe", "babel"}, looked)
	assert.Equal(t, "project hail mary", books[0].Title)
	assert.Equal(t, "https://covers/project hail mary", books[0].ImageURL)
	assert.Equal(t, "isbn-project hail mary", books[0].ISBN)
	assert.Empty(t, books[1].ImageURL)
	assert.Equal(t, "babel", books[2].Title)

	assert.Equal(t, 4, report.Seen)
	assert.Equal(t, 3, report.Accepted)
	assert.Equal(t, 1, report.Discarded[DiscardMissingTitle])

	assert.Equal(t, "Reading: Babel by R. F. Kuang", bodies[0], "input must not be reordered in place")
}

func TestFromCommentsLimit(t *testing.T) {
	var bodies []string
	for i := 0; i < 45; i++ {
		bodies = append(bodies, fmt.Sprintf("Book %d by Author %d", i, i))
	}

	calls := 0
	enricher := EnricherFunc(func(ctx context.Context, title string) models.Enrichment {
		calls++
		return models.Enrichment{}
	})

	books, report := NewNormalizer(enricher, 0, logger.Nop()).FromComments(context.Background(), bodies)
	require.Len(t, books, DefaultMaxThreadBooks)
	assert.Equal(t, DefaultMaxThreadBooks, calls)
	assert.Equal(t, "book 44", books[0].Title)
	assert.Equal(t, 15, report.Discarded[DiscardOverLimit])
	assert.Equal(t, 45, report.Seen)

	books, _ = NewNormalizer(nil, 5, logger.Nop()).FromComments(context.Background(), bodies)
	assert.Len(t, books, 5)
}

func TestFromCommentsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	books, report := NewNormalizer(nil, 0, logger.Nop()).FromComments(ctx, []string{"A by B"})
	assert.Empty(t, books)
	assert.Equal(t, 0, report.Accepted)
	assert.Equal(t, 1, report.Seen)
	assert.Equal(t, 1, report.Discarded[DiscardCancelled])
}

func TestFromCommentsCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bodies := []string{"E by V", "D by W", "C by X", "B by Y", "A by Z"}
	calls := 0
	enricher := EnricherFunc(func(ctx context.Context, title string) models.Enrichment {
		calls++
		if calls == 2 {
			cancel()
		}
		return models.Enrichment{}
	})

	books, report := NewNormalizer(enricher, 0, logger.Nop()).FromComments(ctx, bodies)
	require.Len(t, books, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, len(bodies), report.Seen)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 3, report.Discarded[DiscardCancelled])
}

func TestDeliverable(t *testing.T) {
	books := []models.Book{
		{Title: "a", ImageURL: "https://img/a"},
		{Title: "b"},
		{Title: "c", ImageURL: "https://img/c"},
		{Title: "d"},
	}

	out, report := Deliverable(books)
	assert.Equal(t, []models.Book{books[0], books[2]}, out)
	assert.Equal(t, 2, report.Discarded[DiscardMissingImage])
	assert.Equal(t, 2, report.TotalDiscarded())

	for _, b := range out {
		assert.NotEmpty(t, b.ImageURL)
	}
}

func TestDeliverableSubsetProperty(t *testing.T) {
	for n := 0; n < 50; n++ {
		var books []models.Book
		withImage := 0
		for i := 0; i < n; i++ {
			b := models.Book{Title: fmt.Sprint(i)}
			if (i*7+n)%3 != 0 {
				b.ImageURL = "https://img/" + b.Title
				withImage++
			}
			books = append(books, b)
		}
		out, report := Deliverable(books)
		assert.Len(t, out, withImage)
		assert.Equal(t, n-withImage, report.Discarded[DiscardMissingImage])
		for _, b := range out {
			assert.True(t, b.Deliverable())
		}
	}
}

func TestReportFields(t *testing.T) {
	r := Report{Seen: 5, Accepted: 3, Discarded: map[DiscardReason]int{DiscardMissingImage: 2}}
	f := r.Fields()
	assert.Equal(t, 5, f["seen"])
	assert.Equal(t, 2, f["discarded"])
	assert.Equal(t, 2, f["discarded_missing_image"])
}
