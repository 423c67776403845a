package feed

import (
	"context"
	"strings"

	"github.com/drallgood/bookfeed/internal/cache"
	"github.com/drallgood/bookfeed/internal/models"
)

// CachedEnricher remembers lookups by normalized title, so a title mentioned
// in several comments is looked up once. Results from a cancelled context
// are not stored.
func CachedEnricher(next Enricher, c cache.Cache[string, models.Enrichment]) Enricher {
	return EnricherFunc(func(ctx context.Context, title string) models.Enrichment {
		key := strings.ToLower(strings.TrimSpace(title))
		e, _ := cache.GetOrLoad(c, key, 0, func() (models.Enrichment, error) {
			e := next.Enrich(ctx, title)
			return e, ctx.Err()
		})
		return e
	})
}
