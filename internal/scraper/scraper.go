// Package scraper orchestrates a scrape run: fetch category pages,
// extract listings, enrich from detail pages, embed images, normalize
// and persist. Sites run sequentially and in isolation; one broken site
// never stops the run.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
	"github.com/wearly-labs/stylefeed/internal/extractor"
	"github.com/wearly-labs/stylefeed/internal/fetcher"
	"github.com/wearly-labs/stylefeed/internal/metrics"
	"github.com/wearly-labs/stylefeed/internal/normalizer"
)

// fetcherFactory resolves the fetcher for a site's mode.
type fetcherFactory interface {
	ForSite(site domain.Site) fetcher.Fetcher
}

// ProductStore is the persistence surface the runner needs.
type ProductStore interface {
	Upsert(ctx context.Context, products []domain.Product) (domain.UpsertResult, error)
	Count(ctx context.Context, source string) (int64, error)
}

// Options controls one run.
type Options struct {
	Sync  bool // persist to the database
	Limit int  // max listings processed per site; 0 means no limit
}

// Summary is the per-site outcome of a run. Reasons holds counts keyed by
// strings like "embedding_download" or "missing_title"; every product that
// did not end up persisted with an embedding is accounted for somewhere.
type Summary struct {
	Site      string
	Attempted int
	Succeeded int
	Failed    int
	Inserted  int
	Updated   int
	Reasons   map[string]int
	Err       error
}

// Runner drives the pipeline over a site catalog.
type Runner struct {
	sites       map[string]domain.Site
	fetchers    fetcherFactory
	embedder    domain.ImageEmbedder
	store       ProductStore
	metrics     *metrics.Pipeline
	logger      *zap.Logger
	maxRetries  int
	backoffBase time.Duration
}

// RunnerConfig holds the runner dependencies.
type RunnerConfig struct {
	Sites       map[string]domain.Site
	Fetchers    fetcherFactory
	Embedder    domain.ImageEmbedder
	Store       ProductStore // may be nil when Sync is never requested
	Metrics     *metrics.Pipeline
	Logger      *zap.Logger
	MaxRetries  int
	BackoffBase time.Duration // grows linearly with the attempt number
}

// NewRunner creates a scrape runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Runner{
		sites:       cfg.Sites,
		fetchers:    cfg.Fetchers,
		embedder:    cfg.Embedder,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
	}
}

// Run processes the named sites in order. "all" expands to every site in
// the catalog, sorted by source for a stable run order. Returns one
// Summary per site; the error is non-nil only when the context ends the
// run early.
func (r *Runner) Run(ctx context.Context, siteNames []string, opts Options) ([]Summary, error) {
	names := r.expandSites(siteNames)

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}

		summary := r.runSite(ctx, name, opts)
		r.logSummary(summary)
		summaries = append(summaries, summary)
	}
	return summaries, ctx.Err()
}

func (r *Runner) expandSites(siteNames []string) []string {
	for _, name := range siteNames {
		if name == "all" {
			all := make([]string, 0, len(r.sites))
			for key := range r.sites {
				all = append(all, key)
			}
			sort.Strings(all)
			return all
		}
	}
	return siteNames
}

func (r *Runner) runSite(ctx context.Context, name string, opts Options) Summary {
	summary := Summary{Site: name, Reasons: map[string]int{}}

	site, ok := r.sites[name]
	if !ok {
		summary.Err = fmt.Errorf("%w: %s", domain.ErrSiteNotFound, name)
		return summary
	}

	f := r.fetchers.ForSite(site)
	log := r.logger.With(zap.String("site", site.Source))

	var products []domain.Product
	remaining := opts.Limit

	for _, category := range site.Categories {
		if err := ctx.Err(); err != nil {
			summary.Err = err
			return summary
		}
		if opts.Limit > 0 && remaining <= 0 {
			break
		}

		raws, err := r.fetchCategory(ctx, f, site, category)
		if err != nil {
			// A category that cannot be listed means the site config or
			// the site itself changed; the whole site needs attention.
			summary.Err = fmt.Errorf("category %s: %w", category.Name, err)
			return summary
		}

		log.Info("Category extracted",
			zap.String("category", category.Name),
			zap.Int("listings", len(raws)),
		)

		if opts.Limit > 0 && len(raws) > remaining {
			raws = raws[:remaining]
		}
		remaining -= len(raws)

		for _, raw := range raws {
			if err := ctx.Err(); err != nil {
				summary.Err = err
				return summary
			}

			summary.Attempted++
			product, reason, ok := r.processListing(ctx, f, site, raw, &summary)
			if !ok {
				summary.Failed++
				summary.Reasons[reason]++
				r.incOutcome(site.Source, "dropped")
				continue
			}
			products = append(products, product)
		}
	}

	summary.Succeeded = len(products)

	if opts.Sync && len(products) > 0 {
		r.syncProducts(ctx, site, products, &summary)
	} else {
		r.addOutcome(site.Source, "collected", len(products))
	}

	return summary
}

// processListing turns one listing into a persisted-ready product. A
// false return means the product is dropped; reason says why. Embedding
// failures do not drop the product, they only leave the vector nil.
func (r *Runner) processListing(
	ctx context.Context,
	f fetcher.Fetcher,
	site domain.Site,
	listing domain.RawProduct,
	summary *Summary,
) (domain.Product, string, bool) {
	merged := r.enrichFromDetail(ctx, f, site, listing)

	var vec domain.Vector
	if merged.ImageURL != "" && r.embedder != nil {
		embedded, err := r.embedder.Embed(ctx, merged.ImageURL)
		if err != nil {
			summary.Reasons[embedReason(err)]++
			r.logger.Warn("Embedding failed, keeping product without vector",
				zap.String("site", site.Source),
				zap.String("image_url", merged.ImageURL),
				zap.Error(err),
			)
		} else {
			vec = embedded
		}
	}

	product, err := normalizer.Normalize(merged, vec, site)
	if err != nil {
		var normErr *domain.NormalizationError
		if errors.As(err, &normErr) {
			return domain.Product{}, "missing_" + normErr.Field, false
		}
		return domain.Product{}, "normalize", false
	}

	r.logger.Debug("Product normalized",
		zap.String("site", site.Source),
		zap.String("product", normalizer.Describe(product)),
	)
	return product, "", true
}

// enrichFromDetail fetches and merges the product's own page. The detail
// page is optional enrichment: after the retry budget is spent the
// listing fields alone go forward.
func (r *Runner) enrichFromDetail(
	ctx context.Context,
	f fetcher.Fetcher,
	site domain.Site,
	listing domain.RawProduct,
) domain.RawProduct {
	if listing.ProductURL == "" {
		return listing
	}

	html, err := r.fetchWithRetry(ctx, f, site.Source, listing.ProductURL)
	if err != nil {
		r.logger.Warn("Detail page unavailable, using listing fields",
			zap.String("site", site.Source),
			zap.String("product_url", listing.ProductURL),
			zap.Error(err),
		)
		return listing
	}

	detail := extractor.Detail(html, listing.ProductURL, site.Selectors)
	return listing.Merge(detail)
}

func (r *Runner) fetchCategory(
	ctx context.Context,
	f fetcher.Fetcher,
	site domain.Site,
	category domain.Category,
) ([]domain.RawProduct, error) {
	html, err := r.fetchWithRetry(ctx, f, site.Source, category.URL)
	if err != nil {
		return nil, err
	}

	raws, err := extractor.Listing(html, site.BaseURL, site.Selectors)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.ProductsExtracted.WithLabelValues(site.Source).Add(float64(len(raws)))
	}
	return raws, nil
}

// fetchWithRetry runs one fetch with the bounded retry policy: up to
// maxRetries attempts, linear backoff, transient failures only.
func (r *Runner) fetchWithRetry(ctx context.Context, f fetcher.Fetcher, source, url string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		html, err := f.Fetch(ctx, url)
		if err == nil {
			if r.metrics != nil {
				r.metrics.PagesFetched.WithLabelValues(source).Inc()
			}
			return html, nil
		}
		lastErr = err
		r.incFetchError(source, err)

		if !domain.Retryable(err) || attempt == r.maxRetries {
			break
		}

		r.logger.Debug("Retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleep(ctx, r.backoffBase*time.Duration(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (r *Runner) syncProducts(ctx context.Context, site domain.Site, products []domain.Product, summary *Summary) {
	result, err := r.store.Upsert(ctx, products)
	if err != nil {
		summary.Err = fmt.Errorf("upsert %s: %w", site.Source, err)
		return
	}

	summary.Inserted = result.Inserted
	summary.Updated = result.Updated
	summary.Succeeded -= result.Failed
	summary.Failed += result.Failed
	if result.Failed > 0 {
		summary.Reasons["upsert_batch"] += result.Failed
	}

	r.addOutcome(site.Source, "persisted", result.Inserted+result.Updated)
	r.addOutcome(site.Source, "dropped", result.Failed)

	if total, err := r.store.Count(ctx, site.Source); err == nil {
		r.logger.Info("Source row count",
			zap.String("site", site.Source),
			zap.Int64("total", total),
		)
	}
}

func (r *Runner) logSummary(s Summary) {
	fields := []zap.Field{
		zap.String("site", s.Site),
		zap.Int("attempted", s.Attempted),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
	}
	if s.Inserted > 0 || s.Updated > 0 {
		fields = append(fields,
			zap.Int("inserted", s.Inserted),
			zap.Int("updated", s.Updated),
		)
	}
	for reason, count := range s.Reasons {
		fields = append(fields, zap.Int("reason_"+reason, count))
	}

	if s.Err != nil {
		r.logger.Error("Site failed", append(fields, zap.Error(s.Err))...)
		return
	}
	r.logger.Info("Site finished", fields...)
}

func (r *Runner) incOutcome(source, outcome string) {
	r.addOutcome(source, outcome, 1)
}

func (r *Runner) addOutcome(source, outcome string, n int) {
	if r.metrics != nil && n > 0 {
		r.metrics.ProductsOutcome.WithLabelValues(source, outcome).Add(float64(n))
	}
}

func (r *Runner) incFetchError(source string, err error) {
	if r.metrics == nil {
		return
	}
	kind := "other"
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	r.metrics.FetchErrors.WithLabelValues(source, kind).Inc()
}

func embedReason(err error) string {
	var ee *domain.EmbeddingError
	if errors.As(err, &ee) {
		return "embedding_" + ee.Stage
	}
	return "embedding"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
