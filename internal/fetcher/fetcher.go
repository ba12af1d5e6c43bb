// Package fetcher retrieves page content for the pipeline: plain HTTP for
// static sites, a headless browser session for sites that load products
// dynamically. Retry policy lives in the orchestrator; fetchers classify
// failures and never retry internally.
package fetcher

import (
	"context"
	"time"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// Fetcher retrieves the content of one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Composite picks the static or browser fetcher per site.
type Composite struct {
	static  *Static
	browser *Browser
}

// NewComposite creates a mode-dispatching fetcher.
func NewComposite(static *Static, browser *Browser) *Composite {
	return &Composite{static: static, browser: browser}
}

// ForSite returns the fetcher matching the site's mode, bound to the
// site's pagination strategy and container selector.
func (c *Composite) ForSite(site domain.Site) Fetcher {
	if site.Mode == domain.ModeBrowser && c.browser != nil {
		return &siteFetcher{
			browser:    c.browser,
			pagination: site.Pagination,
			productSel: site.Selectors.Products,
		}
	}
	return c.static
}

// siteFetcher binds the browser fetcher to one site's pagination config.
type siteFetcher struct {
	browser    *Browser
	pagination *domain.Pagination
	productSel string
}

func (f *siteFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return f.browser.Fetch(ctx, url, f.pagination, f.productSel)
}

// politeWait sleeps for the configured politeness delay, honoring ctx.
func politeWait(ctx context.Context, d time.Duration) error {
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
