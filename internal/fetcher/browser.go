package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// Browser drives a headless Chrome session for sites that load products
// dynamically. Each Fetch runs one session: navigate, wait for content,
// run the site's pagination strategy up to its cap, return the rendered DOM.
type Browser struct {
	userAgent string
	delay     time.Duration
	timeout   time.Duration
	maxPages  int // global cap across all strategies
	logger    *zap.Logger
}

// BrowserOptions holds the browser fetcher settings.
type BrowserOptions struct {
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	MaxPages  int
	Logger    *zap.Logger
}

// NewBrowser creates a headless-browser fetcher.
func NewBrowser(opts BrowserOptions) *Browser {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 20
	}
	return &Browser{
		userAgent: opts.UserAgent,
		delay:     opts.Delay,
		timeout:   opts.Timeout,
		maxPages:  opts.MaxPages,
		logger:    opts.Logger,
	}
}

// settle is how long a session waits after navigation or a pagination
// step before re-counting containers.
const settle = 2 * time.Second

// Fetch renders pageURL and returns its DOM after pagination.
// productSel is used to detect whether a pagination step produced new
// containers; counting stops when the count stabilizes.
func (b *Browser) Fetch(ctx context.Context, pageURL string, pag *domain.Pagination, productSel string) (string, error) {
	if err := politeWait(ctx, b.delay); err != nil {
		return "", fmt.Errorf("politeness wait: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(b.userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, b.timeout)
	defer cancelTimeout()

	if pag != nil && pag.Type == domain.PaginationURLBased {
		return b.fetchURLPaged(taskCtx, pageURL, pag)
	}

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
	); err != nil {
		return "", b.classify(pageURL, err)
	}

	if pag != nil {
		switch pag.Type {
		case domain.PaginationButton:
			b.clickThrough(taskCtx, pag, productSel)
		case domain.PaginationInfiniteScroll:
			b.scrollThrough(taskCtx, pag, productSel)
		}
	}

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", b.classify(pageURL, err)
	}
	return html, nil
}

// clickThrough clicks the load-more button until the container count
// stops growing, the button disappears, or the iteration cap is hit.
// Pagination exhaustion is not an error: the DOM gathered so far stands.
func (b *Browser) clickThrough(ctx context.Context, pag *domain.Pagination, productSel string) {
	limit := b.iterationCap(pag)
	prev := b.countContainers(ctx, productSel)
	noChange := 0

	for i := 0; i < limit; i++ {
		visible := false
		err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollToBottomJS, nil),
			chromedp.Sleep(settle),
			chromedp.Evaluate(buttonVisibleJS(pag.Selector), &visible),
		)
		if err != nil || !visible {
			b.logger.Debug("Load-more button gone", zap.Int("iteration", i), zap.Error(err))
			return
		}

		if err := chromedp.Run(ctx,
			chromedp.Click(pag.Selector, chromedp.ByQuery),
			chromedp.Sleep(settle),
		); err != nil {
			b.logger.Debug("Load-more click failed", zap.Int("iteration", i), zap.Error(err))
			return
		}

		count := b.countContainers(ctx, productSel)
		if count > prev {
			prev = count
			noChange = 0
			continue
		}
		noChange++
		if noChange >= 3 {
			return
		}
	}
}

// scrollThrough scrolls to the bottom until the container count stabilizes.
func (b *Browser) scrollThrough(ctx context.Context, pag *domain.Pagination, productSel string) {
	limit := b.iterationCap(pag)
	prev := b.countContainers(ctx, productSel)
	noChange := 0

	for i := 0; i < limit; i++ {
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollToBottomJS, nil),
			chromedp.Sleep(settle),
		); err != nil {
			return
		}

		count := b.countContainers(ctx, productSel)
		if count > prev {
			prev = count
			noChange = 0
			continue
		}
		noChange++
		if noChange >= 3 {
			return
		}
	}
}

// fetchURLPaged renders ?page=1..N and concatenates the rendered DOMs.
// Stops early on the first page that adds no containers.
func (b *Browser) fetchURLPaged(ctx context.Context, pageURL string, pag *domain.Pagination) (string, error) {
	limit := b.iterationCap(pag)
	var parts []string

	for page := 1; page <= limit; page++ {
		if page > 1 {
			if err := politeWait(ctx, b.delay); err != nil {
				break
			}
		}

		var html string
		err := chromedp.Run(ctx,
			chromedp.Navigate(pageParam(pageURL, page)),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(settle),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			if page == 1 {
				return "", b.classify(pageURL, err)
			}
			break
		}
		parts = append(parts, html)
	}

	if len(parts) == 0 {
		return "", &domain.FetchError{URL: pageURL, Kind: domain.FetchNetwork, Err: fmt.Errorf("no pages rendered")}
	}
	return strings.Join(parts, "\n"), nil
}

func (b *Browser) iterationCap(pag *domain.Pagination) int {
	limit := b.maxPages
	if pag != nil && pag.MaxPages > 0 && pag.MaxPages < limit {
		limit = pag.MaxPages
	}
	return limit
}

func (b *Browser) countContainers(ctx context.Context, sel string) int {
	if sel == "" {
		return 0
	}
	var n int
	if err := chromedp.Run(ctx, chromedp.Evaluate(countJS(sel), &n)); err != nil {
		return 0
	}
	return n
}

func (b *Browser) classify(url string, err error) *domain.FetchError {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
		return &domain.FetchError{URL: url, Kind: domain.FetchTimeout, Err: err}
	}
	return &domain.FetchError{URL: url, Kind: domain.FetchNetwork, Err: err}
}

const scrollToBottomJS = "window.scrollTo(0, document.body.scrollHeight);"

func countJS(sel string) string {
	return fmt.Sprintf("document.querySelectorAll(%s).length", strconv.Quote(sel))
}

func buttonVisibleJS(sel string) string {
	return fmt.Sprintf(
		"(() => { const el = document.querySelector(%s); return !!el && !el.disabled && el.offsetParent !== null; })()",
		strconv.Quote(sel),
	)
}

// pageParam appends or replaces the page query parameter.
func pageParam(rawURL string, page int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
