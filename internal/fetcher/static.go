package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// Static issues plain HTTP GETs with the configured user agent.
type Static struct {
	client    *http.Client
	userAgent string
	delay     time.Duration
	logger    *zap.Logger
}

// StaticOptions holds the static fetcher settings.
type StaticOptions struct {
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewStatic creates a static HTTP fetcher.
func NewStatic(opts StaticOptions) *Static {
	return &Static{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		delay:     opts.Delay,
		logger:    opts.Logger,
	}
}

// Fetch retrieves a page body, preceded by the politeness delay.
// Failures are classified into timeout, status and network FetchErrors.
func (s *Static) Fetch(ctx context.Context, url string) (string, error) {
	if err := politeWait(ctx, s.delay); err != nil {
		return "", fmt.Errorf("politeness wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", &domain.FetchError{URL: url, Kind: domain.FetchNetwork, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)

	s.logger.Debug("Fetching page", zap.String("url", url))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", classifyTransportError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.FetchError{URL: url, Kind: domain.FetchStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(url, err)
	}

	return string(body), nil
}

func classifyTransportError(url string, err error) *domain.FetchError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.FetchError{URL: url, Kind: domain.FetchTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &domain.FetchError{URL: url, Kind: domain.FetchTimeout, Err: err}
	default:
		return &domain.FetchError{URL: url, Kind: domain.FetchNetwork, Err: err}
	}
}
