package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

func newTestStatic(timeout time.Duration) *Static {
	return NewStatic(StaticOptions{
		UserAgent: "stylefeed-test/1.0",
		Delay:     0,
		Timeout:   timeout,
		Logger:    zap.NewNop(),
	})
}

func TestStaticFetch_Success(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestStatic(5 * time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "<html><body>ok</body></html>" {
		t.Errorf("unexpected body %q", body)
	}
	if gotUA != "stylefeed-test/1.0" {
		t.Errorf("user agent not applied, got %q", gotUA)
	}
}

func TestStaticFetch_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestStatic(5 * time.Second).Fetch(context.Background(), srv.URL)

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != domain.FetchStatus || fe.Status != http.StatusServiceUnavailable {
		t.Errorf("unexpected classification: %+v", fe)
	}
	if !domain.Retryable(err) {
		t.Error("503 should be retryable")
	}
}

func TestStaticFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	_, err := newTestStatic(20 * time.Millisecond).Fetch(context.Background(), srv.URL)

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != domain.FetchTimeout {
		t.Errorf("expected timeout classification, got %q", fe.Kind)
	}
}

func TestStaticFetch_Network(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestStatic(time.Second).Fetch(context.Background(), url)

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != domain.FetchNetwork {
		t.Errorf("expected network classification, got %q", fe.Kind)
	}
}

func TestStaticFetch_DelayCancellable(t *testing.T) {
	s := NewStatic(StaticOptions{
		UserAgent: "test",
		Delay:     time.Hour,
		Timeout:   time.Second,
		Logger:    zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Fetch(ctx, "http://unused.example.com")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > time.Second {
		t.Error("politeness delay did not honor context cancellation")
	}
}

func TestCompositeForSite(t *testing.T) {
	static := newTestStatic(time.Second)
	browser := NewBrowser(BrowserOptions{UserAgent: "test", Logger: zap.NewNop()})
	c := NewComposite(static, browser)

	htmlSite := domain.Site{Mode: domain.ModeHTML}
	if c.ForSite(htmlSite) != Fetcher(static) {
		t.Error("html mode should use the static fetcher")
	}

	browserSite := domain.Site{
		Mode:      domain.ModeBrowser,
		Selectors: domain.Selectors{Products: ".product"},
	}
	if _, ok := c.ForSite(browserSite).(*siteFetcher); !ok {
		t.Error("browser mode should bind the browser fetcher")
	}
}

func TestPageParam(t *testing.T) {
	got := pageParam("https://shop.example.com/collections/all?sort=new", 3)
	if got != "https://shop.example.com/collections/all?page=3&sort=new" {
		t.Errorf("unexpected paged url %q", got)
	}
}
