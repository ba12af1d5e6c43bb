package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoProducts signals a category page with no matching product containers.
	ErrNoProducts = errors.New("no product containers found")
	// ErrSiteNotFound signals a site key missing from the catalog.
	ErrSiteNotFound = errors.New("site not found in catalog")
)

// ConfigError identifies the malformed site and field in the catalog.
type ConfigError struct {
	Site  string
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("site %q: field %q: %s", e.Site, e.Field, e.Msg)
}

// FetchError classification kinds.
const (
	FetchTimeout = "timeout"
	FetchStatus  = "status"
	FetchNetwork = "network"
)

// FetchError is a failed page or image retrieval.
type FetchError struct {
	URL    string
	Kind   string // timeout, status, network
	Status int    // set when Kind == status
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EmbeddingError stages.
const (
	EmbedDownload  = "download"
	EmbedDecode    = "decode"
	EmbedInference = "inference"
	EmbedDimension = "dimension"
)

// EmbeddingError is a per-item embedding failure; the item survives with
// an absent embedding.
type EmbeddingError struct {
	Stage string // download, decode, inference, dimension
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Stage, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// NormalizationError reports a raw product missing a hard-required field.
// Such products are dropped, not persisted.
type NormalizationError struct {
	Field string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Retryable reports whether err is transient and worth another attempt.
// Only network-level fetch failures qualify: timeouts, transport errors,
// 5xx and 429 responses. Everything else is permanent for the item.
func Retryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case FetchTimeout, FetchNetwork:
		return true
	case FetchStatus:
		return fe.Status >= http.StatusInternalServerError ||
			fe.Status == http.StatusTooManyRequests
	}
	return false
}
