package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestRetryable_FetchKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &FetchError{Kind: FetchTimeout}, true},
		{"network", &FetchError{Kind: FetchNetwork}, true},
		{"status 500", &FetchError{Kind: FetchStatus, Status: 500}, true},
		{"status 429", &FetchError{Kind: FetchStatus, Status: 429}, true},
		{"status 404", &FetchError{Kind: FetchStatus, Status: 404}, false},
		{"status 403", &FetchError{Kind: FetchStatus, Status: 403}, false},
		{"wrapped timeout", fmt.Errorf("category page: %w", &FetchError{Kind: FetchTimeout}), true},
		{"embedding", &EmbeddingError{Stage: EmbedDimension}, false},
		{"normalization", &NormalizationError{Field: "title"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestVectorNormalize(t *testing.T) {
	v := Vector{3, 4}.Normalize()

	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("expected unit length, got %f", sum)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected components: %v", v)
	}
}

func TestVectorNormalize_Zero(t *testing.T) {
	v := Vector{0, 0, 0}.Normalize()
	for _, f := range v {
		if f != 0 {
			t.Fatalf("zero vector must stay zero, got %v", v)
		}
	}
}
