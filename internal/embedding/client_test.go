package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, body []byte, status int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func inferenceServer(t *testing.T, embedding []float32, status int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode inference request: %v", err)
		}
		if req.Text != "" {
			t.Errorf("expected empty text prompt, got %q", req.Text)
		}
		if _, err := base64.StdEncoding.DecodeString(req.Image); err != nil {
			t.Errorf("image field is not valid base64: %v", err)
		}

		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: embedding})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(endpoint string, dims int) *Client {
	return NewClient(Config{
		EndpointURL: endpoint,
		Model:       "google/siglip-large-patch16-384",
		Dimensions:  dims,
		Timeout:     5 * time.Second,
		UserAgent:   "stylefeed-test",
		Logger:      zap.NewNop(),
	})
}

func TestClientEmbedNormalizes(t *testing.T) {
	imgSrv := imageServer(t, testPNG(t), http.StatusOK)
	infSrv := inferenceServer(t, []float32{3, 4}, http.StatusOK)

	client := newTestClient(infSrv.URL, 2)

	vec, err := client.Embed(context.Background(), imgSrv.URL+"/shirt.png")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vec.Dim() != 2 {
		t.Fatalf("Dim() = %d, want 2", vec.Dim())
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(norm))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-5 || math.Abs(float64(vec[1])-0.8) > 1e-5 {
		t.Errorf("vector = %v, want [0.6 0.8]", vec)
	}
}

func TestClientEmbedDownloadFailure(t *testing.T) {
	imgSrv := imageServer(t, nil, http.StatusNotFound)
	infSrv := inferenceServer(t, []float32{1}, http.StatusOK)

	client := newTestClient(infSrv.URL, 1)

	_, err := client.Embed(context.Background(), imgSrv.URL+"/missing.png")
	assertEmbeddingStage(t, err, domain.EmbedDownload)
}

func TestClientEmbedDecodeFailure(t *testing.T) {
	imgSrv := imageServer(t, []byte("<html>not an image</html>"), http.StatusOK)
	infSrv := inferenceServer(t, []float32{1}, http.StatusOK)

	client := newTestClient(infSrv.URL, 1)

	_, err := client.Embed(context.Background(), imgSrv.URL+"/broken.png")
	assertEmbeddingStage(t, err, domain.EmbedDecode)
}

func TestClientEmbedInferenceFailure(t *testing.T) {
	imgSrv := imageServer(t, testPNG(t), http.StatusOK)
	infSrv := inferenceServer(t, nil, http.StatusInternalServerError)

	client := newTestClient(infSrv.URL, 1)

	_, err := client.Embed(context.Background(), imgSrv.URL+"/shirt.png")
	assertEmbeddingStage(t, err, domain.EmbedInference)
}

func TestClientEmbedDimensionMismatch(t *testing.T) {
	imgSrv := imageServer(t, testPNG(t), http.StatusOK)
	infSrv := inferenceServer(t, []float32{1, 2, 3}, http.StatusOK)

	client := newTestClient(infSrv.URL, 1024)

	_, err := client.Embed(context.Background(), imgSrv.URL+"/shirt.png")
	assertEmbeddingStage(t, err, domain.EmbedDimension)
}

func assertEmbeddingStage(t *testing.T, err error, stage string) {
	t.Helper()

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error = %v, want *domain.EmbeddingError", err)
	}
	if embErr.Stage != stage {
		t.Errorf("Stage = %q, want %q", embErr.Stage, stage)
	}
}
