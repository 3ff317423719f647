package retrieval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gzhole/voxsh/internal/config"
	"github.com/gzhole/voxsh/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeIndexDir writes a flat index and passages.json into a temp dir.
func writeIndexDir(t *testing.T, metric Metric, vectors [][]float32, passagesJSON string) string {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := writeFlat(&buf, metric, len(vectors[0]), vectors); err != nil {
		t.Fatalf("writeFlat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFile), buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, PassagesFile), []byte(passagesJSON), 0600); err != nil {
		t.Fatal(err)
	}
	return dir
}

var testVectors = [][]float32{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
	{1, 1, 0},
}

const testPassages = `{
  "chunks": ["ls lists files", "df shows disk usage", "ps lists processes", "du sums directory sizes"],
  "provider": "gemini",
  "model": "models/text-embedding-004",
  "embedding_dim": 3,
  "num_chunks": 4,
  "chunk_size": 1000,
  "overlap": true,
  "overlap_size": "10%"
}`

type fakeEmbedder struct {
	vec   []float32
	errs  []error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.vec, nil
}

var fastRetry = RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond}

func TestLoad(t *testing.T) {
	dir := writeIndexDir(t, MetricL2, testVectors, testPassages)

	ix, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ix.Dim() != 3 || ix.Len() != 4 {
		t.Errorf("dim=%d len=%d", ix.Dim(), ix.Len())
	}
	if ix.Metric() != MetricL2 {
		t.Errorf("metric = %s", ix.Metric())
	}
	meta := ix.Meta()
	if meta.Provider != "gemini" || meta.OverlapSize != "10%" || !meta.Overlap {
		t.Errorf("unexpected meta %+v", meta)
	}
}

func TestLoad_BareArrayAndNumericOverlap(t *testing.T) {
	dir := writeIndexDir(t, MetricInnerProduct, testVectors[:2], `["a", "b"]`)
	ix, err := Load(dir)
	if err != nil {
		t.Fatalf("Load bare array: %v", err)
	}
	if ix.Passage(1) != "b" || ix.Meta().EmbeddingDim != 3 {
		t.Errorf("unexpected index %+v", ix.Meta())
	}

	passages, meta, err := parsePassages([]byte(`{"chunks":["x"],"overlap_size":200}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 1 || meta.OverlapSize != "200" {
		t.Errorf("unexpected parse: %v %+v", passages, meta)
	}
}

func TestLoad_Mismatches(t *testing.T) {
	tests := []struct {
		name     string
		passages string
	}{
		{"dimension", `{"chunks":["a","b","c","d"],"embedding_dim":768}`},
		{"chunk count", `{"chunks":["a","b"]}`},
		{"num_chunks", `{"chunks":["a","b","c","d"],"num_chunks":5}`},
		{"missing chunks", `{"provider":"gemini"}`},
		{"not json", `chunks`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeIndexDir(t, MetricL2, testVectors, tt.passages)
			if _, err := Load(dir); err == nil {
				t.Error("expected Load to fail")
			}
		})
	}
}

func TestLoad_MissingOrCorruptIndex(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for empty dir")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, IndexFile), []byte("IwHNgarbage"), 0600)
	os.WriteFile(filepath.Join(dir, PassagesFile), []byte(`[]`), 0600)
	if _, err := Load(dir); err == nil {
		t.Error("expected error for unsupported index type")
	}

	var buf bytes.Buffer
	writeFlat(&buf, MetricL2, 3, testVectors)
	truncated := buf.Bytes()[:buf.Len()-4]
	os.WriteFile(filepath.Join(dir, IndexFile), truncated, 0600)
	if _, err := Load(dir); err == nil {
		t.Error("expected error for truncated index")
	}
}

func TestSearch_Order(t *testing.T) {
	ix, err := Load(writeIndexDir(t, MetricL2, testVectors, testPassages))
	if err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Search([]float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Position != 0 || hits[1].Position != 3 {
		t.Errorf("unexpected L2 order %+v", hits)
	}

	if _, err := ix.Search([]float32{1, 0}, 1); err == nil {
		t.Error("expected dimension error")
	}

	all, _ := ix.Search([]float32{0, 0, 0}, 10)
	if len(all) != 4 {
		t.Errorf("k larger than index should return all, got %d", len(all))
	}
	// every unit vector is equidistant from the origin: ties keep index order
	if all[0].Position != 0 || all[1].Position != 1 || all[2].Position != 2 {
		t.Errorf("ties should keep index order, got %+v", all)
	}
}

func TestSearch_InnerProduct(t *testing.T) {
	ix, err := Load(writeIndexDir(t, MetricInnerProduct, testVectors, testPassages))
	if err != nil {
		t.Fatal(err)
	}
	hits, _ := ix.Search([]float32{1, 1, 0}, 1)
	if hits[0].Position != 3 {
		t.Errorf("expected highest inner product first, got %+v", hits)
	}
}

func TestRetrieve(t *testing.T) {
	ix, err := Load(writeIndexDir(t, MetricL2, testVectors, testPassages))
	if err != nil {
		t.Fatal(err)
	}
	r := New(ix, &fakeEmbedder{vec: []float32{0, 0.2, 0.9}}, WithLogger(quietLogger()))

	got, err := r.Retrieve(context.Background(), "what is running", 2)
	if err != nil {
		t.Fatal(err)
	}
	want := "ps lists processes\n\ndf shows disk usage"
	if got != want {
		t.Errorf("Retrieve = %q, want %q", got, want)
	}

	again, _ := r.Retrieve(context.Background(), "what is running", 2)
	if again != got {
		t.Error("repeated retrieval should be identical")
	}

	def, _ := r.Retrieve(context.Background(), "q", 0)
	if n := len(bytes.Split([]byte(def), []byte("\n\n"))); n != DefaultK {
		t.Errorf("k=0 should use default %d, got %d passages", DefaultK, n)
	}
}

func TestRetrieve_NotLoaded(t *testing.T) {
	var r *Retriever
	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, ErrIndexNotLoaded) {
		t.Errorf("expected ErrIndexNotLoaded, got %v", err)
	}
	r = New(nil, &fakeEmbedder{})
	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, ErrIndexNotLoaded) {
		t.Errorf("expected ErrIndexNotLoaded, got %v", err)
	}
}

func TestRetrieve_RetriesThenProviderError(t *testing.T) {
	ix, _ := Load(writeIndexDir(t, MetricL2, testVectors, testPassages))
	transport := &llm.ProviderError{Provider: "gemini", Op: "embedContent", Err: errors.New("connection refused")}
	emb := &fakeEmbedder{errs: []error{transport, transport, transport}}
	r := New(ix, emb, WithRetryPolicy(fastRetry), WithLogger(quietLogger()))

	_, err := r.Retrieve(context.Background(), "q", 3)
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *llm.ProviderError, got %v", err)
	}
	if emb.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", emb.calls)
	}
}

func TestRetrieve_RecoversAfterTransientFailure(t *testing.T) {
	ix, _ := Load(writeIndexDir(t, MetricL2, testVectors, testPassages))
	emb := &fakeEmbedder{
		vec:  []float32{1, 0, 0},
		errs: []error{&llm.ProviderError{Provider: "gemini", Op: "embedContent", StatusCode: http.StatusServiceUnavailable, Err: errors.New("busy")}},
	}
	r := New(ix, emb, WithRetryPolicy(fastRetry), WithLogger(quietLogger()))

	got, err := r.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ls lists files" || emb.calls != 2 {
		t.Errorf("got %q after %d calls", got, emb.calls)
	}
}

func TestRetrieve_PermanentErrorNotRetried(t *testing.T) {
	ix, _ := Load(writeIndexDir(t, MetricL2, testVectors, testPassages))
	emb := &fakeEmbedder{errs: []error{&llm.ProviderError{Provider: "gemini", Op: "embedContent", StatusCode: http.StatusForbidden, Err: errors.New("bad key")}}}
	r := New(ix, emb, WithRetryPolicy(fastRetry), WithLogger(quietLogger()))

	if _, err := r.Retrieve(context.Background(), "q", 1); err == nil {
		t.Fatal("expected error")
	}
	if emb.calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", emb.calls)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetry
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.delay(i); got != w {
			t.Errorf("delay(%d) = %s, want %s", i, got, w)
		}
	}
}

func TestDoWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := doWithRetry(ctx, quietLogger(), DefaultRetry, func() (int, error) {
		calls++
		return 0, &llm.ProviderError{Provider: "p", Op: "op", Err: errors.New("down")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestNewEmbedder_FollowsIndexMeta(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("GROQ_API_KEY", "groq-key")

	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Write([]byte(`{"embedding":{"values":[1,0,0]}}`))
	}))
	defer srv.Close()

	// A groq session searching the stock gemini index.
	cfg := config.Default()
	cfg.Provider.Name = "groq"
	cfg.Retrieval.EmbeddingBaseURL = srv.URL
	meta := Meta{Provider: "gemini", Model: "models/text-embedding-004", EmbeddingDim: 3}

	emb, err := NewEmbedder(cfg, meta)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if _, ok := emb.(*llm.GeminiEmbedder); !ok {
		t.Fatalf("expected a gemini embedder, got %T", emb)
	}
	if _, err := emb.Embed(context.Background(), "disk usage"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotPath != "/models/text-embedding-004:embedContent" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotKey != "gemini-key" {
		t.Errorf("expected the gemini key, got %q", gotKey)
	}
}

func TestNewEmbedder_ConfigMustAgreeWithIndex(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("GROQ_API_KEY", "groq-key")
	meta := Meta{Provider: "gemini", Model: "models/text-embedding-004"}

	tests := []struct {
		name     string
		provider string
		model    string
		wantErr  string
	}{
		{"same provider and bare model", "gemini", "text-embedding-004", ""},
		{"provider disagrees", "groq", "", "index was built with \"gemini\""},
		{"model disagrees", "", "embedding-001", "index was built with \"models/text-embedding-004\""},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Retrieval.EmbeddingProvider = tt.provider
		cfg.Retrieval.EmbeddingModel = tt.model
		_, err := NewEmbedder(cfg, meta)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: expected error containing %q, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestNewEmbedder_WithoutMetaUsesConfig(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "groq-key")

	cfg := config.Default()
	cfg.Provider.Name = "groq"
	if _, err := NewEmbedder(cfg, Meta{}); err == nil || !strings.Contains(err.Error(), "embedding_model is required") {
		t.Errorf("expected a missing model error, got %v", err)
	}
	cfg.Retrieval.EmbeddingModel = "nomic-embed-text"
	emb, err := NewEmbedder(cfg, Meta{})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if _, ok := emb.(*llm.OpenAIEmbedder); !ok {
		t.Errorf("expected an OpenAI-compatible embedder, got %T", emb)
	}
}

func TestNewEmbedder_RequestTimeout(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.Default()
	cfg.Retrieval.EmbeddingBaseURL = srv.URL
	cfg.Retrieval.Timeout = 50 * time.Millisecond
	emb, err := NewEmbedder(cfg, Meta{Provider: "gemini"})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}

	start := time.Now()
	_, err = emb.Embed(context.Background(), "stalls")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Embed took %s, timeout not applied", elapsed)
	}
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *llm.ProviderError, got %T: %v", err, err)
	}
}
