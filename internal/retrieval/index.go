package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	IndexFile    = "faiss_index.bin"
	PassagesFile = "passages.json"
)

// Meta describes how the index was built. Fields are informational except
// EmbeddingDim and NumChunks, which are checked on Load when present.
type Meta struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	EmbeddingDim int    `json:"embedding_dim,omitempty"`
	NumChunks    int    `json:"num_chunks,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	Overlap      bool   `json:"overlap,omitempty"`
	// OverlapSize is kept as written, e.g. "10%" or "200".
	OverlapSize string `json:"-"`
}

// Index is a loaded vector index plus its parallel passage texts. It is
// read-only after Load and safe to share between goroutines.
type Index struct {
	flat     *flatIndex
	passages []string
	meta     Meta
}

type passagesFile struct {
	Chunks      []string        `json:"chunks"`
	OverlapSize json.RawMessage `json:"overlap_size"`
	Meta
}

// Load reads IndexFile and PassagesFile from dir and checks that they agree.
func Load(dir string) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	flat, err := readFlat(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", IndexFile, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, PassagesFile))
	if err != nil {
		return nil, fmt.Errorf("read passages: %w", err)
	}
	passages, meta, err := parsePassages(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PassagesFile, err)
	}

	if meta.EmbeddingDim != 0 && meta.EmbeddingDim != flat.dim {
		return nil, fmt.Errorf("embedding_dim %d does not match index dimension %d", meta.EmbeddingDim, flat.dim)
	}
	if meta.NumChunks != 0 && meta.NumChunks != len(passages) {
		return nil, fmt.Errorf("num_chunks %d does not match %d chunks", meta.NumChunks, len(passages))
	}
	if len(passages) != flat.ntotal {
		return nil, fmt.Errorf("%d passages for %d vectors", len(passages), flat.ntotal)
	}
	if meta.EmbeddingDim == 0 {
		meta.EmbeddingDim = flat.dim
	}
	meta.NumChunks = len(passages)

	return &Index{flat: flat, passages: passages, meta: meta}, nil
}

// parsePassages accepts the metadata object or a bare array of strings.
func parsePassages(data []byte) ([]string, Meta, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var chunks []string
		if err := json.Unmarshal(trimmed, &chunks); err != nil {
			return nil, Meta{}, err
		}
		return chunks, Meta{}, nil
	}

	var pf passagesFile
	if err := json.Unmarshal(trimmed, &pf); err != nil {
		return nil, Meta{}, err
	}
	if pf.Chunks == nil {
		return nil, Meta{}, fmt.Errorf("missing chunks")
	}
	meta := pf.Meta
	meta.OverlapSize = rawScalar(pf.OverlapSize)
	return pf.Chunks, meta, nil
}

// rawScalar renders a JSON string or number as plain text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strings.TrimSpace(string(raw))
}

func (ix *Index) Dim() int { return ix.flat.dim }

func (ix *Index) Len() int { return ix.flat.ntotal }

func (ix *Index) Metric() Metric { return ix.flat.metric }

func (ix *Index) Meta() Meta { return ix.meta }

func (ix *Index) Passage(i int) string { return ix.passages[i] }

// Hit is one search result.
type Hit struct {
	Position int
	Score    float32
}

// Search returns up to k nearest passages in rank order. Scores are squared
// L2 distances (ascending) or inner products (descending). Equal scores keep
// index order so repeated searches return identical results.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.flat.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), ix.flat.dim)
	}
	if k <= 0 || ix.flat.ntotal == 0 {
		return nil, nil
	}

	hits := make([]Hit, ix.flat.ntotal)
	for i := range hits {
		hits[i] = Hit{Position: i, Score: ix.score(query, ix.flat.row(i))}
	}

	better := func(a, b Hit) int {
		switch {
		case a.Score == b.Score:
			return 0
		case (a.Score < b.Score) == (ix.flat.metric == MetricL2):
			return -1
		default:
			return 1
		}
	}
	slices.SortStableFunc(hits, better)

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (ix *Index) score(q, v []float32) float32 {
	var s float32
	if ix.flat.metric == MetricL2 {
		for i := range q {
			d := q[i] - v[i]
			s += d * d
		}
		return s
	}
	for i := range q {
		s += q[i] * v[i]
	}
	return s
}
