package retrieval

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Metric is the distance a flat index was built with.
type Metric int

const (
	MetricInnerProduct Metric = 0
	MetricL2           Metric = 1
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricInnerProduct:
		return "inner_product"
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

const (
	fourccFlatL2 = "IxF2"
	fourccFlatIP = "IxFI"
	// faissDummy is what FAISS writes into the two unused header slots.
	faissDummy = 1 << 20
)

// flatIndex is a decoded FAISS IndexFlat: ntotal vectors of dim float32s
// stored row-major.
type flatIndex struct {
	dim     int
	ntotal  int
	metric  Metric
	vectors []float32
}

// readFlat decodes the file written by faiss.write_index for an IndexFlatL2
// or IndexFlatIP. Other index types are rejected.
func readFlat(r io.Reader) (*flatIndex, error) {
	br := bufio.NewReader(r)

	var fourcc [4]byte
	if _, err := io.ReadFull(br, fourcc[:]); err != nil {
		return nil, fmt.Errorf("read index type: %w", err)
	}
	var metric Metric
	switch string(fourcc[:]) {
	case fourccFlatL2:
		metric = MetricL2
	case fourccFlatIP:
		metric = MetricInnerProduct
	default:
		return nil, fmt.Errorf("unsupported index type %q (want a flat L2 or inner-product index)", fourcc[:])
	}

	var hdr struct {
		Dim       int32
		NTotal    int64
		Dummy1    int64
		Dummy2    int64
		IsTrained uint8
		Metric    int32
	}
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read index header: %w", err)
	}
	if hdr.Dim <= 0 || hdr.NTotal < 0 {
		return nil, fmt.Errorf("corrupt index header: dim=%d ntotal=%d", hdr.Dim, hdr.NTotal)
	}
	if Metric(hdr.Metric) != metric {
		return nil, fmt.Errorf("index type %s disagrees with header metric %d", fourcc[:], hdr.Metric)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read vector count: %w", err)
	}
	want := uint64(hdr.NTotal) * uint64(hdr.Dim)
	if count != want {
		return nil, fmt.Errorf("corrupt index: %d floats stored, header implies %d", count, want)
	}
	if count > math.MaxInt32 {
		return nil, errors.New("index too large")
	}

	vectors := make([]float32, count)
	if err := binary.Read(br, binary.LittleEndian, vectors); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	return &flatIndex{
		dim:     int(hdr.Dim),
		ntotal:  int(hdr.NTotal),
		metric:  metric,
		vectors: vectors,
	}, nil
}

// writeFlat encodes vectors in the same layout faiss.write_index uses for a
// flat index.
func writeFlat(w io.Writer, metric Metric, dim int, vectors [][]float32) error {
	fourcc := fourccFlatL2
	if metric == MetricInnerProduct {
		fourcc = fourccFlatIP
	}
	flat := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has %d dims, want %d", i, len(v), dim)
		}
		flat = append(flat, v...)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(fourcc)
	hdr := []any{
		int32(dim),
		int64(len(vectors)),
		int64(faissDummy),
		int64(faissDummy),
		uint8(1),
		int32(metric),
		uint64(len(flat)),
		flat,
	}
	for _, field := range hdr {
		if err := binary.Write(bw, binary.LittleEndian, field); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (f *flatIndex) row(i int) []float32 {
	return f.vectors[i*f.dim : (i+1)*f.dim]
}
