package index

import (
	"container/heap"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Search embeds the query and returns the k nearest entries ordered by
// ascending cosine distance (smaller = more similar). An empty result set is
// valid.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	qvec, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	qnorm := norm(qvec)
	if qnorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + vector to find the top-K candidates.
	rows, err := x.db.QueryContext(ctx, `SELECT id, vector FROM entries`)
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}
	defer rows.Close()

	h := &distHeap{}
	heap.Init(h)

	// Reusable buffer avoids a per-row allocation during the scan.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, &Error{Op: "search", Err: err}
		}

		buf, err = decodeVectorInto(buf, blob)
		if err != nil {
			return nil, &Error{Op: "search", Err: fmt.Errorf("entry %s: %w", id, err)}
		}

		dist := cosineDistance(qvec, buf, qnorm)
		if h.Len() < k {
			heap.Push(h, idDist{ID: id, Distance: dist})
		} else if dist < (*h)[0].Distance {
			(*h)[0] = idDist{ID: id, Distance: dist}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "search", Err: err}
	}
	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch text and metadata only for the winners, then restore
	// ascending-distance order (IN queries do not preserve it).
	distances := make(map[string]float32, h.Len())
	ids := make([]string, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idDist)
		ids[i] = item.ID
		distances[item.ID] = item.Distance
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, text, metadata FROM entries WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`

	full, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}
	defer full.Close()

	byID := make(map[string]Result, len(ids))
	for full.Next() {
		var r Result
		var metaJSON string
		if err := full.Scan(&r.ID, &r.Text, &metaJSON); err != nil {
			return nil, &Error{Op: "search", Err: err}
		}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			return nil, &Error{Op: "search", Err: fmt.Errorf("decoding metadata for %s: %w", r.ID, err)}
		}
		r.Distance = distances[r.ID]
		byID[r.ID] = r
	}
	if err := full.Err(); err != nil {
		return nil, &Error{Op: "search", Err: err}
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// encodeVector serializes a float32 slice to little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVectorInto decodes little-endian bytes into the provided buffer,
// reusing it when large enough. A length that is not a multiple of 4
// indicates data corruption.
func decodeVectorInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosineDistance computes 1 - cos(a, b). qNorm is the precomputed L2 norm of
// a. Mismatched or zero-norm vectors are treated as maximally distant.
func cosineDistance(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 1
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 1
	}
	return float32(1 - dot/(float64(aNorm)*bNorm))
}

// idDist tracks a candidate during the scan phase.
type idDist struct {
	ID       string
	Distance float32
}

// distHeap is a max-heap on distance, keeping the K smallest distances seen.
type distHeap []idDist

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h distHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(v any)        { *h = append(*h, v.(idDist)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
