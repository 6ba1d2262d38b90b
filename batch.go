// Batch/SIMD View (C12): a single contiguous, cache-line-aligned buffer
// holding several records' vectors back to back, so a caller's vectorized
// kernel can stride over them without per-record bounds checks or
// pointer-chasing. Every dimension is padded up to a multiple of 16
// float32s (64 bytes) so each row starts on its own cache line, and the
// slab's starting address is itself rounded up to a 64-byte boundary (see
// newAlignedFloat32Slab) so the first row's aligned too, not just every row
// after it. Grounded
// on the teacher's fixed-stride record layout in header.go/store.go,
// generalized from on-disk fixed-width slots to an in-memory fixed-stride
// slab. Views returned by AsSpan are borrowed and lifetime-bounded to the
// Batch (spec.md §9: "retain zero-copy semantics but expose borrowed,
// lifetime-bounded views only") — never escape them past the Batch's
// lifetime.
package nbrly

import (
	"fmt"
	"unsafe"
)

const (
	batchAlignment = 16 // float32s per 64-byte cache line
	cacheLineBytes = 64
	float32Bytes   = 4
	alignSlack     = cacheLineBytes/float32Bytes - 1 // extra elems make(), enough to carve an aligned start from any allocation
)

// Batch holds record_count rows of padded_dimension float32s each, in one
// contiguous slice.
type Batch struct {
	dimension       int
	paddedDimension int
	count           int
	data            []float32
}

func padDimension(dim int) int {
	rem := dim % batchAlignment
	if rem == 0 {
		return dim
	}
	return dim + (batchAlignment - rem)
}

// newAlignedFloat32Slab returns an n-element []float32 whose first element
// sits at a 64-byte-aligned address, not just a 64-byte-aligned stride
// between rows. Go's allocator gives make([]float32, n) no guarantee beyond
// natural float32 alignment (4 bytes), so the slab is over-allocated by up
// to alignSlack elements and the returned slice is carved starting at the
// first aligned offset — the same over-allocate-then-trim trick used to
// align arena buffers for SIMD kernels.
func newAlignedFloat32Slab(n int) []float32 {
	if n == 0 {
		return nil
	}
	buf := make([]float32, n+alignSlack)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	pad := (cacheLineBytes - int(addr%cacheLineBytes)) % cacheLineBytes
	start := pad / float32Bytes
	return buf[start : start+n : start+n]
}

// NewBatch copies records' vectors into a single padded slab. Every record
// must share the same dimension, else ErrDimensionMismatch.
func NewBatch(records []Record) (*Batch, error) {
	if len(records) == 0 {
		return &Batch{}, nil
	}
	dim := records[0].Dimension()
	for i := 1; i < len(records); i++ {
		if records[i].Dimension() != dim {
			return nil, fmt.Errorf("batch: record %d has dimension %d, want %d: %w",
				i, records[i].Dimension(), dim, ErrDimensionMismatch)
		}
	}

	padded := padDimension(dim)
	b := &Batch{
		dimension:       dim,
		paddedDimension: padded,
		count:           len(records),
		data:            newAlignedFloat32Slab(padded * len(records)),
	}
	for i, rec := range records {
		copy(b.data[i*padded:i*padded+dim], rec.Values)
	}
	return b, nil
}

// Count returns the number of rows in the batch.
func (b *Batch) Count() int { return b.count }

// Dimension returns the logical (unpadded) vector width.
func (b *Batch) Dimension() int { return b.dimension }

// PaddedDimension returns the stride, in float32s, between consecutive
// rows.
func (b *Batch) PaddedDimension() int { return b.paddedDimension }

// AsSpan returns a zero-copy view of row i's logical (unpadded) values,
// borrowed from the batch's backing slab. The returned slice must not be
// used after the Batch is discarded.
func (b *Batch) AsSpan(i int) []float32 {
	start := i * b.paddedDimension
	return b.data[start : start+b.dimension : start+b.dimension]
}

// RawRow returns the full padded row i, including trailing zero padding —
// the shape a SIMD kernel strides over directly.
func (b *Batch) RawRow(i int) []float32 {
	start := i * b.paddedDimension
	return b.data[start : start+b.paddedDimension]
}

// Raw returns the entire backing slab: count*paddedDimension float32s,
// row-major, each row zero-padded to a 64-byte boundary. The slab's first
// element is itself 64-byte aligned, so a SIMD kernel can issue aligned
// loads against &Raw()[0] directly.
func (b *Batch) Raw() []float32 { return b.data }
