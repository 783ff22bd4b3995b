// Package chunk splits a file into bounded, ordered byte ranges.
package chunk

import (
	"errors"
	"fmt"
	"iter"
)

// ErrConfiguration is returned for non-positive chunk sizes or caps and negative file sizes.
var ErrConfiguration = errors.New("invalid chunk configuration")

// Range is the half-open byte interval [Start, End) of chunk Index.
type Range struct {
	Index int
	Start int64
	End   int64
}

// Size returns the number of bytes in the range.
func (r Range) Size() int64 {
	return r.End - r.Start
}

// Plan describes how a file of FileSize bytes is cut into chunks.
type Plan struct {
	FileSize  int64
	ChunkSize int64 // effective size, never above the hard cap
	Count     int
}

// NewPlan applies the backend hard cap to the configured chunk size and computes the
// chunk count. An empty file yields a plan with zero chunks.
func NewPlan(fileSize, configuredChunkSize, hardCapBytes int64) (Plan, error) {
	if fileSize < 0 {
		return Plan{}, fmt.Errorf("%w: file size %d", ErrConfiguration, fileSize)
	}
	if configuredChunkSize <= 0 {
		return Plan{}, fmt.Errorf("%w: chunk size %d", ErrConfiguration, configuredChunkSize)
	}
	if hardCapBytes <= 0 {
		return Plan{}, fmt.Errorf("%w: hard cap %d", ErrConfiguration, hardCapBytes)
	}
	effective := min(configuredChunkSize, hardCapBytes)
	count := (fileSize + effective - 1) / effective
	return Plan{
		FileSize:  fileSize,
		ChunkSize: effective,
		Count:     int(count),
	}, nil
}

// Range returns chunk i of the plan.
func (p Plan) Range(i int) Range {
	start := int64(i) * p.ChunkSize
	return Range{
		Index: i,
		Start: start,
		End:   min(start+p.ChunkSize, p.FileSize),
	}
}

// Ranges yields every chunk range in ascending order. The sequence can be iterated
// any number of times.
func (p Plan) Ranges() iter.Seq[Range] {
	return func(yield func(Range) bool) {
		for i := 0; i < p.Count; i++ {
			if !yield(p.Range(i)) {
				return
			}
		}
	}
}
