package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

func collect(p Plan) []Range {
	var out []Range
	for r := range p.Ranges() {
		out = append(out, r)
	}
	return out
}

func TestNewPlan_HardCapWins(t *testing.T) {
	p, err := NewPlan(20*mb, 10*mb, 7*mb)
	require.NoError(t, err)

	assert.Equal(t, int64(7*mb), p.ChunkSize)
	assert.Equal(t, 3, p.Count)

	ranges := collect(p)
	require.Len(t, ranges, 3)
	assert.Equal(t, int64(7*mb), ranges[0].Size())
	assert.Equal(t, int64(7*mb), ranges[1].Size())
	assert.Equal(t, int64(6*mb), ranges[2].Size())
}

func TestNewPlan_ConfiguredBelowCap(t *testing.T) {
	p, err := NewPlan(10, 4, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.ChunkSize)
	assert.Equal(t, 3, p.Count)
}

func TestPlan_RangesCoverFileWithoutGaps(t *testing.T) {
	sizes := []int64{1, 6, 7, 8, 99, 100, 101, 1000}
	for _, size := range sizes {
		p, err := NewPlan(size, 7, 50)
		require.NoError(t, err)

		var next int64
		for i, r := range collect(p) {
			assert.Equal(t, i, r.Index)
			assert.Equal(t, next, r.Start, "gap or overlap before chunk %d of %d", i, size)
			assert.LessOrEqual(t, r.Size(), p.ChunkSize)
			assert.Positive(t, r.Size())
			next = r.End
		}
		assert.Equal(t, size, next)
	}
}

func TestPlan_EmptyFileHasNoChunks(t *testing.T) {
	p, err := NewPlan(0, 10, 10)
	require.NoError(t, err)
	assert.Zero(t, p.Count)
	assert.Empty(t, collect(p))
}

func TestPlan_RangesIsRestartable(t *testing.T) {
	p, err := NewPlan(25, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, collect(p), collect(p))

	// stopping early must not disturb a later full pass
	for r := range p.Ranges() {
		if r.Index == 1 {
			break
		}
	}
	assert.Len(t, collect(p), 3)
}

func TestNewPlan_InvalidConfiguration(t *testing.T) {
	cases := []struct {
		name             string
		size, chunk, cap int64
	}{
		{"negative size", -1, 10, 10},
		{"zero chunk", 10, 0, 10},
		{"negative chunk", 10, -5, 10},
		{"zero cap", 10, 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPlan(tc.size, tc.chunk, tc.cap)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}
