package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureBucket(ctx, "staging"))

	err := s.PutObject(ctx, "staging", "pending/a", strings.NewReader("hello"), 5, PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"owner": "u1"},
	})
	require.NoError(t, err)

	rc, info, err := s.GetObject(ctx, "staging", "pending/a")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "u1", info.Metadata["owner"])

	require.NoError(t, s.PutObject(ctx, "staging", "pending/b", strings.NewReader("x"), 1, PutOptions{}))
	require.NoError(t, s.PutObject(ctx, "staging", "other/c", strings.NewReader("y"), 1, PutOptions{}))
	list, err := s.ListObjects(ctx, "staging", "pending/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pending/a", list[0].ObjectName)

	require.NoError(t, s.RemoveObject(ctx, "staging", "pending/a"))
	_, _, err = s.GetObject(ctx, "staging", "pending/a")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = s.StatObject(ctx, "staging", "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, 2, s.Len("staging"))
}
