package service

import (
	"context"
	"testing"
	"time"

	"MsgVault/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution(" Replace ")
	require.NoError(t, err)
	assert.Equal(t, ResolutionReplace, r)

	_, err = ParseResolution("overwrite")
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestSplitExt(t *testing.T) {
	cases := map[string][2]string{
		"report.txt":     {"report", ".txt"},
		"archive.tar.gz": {"archive.tar", ".gz"},
		".env":           {".env", ""},
		"README":         {"README", ""},
	}
	for name, want := range cases {
		base, ext := splitExt(name)
		assert.Equal(t, want[0], base, name)
		assert.Equal(t, want[1], ext, name)
	}
}

func TestAvailableNameSkipsTakenVariants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, name := range []string{"a.txt", "a (1).txt", "a (2).txt"} {
		require.NoError(t, h.files.Create(ctx, &model.File{
			ID: name, OwnerID: testOwner, FolderID: h.folder.ID, Name: name, OriginalName: name,
			Status: model.FileStatusCompleted,
		}))
	}

	r := NewConflictResolver(h.files)
	name, err := r.AvailableName(ctx, testOwner, h.folder.ID, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a (3).txt", name)

	name, err = r.AvailableName(ctx, testOwner, h.folder.ID, ".env")
	require.NoError(t, err)
	assert.Equal(t, ".env (1)", name)
}

func TestDetectDisabled(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, "dup.bin", payload(10, 0))

	r := NewConflictResolver(h.files)
	c := Candidate{OwnerID: testOwner, FolderID: h.folder.ID, Name: "dup.bin", Size: 10}
	conflict, err := r.Detect(context.Background(), c, false)
	require.NoError(t, err)
	assert.Nil(t, conflict)

	conflict, err = r.Detect(context.Background(), c, true)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, res.File.ID, conflict.Existing.ID)
}

func TestLocalLockerSerializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(waitCtx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Acquire(ctx, "other")
	require.NoError(t, err)
	other()

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, "k")
		if err == nil {
			r()
		}
		close(acquired)
	}()
	release()
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over")
	}
	assert.Empty(t, l.locks)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMimeType("application/pdf", "x.bin", nil))
	assert.Equal(t, "image/png", DetectMimeType("application/octet-stream", "x", []byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "text/csv", DetectMimeType("", "table.csv", []byte("a,b\n1,2\n")))
	assert.Equal(t, "application/octet-stream", DetectMimeType("", "blob", nil))
}

func TestSettingsProviderCachesAndInvalidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.uploader.d.Settings

	s, err := p.Settings(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, h.cfg.DefaultChunkSize, s.ChunkSize)
	assert.True(t, s.DuplicateDetection)

	require.NoError(t, h.settings.Save(ctx, &model.UserSettings{
		OwnerID: testOwner, ChunkSize: 32, DuplicateDetection: false, RetryAttempts: 1, TimeoutSeconds: 5,
	}))
	s, err = p.Settings(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(16), s.ChunkSize)

	require.NoError(t, p.Invalidate(ctx, testOwner))
	s, err = p.Settings(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(32), s.ChunkSize)
	assert.False(t, s.DuplicateDetection)
	assert.Equal(t, 1, s.RetryAttempts)
	assert.Equal(t, 5*time.Second, s.Timeout)
}

func TestSettingsUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.uploader.d.Settings
	_, err := p.Settings(ctx, testOwner)
	require.NoError(t, err)

	s, err := p.Update(ctx, testOwner, Settings{ChunkSize: 8, DuplicateDetection: false, RetryAttempts: 0, Timeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.ChunkSize)
	assert.False(t, s.DuplicateDetection)
	assert.Equal(t, 3*time.Second, s.Timeout)

	_, err = p.Update(ctx, testOwner, Settings{ChunkSize: -1})
	assert.Error(t, err)
}

func TestFolderRenameRenamesContainer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.upload(t, "a.bin", payload(10, 0))
	folders := NewFolders(h.uploader.d)

	renamed, err := folders.Rename(ctx, testOwner, h.folder.ID, "archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", renamed.Name)
	name, ok := h.backend.ContainerName(res.File.ContainerID)
	require.True(t, ok)
	assert.Equal(t, "archive", name)

	files, err := folders.Files(ctx, testOwner, h.folder.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = folders.Rename(ctx, testOwner+1, h.folder.ID, "x")
	assert.ErrorIs(t, err, ErrFolderNotFound)
}
