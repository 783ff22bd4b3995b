package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MsgVault/config"
	"MsgVault/internal/backend"
	"MsgVault/internal/transfer"
	"MsgVault/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	h := newHarness(t)
	data := payload(50, 3)

	res := h.upload(t, "report.bin", data)
	require.NotNil(t, res.File)
	assert.Nil(t, res.Conflict)
	assert.Equal(t, model.FileStatusCompleted, res.File.Status)
	assert.Equal(t, int64(50), res.File.Size)
	assert.Equal(t, checksum(data), res.File.ContentHash)
	assert.True(t, h.backend.HasPost(res.File.ID))

	chunks, err := h.chunks.ListByFile(context.Background(), res.File.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	var total int64
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, c.Size, h.cfg.HardCapBytes)
		total += c.Size
	}
	assert.Equal(t, res.File.Size, total)
	assert.Equal(t, []int64{16, 16, 16, 2}, []int64{chunks[0].Size, chunks[1].Size, chunks[2].Size, chunks[3].Size})

	require.NotNil(t, res.Transfer)
	assert.Equal(t, model.TransferStatusCompleted, res.Transfer.Status)
	assert.Equal(t, 100, res.Transfer.Progress)

	assert.Equal(t, data, h.download(t, res.File.ID))
}

func TestUploadProgressIsMonotonic(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, "big.bin", payload(200, 1))

	last := -1
	var seen int
	for _, ev := range h.events() {
		if ev.Transfer.ID != res.Transfer.ID {
			continue
		}
		seen++
		assert.GreaterOrEqual(t, ev.Transfer.Progress, last)
		last = ev.Transfer.Progress
		if ev.Transfer.Progress == 100 {
			assert.Equal(t, model.TransferStatusCompleted, ev.Transfer.Status)
		} else {
			assert.NotEqual(t, model.TransferStatusCompleted, ev.Transfer.Status)
		}
	}
	assert.Greater(t, seen, 2)
	assert.Equal(t, 100, last)
}

func TestUploadChunkSizeCappedByBackend(t *testing.T) {
	h := newHarness(t, func(c *config.TransferConfig) {
		c.DefaultChunkSize = 10
		c.HardCapBytes = 7
	})
	res := h.upload(t, "twenty.bin", payload(20, 0))

	chunks, err := h.chunks.ListByFile(context.Background(), res.File.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, int64(7), chunks[0].Size)
	assert.Equal(t, int64(7), chunks[1].Size)
	assert.Equal(t, int64(6), chunks[2].Size)
}

func TestUploadSmallFileWithHugeChunkSize(t *testing.T) {
	h := newHarness(t, func(c *config.TransferConfig) {
		c.HardCapBytes = 1 << 40
		c.DefaultChunkSize = 1 << 40
	})
	data := payload(10, 5)
	res := h.upload(t, "tiny.bin", data)
	assert.Equal(t, model.FileStatusCompleted, res.File.Status)
	assert.Equal(t, data, h.download(t, res.File.ID))
}

func TestUploadEmptyFile(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, "empty.txt", nil)

	assert.Equal(t, model.FileStatusCompleted, res.File.Status)
	assert.Equal(t, model.TransferStatusCompleted, res.Transfer.Status)
	assert.Equal(t, 100, res.Transfer.Progress)
	assert.Empty(t, h.download(t, res.File.ID))
}

func TestUploadDetectsMimeType(t *testing.T) {
	h := newHarness(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), payload(40, 0)...)
	res := h.upload(t, "picture", png)
	assert.Equal(t, "image/png", res.File.MimeType)
}

func TestUploadDuplicateDetectionOff(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Save(context.Background(), &model.UserSettings{
		OwnerID:            testOwner,
		ChunkSize:          16,
		DuplicateDetection: false,
	}))
	data := payload(30, 9)

	first := h.upload(t, "same.bin", data)
	second := h.upload(t, "same.bin", data)

	require.NotNil(t, first.File)
	require.NotNil(t, second.File)
	assert.NotEqual(t, first.File.ID, second.File.ID)
	assert.Len(t, h.listFiles(t), 2)
}

func TestUploadDuplicateSuspends(t *testing.T) {
	h := newHarness(t)
	data := payload(30, 9)
	first := h.upload(t, "same.bin", data)

	second := h.upload(t, "same.bin", data)
	assert.Nil(t, second.File)
	require.NotNil(t, second.Conflict)
	require.NotNil(t, second.Pending)
	assert.Equal(t, first.File.ID, second.Conflict.Existing.ID)
	assert.Equal(t, "same.bin", second.Conflict.Candidate.Name)
	assert.Equal(t, model.TransferStatusPending, second.Transfer.Status)

	assert.Len(t, h.listFiles(t), 1)
	assert.Equal(t, 1, h.staging.Len("staging"))
	assert.Equal(t, 1, h.backend.PostCount())
}

func TestUploadDifferentSizeIsNotDuplicate(t *testing.T) {
	h := newHarness(t)
	h.upload(t, "same.bin", payload(30, 1))
	res := h.upload(t, "same.bin", payload(31, 1))
	assert.NotNil(t, res.File)
	assert.Len(t, h.listFiles(t), 2)
}

func TestConcurrentIdenticalUploadsYieldOneFile(t *testing.T) {
	h := newHarness(t)
	data := payload(40, 2)

	var wg sync.WaitGroup
	results := make([]*UploadResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.uploader.Upload(context.Background(), h.request("race.bin", data))
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	conflicts := 0
	for _, r := range results {
		if r.Conflict != nil {
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)
	assert.Len(t, h.listFiles(t), 1)
}

func TestIdenticalUploadsQueuedBehindBusySlotYieldOneFile(t *testing.T) {
	h := newHarness(t, func(c *config.TransferConfig) { c.MaxConcurrentUploads = 1 })
	h.useLocker(newExpiringLocker(50 * time.Millisecond))

	entered := make(chan struct{})
	gate := make(chan struct{})
	var blocked atomic.Bool
	h.backend.UploadHook = func(string, int) error {
		if blocked.CompareAndSwap(false, true) {
			close(entered)
			<-gate
		}
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := h.uploader.Upload(context.Background(), h.request("slow.bin", payload(40, 1)))
		assert.NoError(t, err)
	}()
	<-entered

	data := payload(30, 6)
	results := make([]*UploadResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.uploader.Upload(context.Background(), h.request("same.bin", data))
		}(i)
		time.Sleep(100 * time.Millisecond)
	}
	close(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	same := 0
	for _, f := range h.listFiles(t) {
		if f.Name == "same.bin" {
			same++
		}
	}
	assert.Equal(t, 1, same)
	assert.True(t, (results[0].Conflict == nil) != (results[1].Conflict == nil))
}

func TestUploadRespectsMaxConcurrentUploads(t *testing.T) {
	h := newHarness(t, func(c *config.TransferConfig) { c.MaxConcurrentUploads = 2 })

	var inFlight, peak atomic.Int32
	h.backend.UploadHook = func(string, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.uploader.Upload(context.Background(), h.request(fmt.Sprintf("f%d.bin", i), payload(20, byte(i))))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, h.listFiles(t), 6)
	assert.Equal(t, int32(2), peak.Load())
}

func TestUploadCreatePostFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	bound, err := h.folders.BindContainer(context.Background(), h.folder.ID, "gone")
	require.NoError(t, err)
	require.True(t, bound)

	_, err = h.uploader.Upload(context.Background(), h.request("lost.bin", payload(20, 3)))
	var ioErr *TransferIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "create post", ioErr.Op)

	logs, err := h.logs.ListByOwner(context.Background(), testOwner, model.TransferUpload, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.TransferStatusFailed, logs[0].Status)
	assert.Equal(t, "lost.bin", logs[0].FileName)
	assert.NotEmpty(t, logs[0].ErrorMsg)
}

func TestResolveKeep(t *testing.T) {
	h := newHarness(t)
	data := payload(30, 9)
	first := h.upload(t, "same.bin", data)
	suspended := h.upload(t, "same.bin", payload(30, 4))

	res, err := h.uploader.Resolve(context.Background(), testOwner, suspended.Pending.ID, ResolutionKeep)
	require.NoError(t, err)
	assert.Equal(t, first.File.ID, res.File.ID)
	assert.Equal(t, model.TransferStatusCancelled, res.Transfer.Status)

	files := h.listFiles(t)
	require.Len(t, files, 1)
	assert.Equal(t, first.File.UpdatedAt.Unix(), files[0].UpdatedAt.Unix())
	assert.Equal(t, data, h.download(t, first.File.ID))
	assert.Equal(t, 0, h.staging.Len("staging"))

	_, err = h.uploader.Resolve(context.Background(), testOwner, suspended.Pending.ID, ResolutionKeep)
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestResolveReplace(t *testing.T) {
	h := newHarness(t)
	first := h.upload(t, "same.bin", payload(30, 9))
	replacement := payload(30, 5)
	suspended := h.upload(t, "same.bin", replacement)

	res, err := h.uploader.Resolve(context.Background(), testOwner, suspended.Pending.ID, ResolutionReplace)
	require.NoError(t, err)
	require.NotNil(t, res.File)
	assert.NotEqual(t, first.File.ID, res.File.ID)
	assert.Equal(t, "same.bin", res.File.Name)
	assert.Equal(t, suspended.Transfer.ID, res.Transfer.ID)
	assert.Equal(t, model.TransferStatusCompleted, res.Transfer.Status)

	files := h.listFiles(t)
	require.Len(t, files, 1)
	assert.Equal(t, int64(30), files[0].Size)
	oldChunks, err := h.chunks.ListByFile(context.Background(), first.File.ID)
	require.NoError(t, err)
	assert.Empty(t, oldChunks)
	assert.False(t, h.backend.HasPost(first.File.ID))
	assert.Equal(t, replacement, h.download(t, res.File.ID))
}

func TestResolveRename(t *testing.T) {
	h := newHarness(t)
	h.upload(t, "report.txt", payload(30, 9))
	suspended := h.upload(t, "report.txt", payload(30, 6))

	res, err := h.uploader.Resolve(context.Background(), testOwner, suspended.Pending.ID, ResolutionRename)
	require.NoError(t, err)
	assert.Equal(t, "report (1).txt", res.File.Name)
	assert.Equal(t, "report.txt", res.File.OriginalName)
	assert.Len(t, h.listFiles(t), 2)
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	h := newHarness(t)
	_, err := h.uploader.Resolve(context.Background(), testOwner, "whatever", Resolution("merge"))
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestResolveOtherOwnersPending(t *testing.T) {
	h := newHarness(t)
	h.upload(t, "same.bin", payload(30, 9))
	suspended := h.upload(t, "same.bin", payload(30, 9))

	_, err := h.uploader.Resolve(context.Background(), testOwner+1, suspended.Pending.ID, ResolutionKeep)
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestResolveReleasesClaimOnEarlyFailure(t *testing.T) {
	h := newHarness(t)
	h.upload(t, "same.bin", payload(30, 9))
	suspended := h.upload(t, "same.bin", payload(30, 9))
	require.NoError(t, h.staging.RemoveObject(context.Background(), "staging", suspended.Pending.StagingKey))

	_, err := h.uploader.Resolve(context.Background(), testOwner, suspended.Pending.ID, ResolutionRename)
	require.Error(t, err)

	p, err := h.pending.GetOwned(context.Background(), testOwner, suspended.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, p.Status)
}

func TestUploadChunkFailureLeavesFileFailed(t *testing.T) {
	h := newHarness(t)
	h.backend.UploadHook = func(_ string, call int) error {
		if call == 1 {
			return &backend.StatusError{StatusCode: 400, Status: "400 Bad Request"}
		}
		return nil
	}
	data := payload(40, 1)

	_, err := h.uploader.Upload(context.Background(), h.request("broken.bin", data))
	var ioErr *TransferIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 1, ioErr.ChunkIndex)

	files := h.listFiles(t)
	require.Len(t, files, 1)
	assert.Equal(t, model.FileStatusFailed, files[0].Status)

	chunks, err := h.chunks.ListByFile(context.Background(), files[0].ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	logs, err := h.logs.ListByOwner(context.Background(), testOwner, model.TransferUpload, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.TransferStatusFailed, logs[0].Status)
	assert.NotEmpty(t, logs[0].ErrorMsg)

	orphans := h.orphans.all()
	require.Len(t, orphans, 1)
	assert.Equal(t, files[0].ID, orphans[0].PostID)
	assert.Equal(t, 1, orphans[0].ChunksUploaded)

	_, err = h.downloader.Open(context.Background(), testOwner, files[0].ID)
	assert.ErrorIs(t, err, ErrFileNotReady)

	// A failed file does not block a fresh upload of the same name.
	h.backend.UploadHook = nil
	res := h.upload(t, "broken.bin", data)
	assert.NotNil(t, res.File)
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.UploadHook = func(_ string, call int) error {
		if call == 1 {
			return &backend.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
		}
		return nil
	}
	data := payload(40, 8)

	res := h.upload(t, "flaky.bin", data)
	assert.Equal(t, model.FileStatusCompleted, res.File.Status)
	assert.Equal(t, data, h.download(t, res.File.ID))
	assert.Empty(t, h.orphans.all())
}

func TestUploadGivesUpAfterRetryBudget(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.backend.UploadHook = func(_ string, _ int) error {
		calls++
		return &backend.StatusError{StatusCode: 502, Status: "502 Bad Gateway"}
	}

	_, err := h.uploader.Upload(context.Background(), h.request("down.bin", payload(10, 0)))
	var status *backend.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, h.cfg.RetryAttempts+1, calls)
}

func TestUploadCancelledBetweenChunks(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.backend.UploadHook = func(_ string, call int) error {
		if call == 1 {
			cancel()
		}
		return nil
	}

	req := h.request("cancel.bin", payload(60, 0))
	_, err := h.uploader.Upload(ctx, req)
	require.ErrorIs(t, err, context.Canceled)

	files := h.listFiles(t)
	require.Len(t, files, 1)
	assert.Equal(t, model.FileStatusFailed, files[0].Status)

	chunks, err := h.chunks.ListByFile(context.Background(), files[0].ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	logs, err := h.logs.ListByOwner(context.Background(), testOwner, model.TransferUpload, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.TransferStatusCancelled, logs[0].Status)
}

func TestUploadBackendUnavailable(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.backend.Close())

	_, err := h.uploader.Upload(context.Background(), h.request("x.bin", payload(10, 0)))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Empty(t, h.listFiles(t))
	assert.Equal(t, 0, h.backend.PostCount())
}

func TestUploadRejectsUnknownFolder(t *testing.T) {
	h := newHarness(t)
	req := h.request("x.bin", payload(10, 0))
	req.FolderID = 999
	_, err := h.uploader.Upload(context.Background(), req)
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestUploadCreatesContainerOnce(t *testing.T) {
	h := newHarness(t)
	a := h.upload(t, "a.bin", payload(10, 0))
	b := h.upload(t, "b.bin", payload(10, 1))
	assert.NotEmpty(t, a.File.ContainerID)
	assert.Equal(t, a.File.ContainerID, b.File.ContainerID)
	name, ok := h.backend.ContainerName(a.File.ContainerID)
	require.True(t, ok)
	assert.Equal(t, "docs", name)
}

func TestTransferIOErrorUnwraps(t *testing.T) {
	err := error(&TransferIOError{Op: "upload chunk", FileID: "f", ChunkIndex: 2, Err: backend.ErrNotConnected})
	assert.ErrorIs(t, err, backend.ErrNotConnected)
	assert.Contains(t, err.Error(), "chunk 2")
	assert.False(t, errors.Is(err, transfer.ErrFinalized))
}
