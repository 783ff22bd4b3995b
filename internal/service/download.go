package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"MsgVault/internal/backend"
	"MsgVault/internal/transfer"
	"MsgVault/model"
	"MsgVault/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Downloader reconstructs stored files from their chunk messages.
type Downloader struct {
	d Deps
}

func NewDownloader(d Deps) *Downloader {
	d.withDefaults()
	return &Downloader{d: d}
}

// Download is a validated, ready-to-stream file.
type Download struct {
	File   *model.File
	chunks []model.Chunk
	kind   string
	dl     *Downloader
}

// Open checks ownership and completeness of a file before any byte is sent.
func (dl *Downloader) Open(ctx context.Context, ownerID uint64, fileID string) (*Download, error) {
	file, err := dl.d.Files.GetOwned(ctx, ownerID, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return dl.open(ctx, file, model.TransferDownload)
}

// OpenShared resolves a public share token. Expired tokens behave like missing ones.
func (dl *Downloader) OpenShared(ctx context.Context, token string) (*Download, error) {
	file, err := dl.d.Files.GetByShareToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}
	if file.ShareExpiresAt != nil && !file.ShareExpiresAt.After(time.Now()) {
		return nil, ErrShareNotFound
	}
	return dl.open(ctx, file, model.TransferShareAccess)
}

func (dl *Downloader) open(ctx context.Context, file *model.File, kind string) (*Download, error) {
	if file.Status != model.FileStatusCompleted {
		return nil, ErrFileNotReady
	}
	if !dl.d.Backend.Ready() {
		return nil, ErrBackendUnavailable
	}
	chunks, err := dl.d.Chunks.ListByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	if err := validateChunks(file, chunks); err != nil {
		return nil, err
	}
	return &Download{File: file, chunks: chunks, kind: kind, dl: dl}, nil
}

// validateChunks expects indexes 0..n-1 in order with sizes summing to the file size.
func validateChunks(file *model.File, chunks []model.Chunk) error {
	var total int64
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return &MissingChunkError{FileID: file.ID, Index: i, Reason: "gap in chunk sequence"}
		}
		total += c.Size
	}
	if total != file.Size {
		return &MissingChunkError{
			FileID: file.ID,
			Index:  len(chunks),
			Reason: fmt.Sprintf("chunks hold %d of %d bytes", total, file.Size),
		}
	}
	return nil
}

// WriteTo streams the chunks in index order, verifying each one before it is written.
// The writer is flushed after every chunk when it supports it.
func (d *Download) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	tel := d.dl.d.Telemetry
	log, err := tel.Begin(ctx, transfer.Start{
		OwnerID:     d.File.OwnerID,
		FileID:      d.File.ID,
		Type:        d.kind,
		FileName:    d.File.Name,
		FileSize:    d.File.Size,
		ChunksTotal: len(d.chunks),
	})
	if err != nil {
		return 0, err
	}

	settings, err := d.dl.d.Settings.Settings(ctx, d.File.OwnerID)
	if err != nil {
		d.fail(ctx, log.ID, err)
		return 0, err
	}

	var written int64
	for _, c := range d.chunks {
		if err := ctx.Err(); err != nil {
			d.fail(ctx, log.ID, err)
			return written, err
		}
		data, err := d.dl.fetch(ctx, settings, c)
		if err != nil {
			d.fail(ctx, log.ID, err)
			return written, err
		}
		n, err := w.Write(data)
		written += int64(n)
		if err != nil {
			d.fail(ctx, log.ID, err)
			return written, err
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if _, err := tel.ChunkDone(ctx, log.ID, c.Size); err != nil {
			logrus.WithFields(logrus.Fields{
				"transfer_id": log.ID,
				"chunk":       c.ChunkIndex,
			}).WithError(err).Warn("record chunk progress failed")
		}
	}
	return written, nil
}

// Size is the byte count WriteTo produces on success.
func (d *Download) Size() int64 {
	return d.File.Size
}

// ContentDisposition returns the attachment header for the file name.
func (d *Download) ContentDisposition() string {
	return utils.ContentDisposition(d.File.Name)
}

func (d *Download) fail(ctx context.Context, transferID string, cause error) {
	if _, err := d.dl.d.Telemetry.Fail(ctx, transferID, cause); err != nil {
		logrus.WithField("transfer_id", transferID).WithError(err).Warn("mark transfer failed")
	}
}

func (dl *Downloader) fetch(ctx context.Context, s Settings, c model.Chunk) ([]byte, error) {
	attempts := max(s.RetryAttempts, 0)
	for attempt := 0; ; attempt++ {
		data, err := dl.fetchOnce(ctx, s, c)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		retry := backend.Retryable(err) || errors.Is(err, ErrChecksumMismatch)
		if attempt >= attempts || !retry {
			if errors.Is(err, backend.ErrNotFound) {
				return nil, &MissingChunkError{FileID: c.FileID, Index: c.ChunkIndex, Reason: "chunk message is gone"}
			}
			return nil, &TransferIOError{Op: "download chunk", FileID: c.FileID, ChunkIndex: c.ChunkIndex, Err: err}
		}
		delay := utils.PickRetryDelay(attempt+1, dl.d.Config.RetryDelays)
		logrus.WithFields(logrus.Fields{
			"file_id": c.FileID,
			"chunk":   c.ChunkIndex,
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Warn("chunk download failed, retrying")
		if err := utils.SleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (dl *Downloader) fetchOnce(ctx context.Context, s Settings, c model.Chunk) ([]byte, error) {
	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	data, err := dl.d.Backend.DownloadChunk(callCtx, c.URL)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != c.Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrChecksumMismatch, len(data), c.Size)
	}
	if c.Checksum != "" && checksum(data) != c.Checksum {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}
