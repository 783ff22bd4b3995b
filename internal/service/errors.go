package service

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrMissingChunk       = errors.New("missing chunk")
	ErrFileNotFound       = errors.New("file not found")
	ErrFolderNotFound     = errors.New("folder not found")
	ErrFileNotReady       = errors.New("file is not completed")
	ErrFileBusy           = errors.New("file has a transfer in progress")
	ErrPendingNotFound    = errors.New("pending upload not found")
	ErrPendingResolved    = errors.New("pending upload already resolved")
	ErrInvalidResolution  = errors.New("invalid conflict resolution")
	ErrInvalidName        = errors.New("invalid file name")
	ErrShareNotFound      = errors.New("share not found or expired")
	ErrChecksumMismatch   = errors.New("chunk checksum mismatch")
)

// TransferIOError reports a failed backend or source operation during a transfer.
type TransferIOError struct {
	Op         string
	FileID     string
	ChunkIndex int
	Err        error
}

func (e *TransferIOError) Error() string {
	return fmt.Sprintf("%s file %s chunk %d: %v", e.Op, e.FileID, e.ChunkIndex, e.Err)
}

func (e *TransferIOError) Unwrap() error {
	return e.Err
}

// MissingChunkError means the stored chunk set of a file has a gap or a size mismatch.
type MissingChunkError struct {
	FileID string
	Index  int
	Reason string
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("file %s: missing chunk %d: %s", e.FileID, e.Index, e.Reason)
}

func (e *MissingChunkError) Is(target error) bool {
	return target == ErrMissingChunk
}
