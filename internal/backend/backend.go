// Package backend wraps the message-channel object store that holds file chunks.
//
// A Container groups Posts (one per folder), a Post holds the ordered chunk messages
// of one file, and every chunk is a single message attachment addressed afterwards by
// its retrieval URL.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConnected = errors.New("backend not connected")
	ErrNotFound     = errors.New("backend resource not found")
)

// UploadResult identifies an uploaded chunk on the backend.
type UploadResult struct {
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
	URL          string `json:"url"`
}

// Backend is the adapter the transfer core talks to. Implementations must be safe for
// concurrent use once Connect has returned.
type Backend interface {
	Connect(ctx context.Context) error
	Close() error
	Ready() bool

	CreateContainer(ctx context.Context, parentID, name string) (string, error)
	CreatePost(ctx context.Context, containerID, title, body string) (string, error)
	UploadChunk(ctx context.Context, postID string, data []byte, label string) (UploadResult, error)
	DownloadChunk(ctx context.Context, url string) ([]byte, error)
	DeletePost(ctx context.Context, postID string) error
	DeleteContainer(ctx context.Context, containerID string) error
	RenameContainer(ctx context.Context, containerID, newName string) error
}

// StatusError is returned for unexpected HTTP responses from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: bad status: %s: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: bad status: %s", e.Op, e.Status)
}

// Retryable reports whether a failed backend call may succeed when repeated.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotConnected) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusRequestTimeout || statusErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

var (
	_ Backend = (*RESTBackend)(nil)
	_ Backend = (*ObjectBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)
