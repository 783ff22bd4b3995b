package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"MsgVault/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const objectURLScheme = "store://"

// ObjectBackend emulates the message-channel layout on an object store, so a MinIO
// bucket can stand in for the real service in development and single-node setups.
//
// Layout:
//
//	containers/<id>                 marker, metadata carries name and parent
//	posts/<id>/post                 post body, metadata carries container and title
//	posts/<id>/messages/<msgID>     one chunk per object
type ObjectBackend struct {
	store  storage.Store
	bucket string
	ready  atomic.Bool
}

func NewObjectBackend(store storage.Store, bucket string) *ObjectBackend {
	return &ObjectBackend{store: store, bucket: bucket}
}

func (b *ObjectBackend) Connect(ctx context.Context) error {
	if err := b.store.EnsureBucket(ctx, b.bucket); err != nil {
		return err
	}
	b.ready.Store(true)
	logrus.WithFields(logrus.Fields{"backend": "object", "bucket": b.bucket}).Info("backend connected")
	return nil
}

func (b *ObjectBackend) Close() error {
	b.ready.Store(false)
	return nil
}

func (b *ObjectBackend) Ready() bool {
	return b.ready.Load()
}

func (b *ObjectBackend) CreateContainer(ctx context.Context, parentID, name string) (string, error) {
	if !b.Ready() {
		return "", ErrNotConnected
	}
	id := uuid.NewString()
	err := b.store.PutObject(ctx, b.bucket, containerKey(id), bytes.NewReader(nil), 0, storage.PutOptions{
		Metadata: map[string]string{"name": name, "parent": parentID},
	})
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return id, nil
}

func (b *ObjectBackend) CreatePost(ctx context.Context, containerID, title, body string) (string, error) {
	if !b.Ready() {
		return "", ErrNotConnected
	}
	if _, err := b.store.StatObject(ctx, b.bucket, containerKey(containerID)); err != nil {
		return "", fmt.Errorf("create post: %w", mapObjectErr(err))
	}
	id := uuid.NewString()
	err := b.store.PutObject(ctx, b.bucket, postKey(id), strings.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"container": containerID, "title": title},
	})
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return id, nil
}

func (b *ObjectBackend) UploadChunk(ctx context.Context, postID string, data []byte, label string) (UploadResult, error) {
	if !b.Ready() {
		return UploadResult{}, ErrNotConnected
	}
	if _, err := b.store.StatObject(ctx, b.bucket, postKey(postID)); err != nil {
		return UploadResult{}, fmt.Errorf("upload chunk: %w", mapObjectErr(err))
	}
	msgID := uuid.NewString()
	key := messageKey(postID, msgID)
	err := b.store.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"label": label},
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload chunk: %w", err)
	}
	return UploadResult{
		MessageID:    msgID,
		AttachmentID: msgID,
		URL:          objectURLScheme + b.bucket + "/" + key,
	}, nil
}

func (b *ObjectBackend) DownloadChunk(ctx context.Context, url string) ([]byte, error) {
	prefix := objectURLScheme + b.bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil, fmt.Errorf("download chunk: foreign url %q", url)
	}
	rc, _, err := b.store.GetObject(ctx, b.bucket, strings.TrimPrefix(url, prefix))
	if err != nil {
		return nil, fmt.Errorf("download chunk: %w", mapObjectErr(err))
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *ObjectBackend) DeletePost(ctx context.Context, postID string) error {
	objects, err := b.store.ListObjects(ctx, b.bucket, "posts/"+postID+"/")
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	for _, obj := range objects {
		if err := b.store.RemoveObject(ctx, b.bucket, obj.ObjectName); err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
	}
	return nil
}

func (b *ObjectBackend) DeleteContainer(ctx context.Context, containerID string) error {
	return b.store.RemoveObject(ctx, b.bucket, containerKey(containerID))
}

func (b *ObjectBackend) RenameContainer(ctx context.Context, containerID, newName string) error {
	info, err := b.store.StatObject(ctx, b.bucket, containerKey(containerID))
	if err != nil {
		return fmt.Errorf("rename container: %w", mapObjectErr(err))
	}
	meta := map[string]string{"name": newName, "parent": info.Metadata["parent"]}
	return b.store.PutObject(ctx, b.bucket, containerKey(containerID), bytes.NewReader(nil), 0, storage.PutOptions{Metadata: meta})
}

func containerKey(id string) string { return "containers/" + id }

func postKey(id string) string { return "posts/" + id + "/post" }

func messageKey(postID, msgID string) string { return "posts/" + postID + "/messages/" + msgID }

func mapObjectErr(err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}
