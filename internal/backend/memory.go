package backend

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryBackend keeps everything in process. Hooks allow callers to inject failures.
type MemoryBackend struct {
	mu         sync.Mutex
	ready      bool
	seq        int
	containers map[string]string
	posts      map[string]*memoryPost
	blobs      map[string][]byte

	// UploadHook runs before every UploadChunk; a non-nil error fails the call.
	UploadHook func(postID string, call int) error
	// DownloadHook runs before every DownloadChunk.
	DownloadHook func(url string) error
	// DeleteHook runs before every DeletePost.
	DeleteHook func(postID string) error

	uploadCalls map[string]int
}

type memoryPost struct {
	containerID string
	title       string
	body        string
	messages    []string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		containers:  make(map[string]string),
		posts:       make(map[string]*memoryPost),
		blobs:       make(map[string][]byte),
		uploadCalls: make(map[string]int),
	}
}

func (b *MemoryBackend) Connect(context.Context) error {
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	b.ready = false
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *MemoryBackend) CreateContainer(_ context.Context, _ string, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return "", ErrNotConnected
	}
	id := b.nextID("c")
	b.containers[id] = name
	return id, nil
}

func (b *MemoryBackend) CreatePost(_ context.Context, containerID, title, body string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return "", ErrNotConnected
	}
	if _, ok := b.containers[containerID]; !ok {
		return "", fmt.Errorf("create post: %w", ErrNotFound)
	}
	id := b.nextID("p")
	b.posts[id] = &memoryPost{containerID: containerID, title: title, body: body}
	return id, nil
}

func (b *MemoryBackend) UploadChunk(ctx context.Context, postID string, data []byte, _ string) (UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}
	b.mu.Lock()
	call := b.uploadCalls[postID]
	b.uploadCalls[postID] = call + 1
	hook := b.UploadHook
	b.mu.Unlock()
	if hook != nil {
		if err := hook(postID, call); err != nil {
			return UploadResult{}, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return UploadResult{}, ErrNotConnected
	}
	post, ok := b.posts[postID]
	if !ok {
		return UploadResult{}, fmt.Errorf("upload chunk: %w", ErrNotFound)
	}
	msgID := b.nextID("m")
	url := "mem://" + postID + "/" + msgID
	b.blobs[url] = append([]byte(nil), data...)
	post.messages = append(post.messages, url)
	return UploadResult{MessageID: msgID, AttachmentID: "a" + msgID, URL: url}, nil
}

func (b *MemoryBackend) DownloadChunk(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hook := b.DownloadHook; hook != nil {
		if err := hook(url); err != nil {
			return nil, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[url]
	if !ok {
		return nil, fmt.Errorf("download chunk: %w", ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) DeletePost(_ context.Context, postID string) error {
	if hook := b.DeleteHook; hook != nil {
		if err := hook(postID); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	post, ok := b.posts[postID]
	if !ok {
		return nil
	}
	for _, url := range post.messages {
		delete(b.blobs, url)
	}
	delete(b.posts, postID)
	return nil
}

func (b *MemoryBackend) DeleteContainer(_ context.Context, containerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.containers, containerID)
	return nil
}

func (b *MemoryBackend) RenameContainer(_ context.Context, containerID, newName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.containers[containerID]; !ok {
		return fmt.Errorf("rename container: %w", ErrNotFound)
	}
	b.containers[containerID] = newName
	return nil
}

// PostCount returns the number of live posts.
func (b *MemoryBackend) PostCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}

// HasPost reports whether postID exists.
func (b *MemoryBackend) HasPost(postID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.posts[postID]
	return ok
}

// ContainerName returns the current name of a container.
func (b *MemoryBackend) ContainerName(containerID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.containers[containerID]
	return name, ok
}

// SetBlob overwrites stored chunk bytes.
func (b *MemoryBackend) SetBlob(url string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[url] = data
}

// DeleteBlob drops stored chunk bytes while keeping the post.
func (b *MemoryBackend) DeleteBlob(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, url)
}

func (b *MemoryBackend) nextID(prefix string) string {
	b.seq++
	return prefix + strconv.Itoa(b.seq)
}
