package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store, used by single-node setups and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	metadata map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]memoryObject)}
}

func (s *MemoryStore) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]memoryObject)
	}
	return nil
}

func (s *MemoryStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, _ int64, opts PutOptions) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	meta := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]memoryObject)
		s.buckets[bucket] = b
	}
	b[object] = memoryObject{data: data, metadata: meta}
	return nil
}

func (s *MemoryStore) GetObject(_ context.Context, bucket, object string) (io.ReadCloser, ObjectInfo, error) {
	obj, ok := s.lookup(bucket, object)
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), ObjectInfo{
		ObjectName: object,
		Size:       int64(len(obj.data)),
		Metadata:   obj.metadata,
	}, nil
}

func (s *MemoryStore) StatObject(_ context.Context, bucket, object string) (ObjectInfo, error) {
	obj, ok := s.lookup(bucket, object)
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{ObjectName: object, Size: int64(len(obj.data)), Metadata: obj.metadata}, nil
}

func (s *MemoryStore) RemoveObject(_ context.Context, bucket, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[bucket]; ok {
		delete(b, object)
	}
	return nil
}

func (s *MemoryStore) ListObjects(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ObjectInfo
	for name, obj := range s.buckets[bucket] {
		if strings.HasPrefix(name, prefix) {
			out = append(out, ObjectInfo{ObjectName: name, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectName < out[j].ObjectName })
	return out, nil
}

// Len returns the number of objects in bucket.
func (s *MemoryStore) Len(bucket string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[bucket])
}

func (s *MemoryStore) lookup(bucket, object string) (memoryObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][object]
	return obj, ok
}
