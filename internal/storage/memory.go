package storage

import (
	"context"
	"sync"
)

// MemoryStorage keeps blobs in a map, bounded by a byte capacity.
type MemoryStorage struct {
	mu       sync.RWMutex
	blobs    map[Handle][]byte
	capacity int64
	used     int64
}

// NewMemoryStorage creates an in-memory store holding at most capacityMB
// megabytes.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		blobs:    make(map[Handle][]byte),
		capacity: capacityMB << 20,
	}
}

func (s *MemoryStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := ComputeHandle(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[h]; ok {
		return h, nil
	}
	if s.used+int64(len(data)) > s.capacity {
		return "", ErrStorageFull
	}
	s.blobs[h] = append([]byte(nil), data...)
	s.used += int64(len(data))
	return h, nil
}

func (s *MemoryStorage) Load(ctx context.Context, h Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[h]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[h]
	if !ok {
		return ErrNotFound
	}
	s.used -= int64(len(blob))
	delete(s.blobs, h)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, h Handle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[h]
	return ok, nil
}

// Used returns the number of stored bytes.
func (s *MemoryStorage) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[Handle][]byte)
	s.used = 0
	return nil
}
