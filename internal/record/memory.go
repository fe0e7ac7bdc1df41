package record

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps records in process memory. Ids start at 1.
type MemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]Record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[int64]Record),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = r.now().UTC()
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
