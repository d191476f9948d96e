package state

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
)

// MemoryStore is an in-process upload store with the same transition rules
// as SQLStore.
type MemoryStore struct {
	mu      sync.Mutex
	uploads map[string]*model.Upload
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{uploads: make(map[string]*model.Upload)}
}

// Create inserts a new upload.
func (m *MemoryStore) Create(_ context.Context, u *model.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[u.ID]; ok {
		return skerrors.New(skerrors.CodeStorageWrite, "upload already exists").WithContext("upload_id", u.ID)
	}
	c := *u
	m.uploads[u.ID] = &c
	return nil
}

// Get returns a copy of the upload.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, skerrors.UploadNotFound(id)
	}
	c := *u
	return &c, nil
}

// List returns uploads newest first.
func (m *MemoryStore) List(_ context.Context, status model.Status, limit int) ([]*model.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Upload
	for _, u := range m.uploads {
		if status != "" && u.Status != status {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveMapping stores the user-confirmed column mapping.
func (m *MemoryStore) SaveMapping(_ context.Context, id string, mapping json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return skerrors.UploadNotFound(id)
	}
	u.ColumnMapping = mapping
	return nil
}

// BeginProcessing moves an upload to processing.
func (m *MemoryStore) BeginProcessing(_ context.Context, id string, rerun bool) (*model.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, skerrors.UploadNotFound(id)
	}
	if u.Status == model.StatusProcessing || (u.Status.Terminal() && !rerun) {
		return nil, rejection(u)
	}
	u.Status = model.StatusProcessing
	u.ErrorMessage = ""
	c := *u
	return &c, nil
}

// MarkProcessed finishes a run successfully.
func (m *MemoryStore) MarkProcessed(_ context.Context, id string, report json.RawMessage, at time.Time) error {
	return m.finish(id, model.StatusProcessed, "", report, at)
}

// MarkError finishes a run with an error message.
func (m *MemoryStore) MarkError(_ context.Context, id, message string, report json.RawMessage, at time.Time) error {
	return m.finish(id, model.StatusError, message, report, at)
}

func (m *MemoryStore) finish(id string, status model.Status, message string, report json.RawMessage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return skerrors.UploadNotFound(id)
	}
	if u.Status != model.StatusProcessing {
		return invalidTransition(u, status)
	}
	at = at.UTC()
	u.Status = status
	u.ErrorMessage = message
	u.ProcessedAt = &at
	u.LastReport = report
	return nil
}

// Stats returns upload counts by status.
func (m *MemoryStore) Stats(_ context.Context) (map[model.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[model.Status]int64)
	for _, u := range m.uploads {
		stats[u.Status]++
	}
	return stats, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
