package storage

import (
	"context"
	"sync"

	"github.com/skuflow/skuflow/pkg/model"
)

// Memory is an in-process Repository.
type Memory struct {
	mu      sync.Mutex
	records map[string][]model.SalesRecord
}

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]model.SalesRecord)}
}

// WriteBatch appends a copy of recs.
func (m *Memory) WriteBatch(ctx context.Context, recs []model.SalesRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.records[r.UploadID] = append(m.records[r.UploadID], r)
	}
	return int64(len(recs)), nil
}

// DeleteUpload drops an upload's records.
func (m *Memory) DeleteUpload(_ context.Context, uploadID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.records[uploadID]))
	delete(m.records, uploadID)
	return n, nil
}

// Count returns the number of stored records of an upload.
func (m *Memory) Count(_ context.Context, uploadID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records[uploadID])), nil
}

// All returns a copy of an upload's records in write order.
func (m *Memory) All(uploadID string) []model.SalesRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SalesRecord(nil), m.records[uploadID]...)
}

// Records returns one page of an upload's records, newest first.
func (m *Memory) Records(ctx context.Context, uploadID, sku string, offset, limit int) ([]model.SalesRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset, limit = Page(offset, limit)

	var recs []model.SalesRecord
	for _, r := range m.All(uploadID) {
		if sku == "" || r.SKUID == sku {
			recs = append(recs, r)
		}
	}
	SortNewestFirst(recs)
	if offset >= len(recs) {
		return nil, nil
	}
	return recs[offset:min(offset+limit, len(recs))], nil
}

// Summary aggregates an upload's records.
func (m *Memory) Summary(ctx context.Context, uploadID string) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Summarize(uploadID, m.All(uploadID)), nil
}
