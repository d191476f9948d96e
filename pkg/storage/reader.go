package storage

import (
	"context"
	"sort"
	"time"

	"github.com/skuflow/skuflow/pkg/model"
)

// Page size bounds for Reader.Records.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Reader is implemented by repositories that serve persisted records back.
//
// Records returns one page of an upload's records, newest date first and by
// SKU within a date. An empty sku matches every SKU.
type Reader interface {
	Records(ctx context.Context, uploadID, sku string, offset, limit int) ([]model.SalesRecord, error)
	Summary(ctx context.Context, uploadID string) (*Summary, error)
}

// Summary aggregates an upload's persisted records. Averages skip missing
// values; the dates are zero when there are no records.
type Summary struct {
	UploadID      string    `json:"upload_id"`
	Records       int64     `json:"total_records"`
	TotalQuantity float64   `json:"total_quantity"`
	TotalRevenue  float64   `json:"total_revenue"`
	AvgQuantity   float64   `json:"average_quantity"`
	AvgRevenue    float64   `json:"average_revenue"`
	UniqueSKUs    int64     `json:"unique_skus"`
	FirstDate     time.Time `json:"first_date"`
	LastDate      time.Time `json:"last_date"`
}

// Empty reports whether the upload has no persisted records.
func (s *Summary) Empty() bool { return s.Records == 0 }

// Page clamps a requested page: negative offsets become zero and limits fall
// into [1, MaxPageSize], with DefaultPageSize for zero or less.
func Page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return offset, limit
}

// Summarize computes the summary of recs in memory.
func Summarize(uploadID string, recs []model.SalesRecord) *Summary {
	s := &Summary{UploadID: uploadID, Records: int64(len(recs))}
	skus := make(map[string]struct{})
	var nQty, nRev int
	for i := range recs {
		r := &recs[i]
		skus[r.SKUID] = struct{}{}
		if r.SalesQuantity != nil {
			s.TotalQuantity += *r.SalesQuantity
			nQty++
		}
		if r.SalesRevenue != nil {
			s.TotalRevenue += *r.SalesRevenue
			nRev++
		}
		if s.FirstDate.IsZero() || r.Date.Before(s.FirstDate) {
			s.FirstDate = r.Date
		}
		if r.Date.After(s.LastDate) {
			s.LastDate = r.Date
		}
	}
	if nQty > 0 {
		s.AvgQuantity = s.TotalQuantity / float64(nQty)
	}
	if nRev > 0 {
		s.AvgRevenue = s.TotalRevenue / float64(nRev)
	}
	s.UniqueSKUs = int64(len(skus))
	return s
}

// SortNewestFirst orders records the way Reader.Records pages them.
func SortNewestFirst(recs []model.SalesRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.After(recs[j].Date)
		}
		return recs[i].SKUID < recs[j].SKUID
	})
}
