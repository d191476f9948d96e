package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/pipeline"
	"github.com/skuflow/skuflow/pkg/storage"
	"github.com/skuflow/skuflow/pkg/validation"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatBytes(512), "512 B"},
		{formatBytes(1536), "1.5 KB"},
		{formatBytes(3 << 20), "3.0 MB"},
		{formatNumber(999), "999"},
		{formatNumber(12500), "12.5K"},
		{formatNumber(2500000), "2.5M"},
		{formatDuration(250 * time.Millisecond), "250ms"},
		{formatDuration(1500 * time.Millisecond), "1.5s"},
		{formatDuration(125 * time.Second), "2m5s"},
		{truncate("ABCDEFGH", 5), "ABCD…"},
		{truncate("ABC", 5), "ABC"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
	v := 2.5
	if got := formatFloat(&v); got != "2.5" {
		t.Errorf("formatFloat(2.5) = %q", got)
	}
	if got := formatFloat(nil); got != "-" {
		t.Errorf("formatFloat(nil) = %q", got)
	}
}

func TestPrintProcessingReport(t *testing.T) {
	r := &pipeline.ProcessingReport{
		UploadID:      "u1",
		InputRows:     10,
		RowsProcessed: 9,
		RowsFailed:    1,
		RowsPersisted: 9,
		Errors: []pipeline.ErrorRecord{
			{Row: 4, Column: "sku", Error: "missing sku", Severity: validation.SeverityError, Action: pipeline.ActionExcluded},
			{Row: 7, Error: "duplicate", Severity: validation.SeverityInfo, Action: pipeline.ActionRemoved},
		},
		Summary: "Processed 9 of 10 rows (1 failed); 9 records persisted",
	}
	var buf bytes.Buffer
	PrintProcessingReport(&buf, r, 1)
	out := buf.String()
	for _, want := range []string{"PROCESSING COMPLETE", "missing sku", "row 4 sku", "1 more", r.Summary} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "duplicate") {
		t.Error("output lists entries past the limit")
	}
}

func TestPrintUploads(t *testing.T) {
	var buf bytes.Buffer
	PrintUploads(&buf, nil)
	if !strings.Contains(buf.String(), "No uploads") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	PrintUploads(&buf, []*model.Upload{{ID: "abc", Filename: "march.csv", Status: model.StatusError, RowCount: 12}})
	if !strings.Contains(buf.String(), "march.csv") || !strings.Contains(buf.String(), "abc") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintSalesSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSalesSummary(&buf, &storage.Summary{UploadID: "u9"})
	if !strings.Contains(buf.String(), "No sales data found for upload u9") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	PrintSalesSummary(&buf, &storage.Summary{
		UploadID:      "u1",
		Records:       4,
		TotalQuantity: 10,
		TotalRevenue:  125.5,
		AvgQuantity:   2.5,
		AvgRevenue:    31.4,
		UniqueSKUs:    3,
		FirstDate:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		LastDate:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	out := buf.String()
	for _, want := range []string{"125.50", "31.40", "2.50", "2024-01-02 .. 2024-03-31"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSalesPage(t *testing.T) {
	var buf bytes.Buffer
	PrintSalesPage(&buf, nil, 0)
	if !strings.Contains(buf.String(), "No records") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	qty := 3.0
	PrintSalesPage(&buf, []model.SalesRecord{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), SKUID: "SKU-7", SalesQuantity: &qty},
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), SKUID: "SKU-8"},
	}, 100)
	out := buf.String()
	for _, want := range []string{"SKU-7", "2024-02-01", "records 101-102"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
