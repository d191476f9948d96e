// Package tui renders skuflow results for the terminal.
// Simple, streaming output: styled lines and a progress bar, no full-screen UI.
package tui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/pipeline"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/storage"
	"github.com/skuflow/skuflow/pkg/validation"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  SKUFLOW")+mutedStyle.Render(" v"+version))
	fmt.Fprintln(w, mutedStyle.Render("  Sales and inventory upload cleaning"))
	fmt.Fprintln(w)
}

// PrintUpload prints the state of one upload.
func PrintUpload(w io.Writer, u *model.Upload) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Upload:"), codeStyle.Render(u.ID))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("File:"), titleStyle.Render(u.Filename))
	fmt.Fprintf(w, "  %s %s, %s rows x %d columns\n",
		mutedStyle.Render("Size:"), formatBytes(u.SizeBytes), formatNumber(int64(u.RowCount)), u.ColumnCount)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Status:"), statusStyle(u.Status).Render(string(u.Status)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Uploaded:"), u.UploadedAt.Local().Format(time.DateTime))
	if u.ProcessedAt != nil {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Finished:"), u.ProcessedAt.Local().Format(time.DateTime))
	}
	if u.ErrorMessage != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Error:"), accentStyle.Render(u.ErrorMessage))
	}
	fmt.Fprintln(w)
}

// PrintUploads prints one line per upload.
func PrintUploads(w io.Writer, uploads []*model.Upload) {
	if len(uploads) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No uploads."))
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("%-36s  %-10s  %8s  %-19s  %s", "ID", "STATUS", "ROWS", "UPLOADED", "FILE")))
	for _, u := range uploads {
		status := statusStyle(u.Status).Render(fmt.Sprintf("%-10s", u.Status))
		fmt.Fprintf(w, "  %-36s  %s  %8d  %-19s  %s\n",
			u.ID, status, u.RowCount, u.UploadedAt.Local().Format(time.DateTime), u.Filename)
	}
	fmt.Fprintln(w)
}

// PrintStats prints upload counts by status.
func PrintStats(w io.Writer, stats map[model.Status]int64) {
	var parts []string
	for _, s := range []model.Status{model.StatusUploaded, model.StatusProcessing, model.StatusProcessed, model.StatusError} {
		parts = append(parts, fmt.Sprintf("%s %s", statusStyle(s).Render(strconv.FormatInt(stats[s], 10)), mutedStyle.Render(string(s))))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(parts, mutedStyle.Render(" · ")))
}

// PrintSchema prints the detected columns and their suggested roles.
func PrintSchema(w io.Writer, s *schema.TableSchema) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ SCHEMA"))
	fmt.Fprintf(w, "  %s rows x %d columns, ~%s in memory\n",
		titleStyle.Render(formatNumber(int64(s.RowCount))), s.ColumnCount, formatBytes(s.MemoryEstimate))
	fmt.Fprintln(w, mutedStyle.Render(rule))
	for _, c := range s.Columns {
		role := mutedStyle.Render(string(schema.MappingUnmapped))
		if c.SuggestedMapping.IsMapped() {
			role = successStyle.Render(string(c.SuggestedMapping))
		}
		fmt.Fprintf(w, "  %-24s %-12s %-12s %s\n",
			c.Name, c.DetectedType, role,
			mutedStyle.Render(fmt.Sprintf("%.1f%% null, %d unique, e.g. %s", c.NullPercentage, c.UniqueCount, strings.Join(c.SampleValues, ", "))))
	}
	fmt.Fprintln(w, mutedStyle.Render(rule))
	fmt.Fprintf(w, "  %s %s   %s %s\n",
		mutedStyle.Render("Date column:"), orNone(s.SuggestedDateColumn),
		mutedStyle.Render("SKU column:"), orNone(s.SuggestedSKUColumn))
}

// PrintValidation prints a validation report.
func PrintValidation(w io.Writer, title string, r *validation.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ "+strings.ToUpper(title)))
	if r.IsValid {
		fmt.Fprintf(w, "  %s %s\n", successStyle.Render("✓"), r.Summary)
	} else {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("✗"), r.Summary)
	}
	for _, is := range r.Issues {
		col := ""
		if is.Column != "" {
			col = codeStyle.Render(is.Column) + " "
		}
		fmt.Fprintf(w, "  %s %s%s\n", severityStyle(is.Severity).Render(fmt.Sprintf("%-7s", is.Severity)), col, is.Message)
		if is.Suggestion != "" {
			fmt.Fprintf(w, "          %s\n", mutedStyle.Render(is.Suggestion))
		}
	}
}

// PrintProcessingReport prints the outcome of a run. At most maxErrors row
// entries are listed.
func PrintProcessingReport(w io.Writer, r *pipeline.ProcessingReport, maxErrors int) {
	fmt.Fprintln(w)
	if r.Failure != "" {
		fmt.Fprintln(w, accentStyle.Render("  ✗ PROCESSING FAILED"))
	} else {
		fmt.Fprintln(w, successStyle.Render("  ✓ PROCESSING COMPLETE"))
	}
	fmt.Fprintln(w)

	line := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-20s", label)), value)
	}
	line("Input rows:", titleStyle.Render(formatNumber(int64(r.InputRows))))
	line("Processed:", titleStyle.Render(formatNumber(int64(r.RowsProcessed))))
	line("Failed:", countStyle(r.RowsFailed, accentStyle).Render(strconv.Itoa(r.RowsFailed)))
	line("Anomalous:", countStyle(r.RowsAnomalous, warningStyle).Render(strconv.Itoa(r.RowsAnomalous)))
	line("Duplicates removed:", strconv.Itoa(r.DuplicatesRemoved))
	line("Outliers removed:", strconv.Itoa(r.OutliersRemoved))
	persisted := formatNumber(r.RowsPersisted)
	if r.RolledBack {
		persisted += " " + warningStyle.Render("(rolled back)")
	}
	line("Records persisted:", persisted)
	line("Time:", formatDuration(time.Duration(r.ProcessingTime*float64(time.Second))))

	if r.Failure != "" {
		line("Failure:", accentStyle.Render(r.Failure))
	}

	if len(r.Errors) > 0 && maxErrors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render(rule))
		for i, e := range r.Errors {
			if i == maxErrors {
				fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("… %d more", len(r.Errors)-maxErrors+r.ErrorsTruncated)))
				break
			}
			where := "table"
			if e.Row > 0 {
				where = "row " + strconv.Itoa(e.Row)
			}
			if e.Column != "" {
				where += " " + e.Column
			}
			fmt.Fprintf(w, "  %s %-18s %s %s\n",
				severityStyle(e.Severity).Render(fmt.Sprintf("%-7s", e.Severity)), where, e.Error, mutedStyle.Render("("+e.Action+")"))
		}
	}

	if r.PostValidation != nil {
		PrintValidation(w, "post-clean validation", r.PostValidation)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n\n", mutedStyle.Render(r.Summary))
}

// PrintRecords prints cleaned records as a table.
func PrintRecords(w io.Writer, recs []model.SalesRecord) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  %-10s  %-16s  %10s  %10s  %12s  %-14s  %s",
		"DATE", "SKU", "QTY", "PRICE", "REVENUE", "CATEGORY", "FLAGS")))
	for _, r := range recs {
		flags := ""
		if r.IsAnomaly {
			flags = warningStyle.Render(r.AnomalyFlags.String())
		}
		cat := ""
		if r.Category != nil {
			cat = *r.Category
		}
		fmt.Fprintf(w, "  %-10s  %-16s  %10s  %10s  %12s  %-14s  %s\n",
			r.Date.Format(time.DateOnly), truncate(r.SKUID, 16),
			formatFloat(r.SalesQuantity), formatFloat(r.UnitPrice), formatFloat(r.SalesRevenue),
			truncate(cat, 14), flags)
	}
	fmt.Fprintln(w)
}

// PrintSalesPage prints one page of persisted records starting at offset.
func PrintSalesPage(w io.Writer, recs []model.SalesRecord, offset int) {
	if len(recs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No records."))
		return
	}
	PrintRecords(w, recs)
	fmt.Fprintf(w, "  %s\n\n", mutedStyle.Render(fmt.Sprintf("records %d-%d", offset+1, offset+len(recs))))
}

// PrintSalesSummary prints the aggregates of an upload's persisted records.
func PrintSalesSummary(w io.Writer, s *storage.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ SALES SUMMARY"))
	if s.Empty() {
		fmt.Fprintf(w, "  %s\n\n", mutedStyle.Render("No sales data found for upload "+s.UploadID))
		return
	}
	line := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-18s", label)), value)
	}
	line("Records:", titleStyle.Render(formatNumber(s.Records)))
	line("Unique SKUs:", titleStyle.Render(formatNumber(s.UniqueSKUs)))
	line("Total quantity:", strconv.FormatFloat(s.TotalQuantity, 'f', -1, 64))
	line("Average quantity:", strconv.FormatFloat(s.AvgQuantity, 'f', 2, 64))
	line("Total revenue:", strconv.FormatFloat(s.TotalRevenue, 'f', 2, 64))
	line("Average revenue:", strconv.FormatFloat(s.AvgRevenue, 'f', 2, 64))
	line("Date range:", s.FirstDate.Format(time.DateOnly)+" .. "+s.LastDate.Format(time.DateOnly))
	fmt.Fprintln(w)
}

// ShowProgress creates a progress bar for processing.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func statusStyle(s model.Status) lipgloss.Style {
	switch s {
	case model.StatusProcessed:
		return successStyle
	case model.StatusError:
		return accentStyle
	case model.StatusProcessing:
		return warningStyle
	default:
		return titleStyle
	}
}

func severityStyle(s validation.Severity) lipgloss.Style {
	switch s {
	case validation.SeverityError:
		return accentStyle
	case validation.SeverityWarning:
		return warningStyle
	default:
		return mutedStyle
	}
}

func countStyle(n int, nonZero lipgloss.Style) lipgloss.Style {
	if n > 0 {
		return nonZero
	}
	return titleStyle
}

func orNone(s string) string {
	if s == "" {
		return accentStyle.Render("none")
	}
	return titleStyle.Render(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
