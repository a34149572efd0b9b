package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/modlens/modlens/internal/core"
)

// TableFormatter renders records as an ASCII table.
type TableFormatter struct{}

// FormatRecords renders cached mod records as a table.
func (f *TableFormatter) FormatRecords(records []*core.ModRecord) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Title", "State", "Last Fetched", "Failures", "Notes"})

	for _, r := range records {
		if r == nil {
			continue
		}
		t.AppendRow(table.Row{
			r.Key,
			titleLabel(r),
			string(r.FetchState),
			fetchedLabel(r),
			r.ConsecutiveFailures,
			notesLabel(r),
		})
	}

	if len(records) > 0 {
		t.AppendFooter(table.Row{
			"",
			"",
			fmt.Sprintf("%d records", len(records)),
			"",
			"",
			"",
		})
	}

	return t.Render(), nil
}

func titleLabel(r *core.ModRecord) string {
	if r.Payload == nil || r.Payload.Title == "" {
		return "-"
	}
	return r.Payload.Title
}

func fetchedLabel(r *core.ModRecord) string {
	if r.LastFetchedAt == nil {
		return "never"
	}
	return r.LastFetchedAt.UTC().Format(time.RFC3339)
}

func notesLabel(r *core.ModRecord) string {
	if r.LastError != "" {
		return r.LastError
	}
	return ""
}
