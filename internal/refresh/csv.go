package refresh

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/classplay/novodash/internal/normalize"
)

// ImportCampaignMapCSV loads the static UTM-to-campaign lookup that
// drives attribution. Expected header: utm_source, utm_medium,
// utm_campaign, campaignId, campaign_name. The normalized (lower,
// trimmed) key columns are derived here so the join never depends on
// the spreadsheet's casing. The whole table is replaced on every
// import.
func (s *Service) ImportCampaignMapCSV(ctx context.Context, path string) (string, error) {
	started := time.Now()
	records, header, err := readCSV(path)
	if err != nil {
		s.record("map_utm_campaign", "error", 0, time.Since(started))
		return "", err
	}

	col := headerIndex(header)
	cols := []string{"utm_source", "utm_medium", "utm_campaign", "campaignId", "campaign_name",
		"utm_source_norm", "utm_medium_norm", "utm_campaign_norm"}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		source := field(rec, col, "utm_source")
		medium := field(rec, col, "utm_medium")
		campaign := field(rec, col, "utm_campaign")
		rows = append(rows, []any{
			source, medium, campaign,
			field(rec, col, "campaignId"),
			field(rec, col, "campaign_name"),
			normalize.NormKey(source),
			normalize.NormKey(medium),
			normalize.NormKey(campaign),
		})
	}

	n, err := s.wh.ReplaceAll(ctx, "map_utm_campaign", cols, rows)
	if err != nil {
		s.record("map_utm_campaign", "error", 0, time.Since(started))
		return "", err
	}
	s.record("map_utm_campaign", "ok", n, time.Since(started))
	return fmt.Sprintf("Imported map_utm_campaign from %s (n=%d)", path, n), nil
}

// ImportPagesCSV ingests a manually exported pages report. Headers
// arrive in the vendor's pt-BR spelling and the export carries a
// trailing aggregate row, both handled by the rename table and the
// total-row filter. Rows land in fact_ga4_pages_daily over the
// export's own date span.
func (s *Service) ImportPagesCSV(ctx context.Context, path string) (string, error) {
	started := time.Now()
	records, header, err := readCSV(path)
	if err != nil {
		s.record("fact_ga4_pages_daily", "error", 0, time.Since(started))
		return "", err
	}

	renamed := make([]string, len(header))
	for i, h := range header {
		renamed[i] = normalize.Rename(normalize.VendorCSVRenames, h)
	}
	col := headerIndex(renamed)

	cols := []string{"date", "pagePath", "pageTitle", "screenPageViews", "sessions", "totalUsers"}
	var rows [][]any
	var minDate, maxDate string
	for _, rec := range records {
		title := field(rec, col, "page_title")
		if normalize.IsTotalRow(title) {
			continue
		}
		date := normalize.Date(field(rec, col, "date"))
		if date != nil {
			if minDate == "" || *date < minDate {
				minDate = *date
			}
			if *date > maxDate {
				maxDate = *date
			}
		}
		rows = append(rows, []any{
			date,
			field(rec, col, "page_path"),
			title,
			normalize.Int(field(rec, col, "pageviews")),
			nil, // sessions are not part of the vendor export
			normalize.Int(field(rec, col, "users")),
		})
	}

	var n int
	if minDate == "" {
		// Export without a date column: stamp rows with today and
		// append, preserving whatever is already there.
		today := time.Now().Format("2006-01-02")
		for i := range rows {
			rows[i][0] = today
		}
		n, err = s.wh.Append(ctx, "fact_ga4_pages_daily", cols, rows)
		minDate, maxDate = today, today
	} else {
		// A NULL date never matches the window delete, so a mixed
		// export would duplicate its undated rows on re-import. Only
		// dated rows take the replace path.
		dated := rows[:0]
		for _, row := range rows {
			if d, _ := row[0].(*string); d != nil {
				dated = append(dated, row)
			}
		}
		n, err = s.wh.ReplaceDateWindow(ctx, "fact_ga4_pages_daily", minDate, maxDate, cols, dated)
	}
	if err != nil {
		s.record("fact_ga4_pages_daily", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_ga4_pages_daily", "ok", n, time.Since(started))
	return statusLine("fact_ga4_pages_daily", minDate, maxDate, n), nil
}

// ImportEmailCampaignsCSV appends an ad hoc email campaign export to
// fact_rd_email_campaign without deleting anything. Re-importing the
// same file duplicates rows; the API-backed refresh is the idempotent
// path.
func (s *Service) ImportEmailCampaignsCSV(ctx context.Context, path string) (string, error) {
	started := time.Now()
	records, header, err := readCSV(path)
	if err != nil {
		s.record("fact_rd_email_campaign", "error", 0, time.Since(started))
		return "", err
	}

	col := headerIndex(header)
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			normalize.Date(field(rec, col, "date")),
			field(rec, col, "campaignId"),
			normalize.Int(field(rec, col, "sends")),
			normalize.Int(field(rec, col, "opens")),
			normalize.Int(field(rec, col, "clicks")),
		})
	}

	n, err := s.wh.Append(ctx, "fact_rd_email_campaign", emailCampaignCols, rows)
	if err != nil {
		s.record("fact_rd_email_campaign", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_rd_email_campaign", "ok", n, time.Since(started))
	return fmt.Sprintf("Appended fact_rd_email_campaign from %s (n=%d)", path, n), nil
}

func readCSV(path string) (records [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("csv %s is empty", path)
	}
	return all[1:], all[0], nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}
