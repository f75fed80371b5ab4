// Package normalize maps source-reported field names and encodings onto
// the canonical warehouse schema. All casts are best-effort: a cell that
// fails to parse becomes NULL, never an error, so one malformed row
// cannot sink a whole batch.
package normalize

import (
	"strconv"
	"strings"
	"time"
)

// Per-source rename tables. Keys are the names the source reports;
// values are warehouse column names.

// GA4SessionRenames maps the GA4 sessions report onto fact_sessions.
var GA4SessionRenames = map[string]string{
	"date":            "date",
	"totalUsers":      "users",
	"sessions":        "sessions",
	"screenPageViews": "pageviews",
}

// GA4UTMRenames maps the GA4 UTM report onto
// fact_ga4_sessions_by_utm_daily.
var GA4UTMRenames = map[string]string{
	"date":                "date",
	"sessionSource":       "source",
	"sessionMedium":       "medium",
	"sessionCampaignName": "campaign",
	"sessions":            "sessions",
	"totalUsers":          "users",
}

// VendorCSVRenames maps the pt-BR headers of manually exported GA4 CSVs
// onto warehouse column names.
var VendorCSVRenames = map[string]string{
	"Título da página":                      "page_title",
	"Caminho da página e classe da tela":    "page_path",
	"Visualizações":                         "pageviews",
	"Usuários ativos":                       "users",
	"Tempo médio de engajamento por sessão": "avg_session_duration",
	"Contagem de eventos":                   "event_count",
	"Data":                                  "date",
	"País":                                  "country",
}

// Rename translates a source field name, leaving unknown names as-is.
func Rename(table map[string]string, name string) string {
	if v, ok := table[name]; ok {
		return v
	}
	return name
}

// Date coerces a YYYYMMDD wire date to YYYY-MM-DD. Malformed input
// yields nil. Already-ISO input passes through unchanged.
func Date(raw string) *string {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		s := t.Format("2006-01-02")
		return &s
	}
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

// DateCompact is the inverse of Date: YYYY-MM-DD back to YYYYMMDD.
func DateCompact(iso string) *string {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(iso))
	if err != nil {
		return nil
	}
	s := t.Format("20060102")
	return &s
}

// Int parses a count, accepting the float-in-string form GA4 uses
// ("12.0"). Failure yields nil.
func Int(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &i
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	i := int64(f)
	return &i
}

// Float parses a rate or duration. Failure yields nil.
func Float(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

// IntFromFloat narrows an already-parsed metric to a count, preserving
// NULL.
func IntFromFloat(f *float64) *int64 {
	if f == nil {
		return nil
	}
	i := int64(*f)
	return &i
}

// IsTotalRow reports whether a title cell is one of the aggregate
// "total" rows some vendor exports append; those rows are dropped
// before ingestion.
func IsTotalRow(title string) bool {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "total", "total geral":
		return true
	}
	return false
}

// NormKey lowercases and trims a UTM component the same way the
// attribution join does, so mapping rows and session rows agree.
func NormKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
