package slack

import (
	"fmt"
	"strings"

	"github.com/classplay/novodash/internal/models"
)

// WeeklySummary is the data behind the deterministic weekly text
// report. Fields map one-to-one onto aggregation results.
type WeeklySummary struct {
	StartDate string
	EndDate   string
	KPIs      models.KPISummary
	Funnel    models.VideoFunnel
	TopPages  []models.TopPage
	Countries []models.TopCountry
}

// BuildWeeklySummary renders the summary as the plain-text message
// posted to the webhook. The output is deterministic for a given
// input, so repeated sends for the same window are identical.
func BuildWeeklySummary(s WeeklySummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Resumo semanal (%s a %s)\n\n", s.StartDate, s.EndDate)

	fmt.Fprintf(&b, "KPIs\n")
	fmt.Fprintf(&b, "- Usuários: %s\n", formatCount(s.KPIs.Users))
	fmt.Fprintf(&b, "- Sessões: %s\n", formatCount(s.KPIs.Sessions))
	fmt.Fprintf(&b, "- Pageviews: %s\n\n", formatCount(s.KPIs.Pageviews))

	fmt.Fprintf(&b, "Funil de Vídeos\n")
	fmt.Fprintf(&b, "- Start: %d\n", s.Funnel.Start)
	fmt.Fprintf(&b, "- Progress: %d\n", s.Funnel.Progress)
	fmt.Fprintf(&b, "- Completion: %.1f%%\n\n", s.Funnel.CompletionRate)

	fmt.Fprintf(&b, "Top Páginas\n")
	if len(s.TopPages) == 0 {
		b.WriteString("(sem dados)\n")
	}
	for i, p := range s.TopPages {
		title := p.PageTitle
		if title == "" {
			title = p.PagePath
		}
		if title == "" {
			title = "(sem título)"
		}
		fmt.Fprintf(&b, "%d. %s – %d pageviews\n", i+1, title, p.Pageviews)
	}

	if len(s.Countries) > 0 {
		fmt.Fprintf(&b, "\nTop Países\n")
		for i, c := range s.Countries {
			fmt.Fprintf(&b, "%d. %s – %d usuários\n", i+1, c.CountryID, c.Users)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatCount renders a whole number with pt-BR thousand separators.
func formatCount(v float64) string {
	n := int64(v)
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ".")
	if neg {
		out = "-" + out
	}
	return out
}
