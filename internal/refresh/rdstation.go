package refresh

import (
	"context"
	"sort"
	"time"
)

var emailCampaignCols = []string{"date", "campaignId", "sends", "opens", "clicks"}

// RefreshEmailCampaigns lists the window's email campaigns, resolves
// each one's delivery metrics, and replaces the window in
// fact_rd_email_campaign. Replacing instead of appending keeps
// repeated runs over overlapping windows from double-counting sends.
func (s *Service) RefreshEmailCampaigns(ctx context.Context, startDate, endDate string) (string, error) {
	if s.crm == nil {
		return "", ErrSourceNotConfigured
	}
	started := time.Now()

	campaigns, err := s.crm.FetchEmailCampaigns(ctx, startDate, endDate)
	if err != nil {
		s.record("fact_rd_email_campaign", "error", 0, time.Since(started))
		return "", err
	}

	rows := make([][]any, 0, len(campaigns))
	for _, c := range campaigns {
		id := c.ID()
		if id == "" {
			continue
		}
		date := c.SendDate("")
		if date == "" {
			// Listing endpoints sometimes answer with slim objects
			// missing the send timestamp; the detail endpoint usually
			// carries it.
			full, err := s.crm.FetchEmailCampaignByID(ctx, id)
			if err != nil {
				s.record("fact_rd_email_campaign", "error", 0, time.Since(started))
				return "", err
			}
			if full != nil {
				date = full.SendDate("")
			}
			if date == "" {
				date = endDate
			}
		}
		// The CRM listing is not reliably date-filtered, so a campaign
		// can carry a send date outside the window. Dropping those here
		// keeps the rows inside the range the replace deletes.
		if date < startDate || date > endDate {
			continue
		}
		m, err := s.crm.FetchEmailMetrics(ctx, id)
		if err != nil {
			s.record("fact_rd_email_campaign", "error", 0, time.Since(started))
			return "", err
		}
		rows = append(rows, []any{date, id, m.Sends, m.Opens, m.Clicks})
	}

	n, err := s.wh.ReplaceDateWindow(ctx, "fact_rd_email_campaign", startDate, endDate, emailCampaignCols, rows)
	if err != nil {
		s.record("fact_rd_email_campaign", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_rd_email_campaign", "ok", n, time.Since(started))
	return statusLine("fact_rd_email_campaign", startDate, endDate, n), nil
}

// RefreshLeadStages snapshots the funnel: contacts updated inside the
// window, counted per stage, stamped on the window's end date. Only
// the snapshot date is replaced, so re-running a day overwrites that
// day's counts without touching earlier snapshots.
func (s *Service) RefreshLeadStages(ctx context.Context, startDate, endDate string) (string, error) {
	if s.crm == nil {
		return "", ErrSourceNotConfigured
	}
	started := time.Now()

	contacts, err := s.crm.FetchContacts(ctx, startDate, endDate)
	if err != nil {
		s.record("fact_rd_lead_stage_daily", "error", 0, time.Since(started))
		return "", err
	}

	counts := make(map[string]int64, 8)
	for _, c := range contacts {
		counts[c.Stage()]++
	}
	stages := make([]string, 0, len(counts))
	for stage := range counts {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	rows := make([][]any, 0, len(stages))
	for _, stage := range stages {
		rows = append(rows, []any{endDate, stage, counts[stage]})
	}

	n, err := s.wh.ReplaceDateWindow(ctx, "fact_rd_lead_stage_daily", endDate, endDate,
		[]string{"date", "stage", "count"}, rows)
	if err != nil {
		s.record("fact_rd_lead_stage_daily", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_rd_lead_stage_daily", "ok", n, time.Since(started))
	return statusLine("fact_rd_lead_stage_daily", startDate, endDate, n), nil
}
