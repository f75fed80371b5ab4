package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/now"

	"github.com/classplay/novodash/internal/models"
)

const dateLayout = "2006-01-02"

// WoWComparatives compares the 7 days ending at endDate against the 7
// days immediately before. Sessions come from fact_sessions, minutes
// from fact_yt_channel_daily.
func (s *Service) WoWComparatives(ctx context.Context, endDate string) (models.Comparatives, error) {
	var out models.Comparatives
	err := s.cached(ctx, "wow", []string{endDate}, &out, func() (interface{}, error) {
		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("wow comparatives: bad end date %q: %w", endDate, err)
		}
		curStart := end.AddDate(0, 0, -6)
		prevEnd := curStart.AddDate(0, 0, -1)
		prevStart := prevEnd.AddDate(0, 0, -6)

		return s.comparatives(ctx,
			curStart.Format(dateLayout), end.Format(dateLayout),
			prevStart.Format(dateLayout), prevEnd.Format(dateLayout))
	})
	return out, err
}

// MTDComparatives compares month-to-date against the same day count at
// the start of the prior month.
func (s *Service) MTDComparatives(ctx context.Context, endDate string) (models.Comparatives, error) {
	var out models.Comparatives
	err := s.cached(ctx, "mtd", []string{endDate}, &out, func() (interface{}, error) {
		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("mtd comparatives: bad end date %q: %w", endDate, err)
		}
		curStart := now.New(end).BeginningOfMonth()
		dayCount := int(end.Sub(curStart).Hours() / 24)
		prevStart := now.New(curStart.AddDate(0, 0, -1)).BeginningOfMonth()
		prevEnd := prevStart.AddDate(0, 0, dayCount)

		return s.comparatives(ctx,
			curStart.Format(dateLayout), end.Format(dateLayout),
			prevStart.Format(dateLayout), prevEnd.Format(dateLayout))
	})
	return out, err
}

func (s *Service) comparatives(ctx context.Context, curStart, curEnd, prevStart, prevEnd string) (models.Comparatives, error) {
	var c models.Comparatives

	curSes, err := s.windowSum(ctx, "fact_sessions", "sessions", curStart, curEnd)
	if err != nil {
		return c, err
	}
	prevSes, err := s.windowSum(ctx, "fact_sessions", "sessions", prevStart, prevEnd)
	if err != nil {
		return c, err
	}
	c.Sessions = delta(curSes, prevSes)

	curMin, err := s.windowSum(ctx, "fact_yt_channel_daily", "estimatedMinutesWatched", curStart, curEnd)
	if err != nil {
		return c, err
	}
	prevMin, err := s.windowSum(ctx, "fact_yt_channel_daily", "estimatedMinutesWatched", prevStart, prevEnd)
	if err != nil {
		return c, err
	}
	c.Minutes = delta(curMin, prevMin)
	return c, nil
}

// delta computes the percent change with the zero sentinels: 0.0 when
// both windows are zero, 100.0 when only the previous one is.
func delta(current, previous float64) models.MetricDelta {
	d := models.MetricDelta{Current: current, Previous: previous}
	switch {
	case previous == 0 && current == 0:
		d.DeltaPct = 0.0
	case previous == 0:
		d.DeltaPct = 100.0
	default:
		d.DeltaPct = (current - previous) / previous * 100
	}
	return d
}
