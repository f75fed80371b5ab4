package refresh

import (
	"context"
	"time"
)

const topVideosLimit = 50

// RefreshChannelDaily pulls the per-day channel aggregate into
// fact_yt_channel_daily under a date-window replace.
func (s *Service) RefreshChannelDaily(ctx context.Context, startDate, endDate string) (string, error) {
	if s.yt == nil {
		return "", ErrSourceNotConfigured
	}
	started := time.Now()

	facts, err := s.yt.ChannelDaily(ctx, startDate, endDate)
	if err != nil {
		s.record("fact_yt_channel_daily", "error", 0, time.Since(started))
		return "", err
	}

	cols := []string{"date", "views", "estimatedMinutesWatched", "averageViewDuration"}
	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, []any{f.Date, f.Views, f.EstimatedMinutesWatched, f.AverageViewDuration})
	}

	n, err := s.wh.ReplaceDateWindow(ctx, "fact_yt_channel_daily", startDate, endDate, cols, rows)
	if err != nil {
		s.record("fact_yt_channel_daily", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_yt_channel_daily", "ok", n, time.Since(started))
	return statusLine("fact_yt_channel_daily", startDate, endDate, n), nil
}

// RefreshTopVideos pulls the period's video ranking into
// fact_yt_video_period. The delete predicate matches the exact
// (startDate, endDate) pair, so each stored period replaces only
// itself.
func (s *Service) RefreshTopVideos(ctx context.Context, startDate, endDate string) (string, error) {
	if s.yt == nil {
		return "", ErrSourceNotConfigured
	}
	started := time.Now()

	facts, err := s.yt.TopVideos(ctx, startDate, endDate, topVideosLimit)
	if err != nil {
		s.record("fact_yt_video_period", "error", 0, time.Since(started))
		return "", err
	}

	cols := []string{"videoId", "views", "estimatedMinutesWatched", "averageViewDuration", "startDate", "endDate"}
	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, []any{f.VideoID, f.Views, f.EstimatedMinutesWatched, f.AverageViewDuration, f.StartDate, f.EndDate})
	}

	n, err := s.wh.ReplacePeriod(ctx, "fact_yt_video_period", startDate, endDate, cols, rows)
	if err != nil {
		s.record("fact_yt_video_period", "error", 0, time.Since(started))
		return "", err
	}
	s.record("fact_yt_video_period", "ok", n, time.Since(started))
	return statusLine("fact_yt_video_period", startDate, endDate, n), nil
}
