package httpserver

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/slack"
)

// reportHandler wraps the shared method check and error handling of
// the read-only endpoints.
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request, fetch func() (interface{}, error)) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := fetch()
	if err != nil {
		s.logger.Error("report query failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, "query failed", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, data)
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.KPIs(r.Context(), start, end)
	})
}

func (s *Server) handleTopPages(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.TopPages(r.Context(), start, end, limitParam(r))
	})
}

func (s *Server) handlePagesWeekly(w http.ResponseWriter, r *http.Request) {
	weeks := 8
	if v := r.URL.Query().Get("weeks"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			weeks = n
		}
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.PagesWeeklyComparison(r.Context(), weeks)
	})
}

func (s *Server) handlePagesPareto(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.PagesPareto(r.Context(), start, end, limitParam(r))
	})
}

func (s *Server) handleVideoFunnel(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.VideoFunnel(r.Context(), start, end)
	})
}

func (s *Server) handleTopCountries(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.TopCountries(r.Context(), start, end, limitParam(r))
	})
}

func (s *Server) handleTopWeekdays(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.TopWeekdays(r.Context(), start, end)
	})
}

func (s *Server) handleWoW(w http.ResponseWriter, r *http.Request) {
	_, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.WoWComparatives(r.Context(), end)
	})
}

func (s *Server) handleMTD(w http.ResponseWriter, r *http.Request) {
	_, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.MTDComparatives(r.Context(), end)
	})
}

func (s *Server) handleChannelDaily(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.ChannelDaily(r.Context(), start, end)
	})
}

func (s *Server) handleTopVideos(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.TopVideos(r.Context(), start, end, limitParam(r))
	})
}

func (s *Server) handleVideoRetention(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.VideoRetention(r.Context(), start, end, limitParam(r))
	})
}

func (s *Server) handleEngagementSeries(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.EngagementSeries(r.Context(), start, end)
	})
}

func (s *Server) handleEngagementKPIs(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.EngagementKPIs(r.Context(), start, end)
	})
}

func (s *Server) handleUTMAggregates(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.UTMAggregates(r.Context(), start, end, limitParam(r))
	})
}

func (s *Server) handleCampaignSessions(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.CampaignSessions(r.Context(), start, end)
	})
}

func (s *Server) handleImpactSummaries(w http.ResponseWriter, r *http.Request) {
	s.reportHandler(w, r, func() (interface{}, error) {
		return s.reportService.ImpactSummaries(r.Context())
	})
}

// ---- Slack ----

// handleNotifyWeekly assembles the weekly summary from the aggregation
// queries and posts it to the configured webhook.
func (s *Server) handleNotifyWeekly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.slackClient == nil {
		s.errorResponse(w, "slack webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// The summary covers a week by default.
	start, end, err := windowDays(r, 7)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	kpis, err := s.reportService.KPIs(ctx, start, end)
	if err != nil {
		s.errorResponse(w, "query failed", http.StatusInternalServerError)
		return
	}
	funnel, err := s.reportService.VideoFunnel(ctx, start, end)
	if err != nil {
		s.errorResponse(w, "query failed", http.StatusInternalServerError)
		return
	}
	pages, err := s.reportService.TopPages(ctx, start, end, 5)
	if err != nil {
		s.errorResponse(w, "query failed", http.StatusInternalServerError)
		return
	}
	countries, err := s.reportService.TopCountries(ctx, start, end, 5)
	if err != nil {
		s.errorResponse(w, "query failed", http.StatusInternalServerError)
		return
	}

	text := slack.BuildWeeklySummary(slack.WeeklySummary{
		StartDate: start,
		EndDate:   end,
		KPIs:      kpis,
		Funnel:    funnel,
		TopPages:  pages,
		Countries: countries,
	})

	status, err := s.slackClient.SendText(ctx, text)
	if err != nil {
		s.logger.Error("slack notify failed", zap.Int("status", status), zap.Error(err))
		s.errorResponse(w, "slack delivery failed", http.StatusBadGateway)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"delivered":  true,
		"status":     status,
		"start_date": start,
		"end_date":   end,
	})
}
