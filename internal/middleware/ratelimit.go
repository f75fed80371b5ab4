package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/metrics"
)

// RateLimitMiddleware implements token bucket rate limiting. Read
// endpoints share one generous bucket; refresh endpoints get a much
// smaller one because every refresh run fans out to external APIs and
// rewrites whole date windows.
type RateLimitMiddleware struct {
	cfg            config.RateLimitConfig
	logger         *zap.Logger
	metrics        *metrics.Metrics
	queryLimiter   *rate.Limiter
	refreshLimiter *rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger, m *metrics.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:            cfg,
		logger:         logger,
		metrics:        m,
		queryLimiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		refreshLimiter: rate.NewLimiter(rate.Limit(cfg.RefreshRPS), cfg.RefreshBurst),
	}
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.queryLimiter
		endpoint := "query"
		if rl.isRefreshEndpoint(r.URL.Path) {
			limiter = rl.refreshLimiter
			endpoint = "refresh"
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(endpoint)
			}
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) isRefreshEndpoint(path string) bool {
	return strings.HasPrefix(path, "/refresh")
}

// tooManyRequests sends a 429 response.
func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
