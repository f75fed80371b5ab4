// Package report is the read side of the warehouse: pure aggregation
// queries over the fact tables. Queries never write, and a table that
// does not exist yet reads as empty.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/database"
	"github.com/classplay/novodash/internal/metrics"
	"github.com/classplay/novodash/internal/warehouse"
)

// Service answers aggregation queries. The Redis cache is optional;
// when absent every query hits SQLite directly.
type Service struct {
	db       *sql.DB
	wh       *warehouse.Warehouse
	cache    *database.RedisDB
	cacheTTL time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(wh *warehouse.Warehouse, cache *database.RedisDB, cacheTTL time.Duration, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		db:       wh.DB(),
		wh:       wh,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		metrics:  m,
	}
}

// cached serves dest from Redis when a fresh entry exists, otherwise
// runs fill and stores its result. Cache failures degrade to a direct
// query, never to an error.
func (s *Service) cached(ctx context.Context, query string, keyParts []string, dest interface{}, fill func() (interface{}, error)) error {
	key := "report:" + query
	if len(keyParts) > 0 {
		key += ":" + strings.Join(keyParts, ":")
	}

	if s.cache != nil {
		data, err := s.cache.GetBytes(ctx, key)
		if err == nil {
			if err := json.Unmarshal(data, dest); err == nil {
				if s.metrics != nil {
					s.metrics.ReportCacheHit.WithLabelValues(query).Inc()
				}
				return nil
			}
			s.logger.Warn("dropping unreadable report cache entry", zap.String("key", key))
		}
	}

	start := time.Now()
	result, err := fill()
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.QueryLatency.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", query, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("copy %s result: %w", query, err)
	}
	if s.cache != nil {
		if err := s.cache.SetBytes(ctx, key, data, s.cacheTTL); err != nil {
			s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// queryRows runs a row-producing query, treating a missing table as an
// empty result. scan is called once per row.
func (s *Service) queryRows(ctx context.Context, query string, args []interface{}, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if warehouse.IsMissingTable(err) {
			return nil
		}
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// windowSum evaluates a single COALESCE'd aggregate over a date window.
func (s *Service) windowSum(ctx context.Context, table, expr, start, end string) (float64, error) {
	q := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0) FROM %s WHERE date BETWEEN ? AND ?", expr, table)
	var v float64
	err := s.db.QueryRowContext(ctx, q, start, end).Scan(&v)
	if err != nil {
		if warehouse.IsMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("sum %s on %s: %w", expr, table, err)
	}
	return v, nil
}
