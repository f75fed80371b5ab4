package ga4

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Cache stores report results as JSON files keyed by the query shape,
// so repeated refreshes of the same window skip the API entirely. Cache
// failures are logged and swallowed, they never fail a fetch.
type Cache struct {
	dir    string
	logger *zap.Logger
}

func NewCache(dir string, logger *zap.Logger) *Cache {
	return &Cache{dir: dir, logger: logger}
}

// Key derives the cache file name from the query's dimensions, metrics
// and date range.
func (c *Cache) Key(q Query) string {
	name := "ga4__" + strings.Join(q.Dimensions, "-") +
		"__" + strings.Join(q.Metrics, "-") +
		"__" + q.StartDate + "_" + q.EndDate + ".json"
	return sanitizeFilename(name)
}

// Get loads a cached report, reporting whether one was found.
func (c *Cache) Get(q Query) (*Report, bool) {
	path := filepath.Join(c.dir, c.Key(q))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Warn("discarding unreadable cache entry",
			zap.String("path", path),
			zap.Error(err))
		return nil, false
	}
	return &report, true
}

// Put writes the result under the query's key. Empty reports are
// written too, so a window known to have no data is not refetched.
func (c *Cache) Put(q Query, report *Report) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("cache dir unavailable", zap.String("dir", c.dir), zap.Error(err))
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}
	path := filepath.Join(c.dir, c.Key(q))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Warn("cache write failed", zap.String("path", path), zap.Error(err))
	}
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
