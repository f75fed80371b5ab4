// Package warehouse owns every table in the embedded analytical
// database. Writers go through the windowed-replace primitives here;
// the report package only reads.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Warehouse applies idempotent, transactional writes to the fact tables.
type Warehouse struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an open database handle. EnsureSchema must run before the
// first write; every write path calls it anyway, so a fresh database
// file needs no separate initialization step.
func New(db *sql.DB, logger *zap.Logger) *Warehouse {
	return &Warehouse{db: db, logger: logger}
}

// DB exposes the underlying handle for read-only aggregation queries.
func (w *Warehouse) DB() *sql.DB {
	return w.db
}

// EnsureSchema creates any missing tables. Idempotent.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	return nil
}

// ReplaceDateWindow deletes every row of table whose date falls inside
// [start, end] (inclusive, ISO dates) and inserts rows in their place,
// all inside one transaction. Re-running with identical input yields an
// identical table; rows outside the window are never touched.
func (w *Warehouse) ReplaceDateWindow(ctx context.Context, table, start, end string, cols []string, rows [][]any) (int, error) {
	if err := validateIdentifiers(table, cols); err != nil {
		return 0, err
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE date BETWEEN ? AND ?", table)
	return w.replace(ctx, table, del, []any{start, end}, cols, rows)
}

// ReplacePeriod is the windowed replace for period-keyed tables: the
// delete predicate matches the exact (startDate, endDate) pair instead
// of a date range.
func (w *Warehouse) ReplacePeriod(ctx context.Context, table, startDate, endDate string, cols []string, rows [][]any) (int, error) {
	if err := validateIdentifiers(table, cols); err != nil {
		return 0, err
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE startDate = ? AND endDate = ?", table)
	return w.replace(ctx, table, del, []any{startDate, endDate}, cols, rows)
}

// ReplaceAll rebuilds the full table from rows in one transaction. Used
// for reference tables such as map_utm_campaign.
func (w *Warehouse) ReplaceAll(ctx context.Context, table string, cols []string, rows [][]any) (int, error) {
	if err := validateIdentifiers(table, cols); err != nil {
		return 0, err
	}
	del := fmt.Sprintf("DELETE FROM %s", table)
	return w.replace(ctx, table, del, nil, cols, rows)
}

// Append inserts rows without deleting anything. Repeated imports of the
// same source data will duplicate; callers that need idempotency use a
// replace primitive instead.
func (w *Warehouse) Append(ctx context.Context, table string, cols []string, rows [][]any) (int, error) {
	if err := validateIdentifiers(table, cols); err != nil {
		return 0, err
	}
	return w.replace(ctx, table, "", nil, cols, rows)
}

// Materialize rebuilds a derived table from other fact tables: DELETE
// plus INSERT..SELECT in a single transaction.
func (w *Warehouse) Materialize(ctx context.Context, table, insertSelect string, args ...any) (int, error) {
	if _, ok := tableColumns[table]; !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if err := w.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	res, err := tx.ExecContext(ctx, insertSelect, args...)
	if err != nil {
		return 0, fmt.Errorf("materialize %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	w.logger.Info("materialized table",
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return int(n), nil
}

// replace runs the delete (when present) and the bulk insert inside one
// transaction. Any failure rolls everything back so readers never see a
// partially replaced window.
func (w *Warehouse) replace(ctx context.Context, table, del string, delArgs []any, cols []string, rows [][]any) (int, error) {
	if err := w.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if del != "" {
		if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
			return 0, fmt.Errorf("delete window on %s: %w", table, err)
		}
	}

	if len(rows) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
		ins := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
		stmt, err := tx.PrepareContext(ctx, ins)
		if err != nil {
			return 0, fmt.Errorf("prepare insert on %s: %w", table, err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if len(row) != len(cols) {
				return 0, fmt.Errorf("insert on %s: row %d has %d values, want %d", table, i, len(row), len(cols))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return 0, fmt.Errorf("insert on %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit on %s: %w", table, err)
	}

	w.logger.Debug("replaced window",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
	)
	return len(rows), nil
}

func validateIdentifiers(table string, cols []string) error {
	known, ok := tableColumns[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	for _, c := range cols {
		found := false
		for _, k := range known {
			if c == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown column %q on table %q", c, table)
		}
	}
	return nil
}
