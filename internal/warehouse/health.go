package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/classplay/novodash/internal/models"
)

// Health reports row counts and data freshness for each fact table. A
// table that does not exist yet shows up with zero rows rather than
// failing the whole snapshot.
func (w *Warehouse) Health(ctx context.Context) (*models.WarehouseHealth, error) {
	out := &models.WarehouseHealth{}
	for _, t := range healthTables {
		th := models.TableHealth{Table: t.name}

		var count int64
		err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.name)).Scan(&count)
		if err != nil {
			if isMissingTable(err) {
				out.Tables = append(out.Tables, th)
				continue
			}
			return nil, fmt.Errorf("health on %s: %w", t.name, err)
		}
		th.Rows = count

		if t.dateCol != "" && count > 0 {
			var latest sql.NullString
			err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", t.dateCol, t.name)).Scan(&latest)
			if err != nil {
				return nil, fmt.Errorf("health freshness on %s: %w", t.name, err)
			}
			if latest.Valid {
				th.LatestDate = latest.String
			}
		}
		out.Tables = append(out.Tables, th)
	}
	return out, nil
}
