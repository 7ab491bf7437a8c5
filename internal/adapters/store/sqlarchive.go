package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/avetra/sensorlink/internal/domain"
)

// Archive mirrors saved session batches into a SQL table, one row per
// reading. Inserts are idempotent on (session_id, ts) so replaying a save
// after a partial failure is safe.
type Archive struct {
	db    *sql.DB
	table string
}

func NewArchive(db *sql.DB, table string) *Archive {
	return &Archive{db: db, table: table}
}

const archiveColumns = 17

// WriteBatch inserts every reading of the batch in one statement.
func (a *Archive) WriteBatch(batch *domain.SessionBatch) error {
	if batch == nil || len(batch.Readings) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(a.table)
	b.WriteString(" (session_id, device_id, ts, ph, tds, uv_absorbance, temperature, moisture," +
		" color_r, color_g, color_b, color_clear, el_ss, el_cu, el_zn, el_ag, el_pt) VALUES ")

	args := make([]any, 0, len(batch.Readings)*archiveColumns)
	for i, r := range batch.Readings {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for col := 0; col < archiveColumns; col++ {
			if col > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+col+1)
		}
		b.WriteString(")")

		args = append(args,
			batch.SessionID,
			r.DeviceID,
			r.Timestamp,
			r.PH,
			r.TDS,
			r.UVAbsorbance,
			r.Temperature,
			r.Moisture,
			r.Color.Red,
			r.Color.Green,
			r.Color.Blue,
			r.Color.Clear,
			r.Electrodes.SS,
			r.Electrodes.Cu,
			r.Electrodes.Zn,
			r.Electrodes.Ag,
			r.Electrodes.Pt,
		)
	}

	b.WriteString(" ON CONFLICT (session_id, ts) DO NOTHING")

	if _, err := a.db.Exec(b.String(), args...); err != nil {
		return &domain.StorageError{Op: "archive", Err: err}
	}
	return nil
}
