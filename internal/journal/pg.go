package journal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"signal_bot/internal/clock"
	"signal_bot/internal/models"
	"signal_bot/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           BIGSERIAL PRIMARY KEY,
	session_id   TEXT        NOT NULL,
	asset        TEXT        NOT NULL,
	direction    TEXT        NOT NULL,
	stake        NUMERIC     NOT NULL,
	duration_sec INTEGER     NOT NULL,
	gale_index   INTEGER     NOT NULL,
	result       TEXT        NOT NULL,
	profit       NUMERIC     NOT NULL,
	source       TEXT        NOT NULL DEFAULT '',
	error        TEXT        NOT NULL DEFAULT '',
	placed_at    TIMESTAMPTZ NOT NULL,
	resolved_at  TIMESTAMPTZ NOT NULL
)`

const schemaIndex = `CREATE INDEX IF NOT EXISTS trades_placed_at_idx ON trades (placed_at)`

const insertTrade = `
INSERT INTO trades (session_id, asset, direction, stake, duration_sec, gale_index, result, profit, source, error, placed_at, resolved_at)
VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8::text::numeric, $9, $10, $11, $12)`

const selectTrades = `
SELECT session_id, asset, direction, stake::text, duration_sec, gale_index, result, profit::text, source, error, placed_at, resolved_at
FROM trades
WHERE placed_at >= $1
ORDER BY placed_at, id`

// PgStore: журнал в Postgres; время хранится как timestamptz.
type PgStore struct {
	tx   db.TxManager
	zone *clock.Zone
}

func NewPgStore(tx db.TxManager, zone *clock.Zone) *PgStore {
	if zone == nil {
		zone = clock.UTC()
	}
	return &PgStore{tx: tx, zone: zone}
}

// Migrate создаёт таблицу, если её нет.
func (s *PgStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, schemaIndex} {
		if _, err := s.tx.Conn().Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate trades")
		}
	}
	return nil
}

func (s *PgStore) Save(ctx context.Context, rec models.TradeRecord) error {
	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, insertTrade,
			rec.SessionID, rec.Asset, string(rec.Direction), rec.Stake.String(),
			rec.DurationSec, rec.GaleIndex, rec.Result, rec.Profit.String(),
			rec.Source, rec.Error, rec.PlacedAt, rec.ResolvedAt,
		)
		return errors.Wrap(err, "insert trade")
	})
}

func (s *PgStore) List(ctx context.Context, since time.Time) ([]models.TradeRecord, error) {
	rows, err := s.tx.Conn().Query(ctx, selectTrades, since)
	if err != nil {
		return nil, errors.Wrap(err, "select trades")
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var (
			rec           models.TradeRecord
			dir           string
			stake, profit string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Asset, &dir, &stake, &rec.DurationSec, &rec.GaleIndex,
			&rec.Result, &profit, &rec.Source, &rec.Error, &rec.PlacedAt, &rec.ResolvedAt); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		rec.Direction = models.Direction(dir)
		if rec.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, errors.Wrap(err, "stake")
		}
		if rec.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, errors.Wrap(err, "profit")
		}
		rec.PlacedAt = s.zone.In(rec.PlacedAt)
		rec.ResolvedAt = s.zone.In(rec.ResolvedAt)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate trades")
}
