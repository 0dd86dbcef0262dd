package journal

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/clock"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/db"
	"signal_bot/pkg/logger"
)

// NewStore: Postgres, если поднят пул, иначе JSON lines в JOURNAL_PATH.
func NewStore(ctx context.Context, cfg *config.Config, tx *db.PgTxManager, zone *clock.Zone) (Store, error) {
	if tx != nil {
		s := NewPgStore(tx, zone)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		logger.Info("[JOURNAL] postgres")
		return s, nil
	}
	s, err := NewFileStore(cfg.JournalPath, zone)
	if err != nil {
		return nil, err
	}
	logger.Info("[JOURNAL] file %s", cfg.JournalPath)
	return s, nil
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(NewStore),
	)
}
