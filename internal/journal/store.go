// Package journal хранит историю сделок: на каждую попытку (вход или догон) одна запись.
package journal

import (
	"context"
	"time"

	"signal_bot/internal/models"
)

type Store interface {
	Save(ctx context.Context, rec models.TradeRecord) error
	// List: записи с PlacedAt >= since, по возрастанию времени. Нулевой since отдаёт всё.
	List(ctx context.Context, since time.Time) ([]models.TradeRecord, error)
}
