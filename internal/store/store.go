// Package store хранит историю свечей по (market, granularity) без дублей.
package store

import (
	"context"
	"time"

	"crypto_bot/internal/models"
)

// CandleStore — хранилище истории. Append идемпотентен: уже записанные строки пропускаются.
type CandleStore interface {
	// Newest — время самой свежей строки; ok=false если истории нет.
	Newest(ctx context.Context, market string, granularity time.Duration) (newest time.Time, ok bool, err error)
	// Append дописывает строки и возвращает, сколько из них новые.
	Append(ctx context.Context, market string, granularity time.Duration, rows []models.Rate) (int, error)
	// Load — вся история по возрастанию времени.
	Load(ctx context.Context, market string, granularity time.Duration) ([]models.Rate, error)
}
