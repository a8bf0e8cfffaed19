package port

import (
	"context"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// DeleteIdempotency releases a claimed key so the same request id stays
	// usable after an operation that claimed it failed without committing.
	DeleteIdempotency(ctx context.Context, key string) error

	// GetSummary returns the cached inventory summary; found is false on a miss.
	GetSummary(ctx context.Context) (summary []domain.StockSummary, found bool, err error)

	SetSummary(ctx context.Context, summary []domain.StockSummary) error

	// InvalidateSummary drops the cached summary. Called synchronously after
	// movements commit so readers never see a stale total past the commit.
	InvalidateSummary(ctx context.Context) error
}
