package port

import (
	"context"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

// MovementPublisher notifies downstream consumers of committed movements.
// Publishing is best-effort and happens after commit; it never influences
// whether a movement is applied.
type MovementPublisher interface {
	PublishMovements(ctx context.Context, movements []domain.Movement) error
	Close() error
}
