package port

import (
	"context"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

// Ledger is the read side of the append-only movement store. Appending happens
// exclusively through ItemStore.ApplyMovements so a movement and its quantity
// update are never written independently.
type Ledger interface {
	// LatestMovement returns the most recent movement for an item, nil when
	// the item has no movements yet.
	LatestMovement(ctx context.Context, itemID int64) (*domain.Movement, error)

	// ListMovements returns movements newest first. itemID 0 means all items.
	ListMovements(ctx context.Context, itemID int64, limit int) ([]domain.Movement, error)
}
