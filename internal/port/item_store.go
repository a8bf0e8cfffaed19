package port

import (
	"context"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

// ItemStore owns item records and is the only path that mutates quantities.
type ItemStore interface {
	// GetItem retrieves an item by ID, nil when it does not exist.
	GetItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error)

	ListItems(ctx context.Context) ([]domain.InventoryItem, error)

	CreateItem(ctx context.Context, item *domain.InventoryItem) error

	// DeleteItem removes an item; it returns domain.ErrItemInUse while the
	// item is referenced by a BOM line or by any movement.
	DeleteItem(ctx context.Context, itemID int64) error

	CreateGroup(ctx context.Context, group *domain.ItemGroup) error
	GetGroup(ctx context.Context, groupID int64) (*domain.ItemGroup, error)
	ListGroups(ctx context.Context) ([]domain.ItemGroup, error)

	// ApplyMovements commits a batch of movements atomically: for each
	// movement the item quantity is compare-and-set from BeforeQuantity to
	// AfterQuantity and the movement row is appended, all in one transaction.
	// Items are locked in ascending item-id order. Any failed compare-and-set
	// aborts the whole batch with domain.ErrConflict and nothing is written.
	// When an item's stored quantity matches the expected snapshot but
	// disagrees with its latest movement's after-quantity, the batch aborts
	// with *domain.ConsistencyError.
	ApplyMovements(ctx context.Context, movements []*domain.Movement) error
}
