package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfalan/stock-ledger/internal/core/domain"
	"github.com/mfalan/stock-ledger/internal/port"
)

// maxConflictRetries bounds how often an optimistically-failed operation is
// re-read and re-applied before ErrConflict is surfaced to the caller.
const maxConflictRetries = 3

// MovementOptions carries the optional audit fields of a movement.
type MovementOptions struct {
	Reason      string
	ReferenceNo string
	Note        string
}

// StockDemand is one line of a multi-item stock-out.
type StockDemand struct {
	ItemID   int64
	Quantity int
}

// MovementService applies validated IN/OUT/ADJUSTMENT movements. Every
// successful call commits the new quantity and the ledger entry in one
// storage transaction; cache and publisher are notified after commit.
type MovementService struct {
	store     port.ItemStore
	cache     port.CacheRepository  // may be nil
	publisher port.MovementPublisher // may be nil
}

func NewMovementService(store port.ItemStore, cache port.CacheRepository, publisher port.MovementPublisher) *MovementService {
	return &MovementService{
		store:     store,
		cache:     cache,
		publisher: publisher,
	}
}

// StockIn increases an item's quantity by the given delta.
func (s *MovementService) StockIn(ctx context.Context, itemID int64, quantity int, opts MovementOptions) (*domain.Movement, error) {
	if quantity <= 0 {
		return nil, domain.Validationf("stock-in quantity must be positive, got %d", quantity)
	}
	return s.applyWithRetry(ctx, itemID, domain.MovementIn, quantity, opts, func(before int) (int, error) {
		return before + quantity, nil
	})
}

// StockOut decreases an item's quantity by the given delta. It never drives
// the quantity negative.
func (s *MovementService) StockOut(ctx context.Context, itemID int64, quantity int, opts MovementOptions) (*domain.Movement, error) {
	if quantity <= 0 {
		return nil, domain.Validationf("stock-out quantity must be positive, got %d", quantity)
	}
	return s.applyWithRetry(ctx, itemID, domain.MovementOut, quantity, opts, func(before int) (int, error) {
		if quantity > before {
			return 0, &domain.InsufficientStockError{ItemID: itemID, Requested: quantity, Available: before}
		}
		return before - quantity, nil
	})
}

// AdjustStock sets an item's quantity to the absolute target. A target equal
// to the current quantity is still recorded, with before == after.
func (s *MovementService) AdjustStock(ctx context.Context, itemID int64, target int, opts MovementOptions) (*domain.Movement, error) {
	if target < 0 {
		return nil, domain.Validationf("adjustment target must not be negative, got %d", target)
	}
	return s.applyWithRetry(ctx, itemID, domain.MovementAdjustment, target, opts, func(before int) (int, error) {
		return target, nil
	})
}

// StockOutBatch consumes several items all-or-nothing: every demand is
// validated against a fresh read, then all movements are committed in a
// single storage transaction. On domain.ErrConflict nothing was written and
// the caller decides whether to retry; StockOutBatch itself does not.
func (s *MovementService) StockOutBatch(ctx context.Context, demands []StockDemand, opts MovementOptions) ([]*domain.Movement, error) {
	if len(demands) == 0 {
		return nil, domain.Validationf("no stock demands given")
	}
	seen := make(map[int64]bool, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return nil, domain.Validationf("stock-out quantity for item %d must be positive, got %d", d.ItemID, d.Quantity)
		}
		if seen[d.ItemID] {
			return nil, domain.Validationf("duplicate stock demand for item %d", d.ItemID)
		}
		seen[d.ItemID] = true
	}

	movements := make([]*domain.Movement, 0, len(demands))
	for _, d := range demands {
		item, err := s.loadItem(ctx, d.ItemID)
		if err != nil {
			return nil, err
		}
		if d.Quantity > item.Quantity {
			return nil, &domain.InsufficientStockError{ItemID: d.ItemID, Requested: d.Quantity, Available: item.Quantity}
		}
		movements = append(movements, newMovement(d.ItemID, domain.MovementOut, d.Quantity, item.Quantity, item.Quantity-d.Quantity, opts))
	}

	if err := s.store.ApplyMovements(ctx, movements); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, movements)
	return movements, nil
}

func (s *MovementService) applyWithRetry(ctx context.Context, itemID int64, mtype domain.MovementType, rawQuantity int, opts MovementOptions, compute func(before int) (int, error)) (*domain.Movement, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		item, err := s.loadItem(ctx, itemID)
		if err != nil {
			return nil, err
		}

		after, err := compute(item.Quantity)
		if err != nil {
			return nil, err
		}

		m := newMovement(itemID, mtype, rawQuantity, item.Quantity, after, opts)
		err = s.store.ApplyMovements(ctx, []*domain.Movement{m})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.afterCommit(ctx, []*domain.Movement{m})
		return m, nil
	}
	return nil, fmt.Errorf("apply %s movement for item %d: %w", mtype, itemID, domain.ErrConflict)
}

func (s *MovementService) loadItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", itemID, err)
	}
	if item == nil {
		return nil, &domain.NotFoundError{Entity: "item", ID: itemID}
	}
	return item, nil
}

// afterCommit runs the post-commit notifications. Both are best-effort: the
// summary cache expires on its own TTL and the adapters log their failures.
func (s *MovementService) afterCommit(ctx context.Context, movements []*domain.Movement) {
	if s.cache != nil {
		_ = s.cache.InvalidateSummary(ctx)
	}
	if s.publisher != nil {
		batch := make([]domain.Movement, len(movements))
		for i, m := range movements {
			batch[i] = *m
		}
		_ = s.publisher.PublishMovements(ctx, batch)
	}
}

func newMovement(itemID int64, mtype domain.MovementType, rawQuantity, before, after int, opts MovementOptions) *domain.Movement {
	return &domain.Movement{
		ID:             uuid.New().String(),
		ItemID:         itemID,
		Type:           mtype,
		Quantity:       rawQuantity,
		BeforeQuantity: before,
		AfterQuantity:  after,
		Reason:         opts.Reason,
		ReferenceNo:    opts.ReferenceNo,
		Note:           opts.Note,
		CreatedAt:      time.Now().UTC(),
	}
}
