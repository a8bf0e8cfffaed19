package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfalan/stock-ledger/internal/core/domain"
	"github.com/mfalan/stock-ledger/internal/port"
)

const idempotencyKeyPrefix = "composite-stock-out:"

type CompositeStockOutRequest struct {
	CompositeID int64
	KitQuantity int
	RequestID   string // optional idempotency key
	ReferenceNo string
	Note        string
}

type CompositeStockOutResult struct {
	CompositeID int64              `json:"composite_item_id"`
	KitQuantity int                `json:"kit_quantity"`
	Movements   []*domain.Movement `json:"movements"`
}

// KitService decomposes composite items into their component demands. A
// composite stock-out is one multi-item transaction: either every component
// is consumed and ledgered, or nothing is.
type KitService struct {
	registry  port.CompositeRegistry
	store     port.ItemStore
	movements *MovementService
	cache     port.CacheRepository // may be nil, disables idempotency
}

func NewKitService(registry port.CompositeRegistry, store port.ItemStore, movements *MovementService, cache port.CacheRepository) *KitService {
	return &KitService{
		registry:  registry,
		store:     store,
		movements: movements,
		cache:     cache,
	}
}

// ComputeBuildableKits reports how many kits can be assembled from current
// component stock: the minimum over all BOM lines of floor(available /
// per-kit quantity). Lines whose component item cannot be found are skipped;
// the result is unknown only when no line contributed.
func (s *KitService) ComputeBuildableKits(ctx context.Context, compositeID int64) (domain.KitCapacity, error) {
	composite, err := s.registry.GetComposite(ctx, compositeID)
	if err != nil {
		return domain.KitCapacity{}, fmt.Errorf("load composite %d: %w", compositeID, err)
	}
	if composite == nil {
		return domain.KitCapacity{}, &domain.NotFoundError{Entity: "composite item", ID: compositeID}
	}

	bom, err := s.registry.GetBOM(ctx, compositeID)
	if err != nil {
		return domain.KitCapacity{}, fmt.Errorf("load BOM for composite %d: %w", compositeID, err)
	}
	if len(bom) == 0 {
		return domain.KitCapacity{Buildable: 0, Known: true}, nil
	}

	capacity := domain.KitCapacity{}
	for _, line := range bom {
		item, err := s.store.GetItem(ctx, line.ComponentItemID)
		if err != nil {
			return domain.KitCapacity{}, fmt.Errorf("load component %d: %w", line.ComponentItemID, err)
		}
		if item == nil {
			// availability undeterminable, line does not constrain the result
			continue
		}
		buildable := item.Quantity / line.QuantityPerKit
		if !capacity.Known || buildable < capacity.Buildable {
			capacity = domain.KitCapacity{Buildable: buildable, Known: true}
		}
	}
	return capacity, nil
}

// StockOutComposite consumes the components of kitQuantity kits. If any BOM
// line is short the whole operation fails and no component is mutated. A
// conflicting concurrent mutation aborts the transaction cleanly; the BOM and
// all quantities are then re-read and the whole consumption retried.
func (s *KitService) StockOutComposite(ctx context.Context, req CompositeStockOutRequest) (*CompositeStockOutResult, error) {
	composite, err := s.registry.GetComposite(ctx, req.CompositeID)
	if err != nil {
		return nil, fmt.Errorf("load composite %d: %w", req.CompositeID, err)
	}
	if composite == nil {
		return nil, &domain.NotFoundError{Entity: "composite item", ID: req.CompositeID}
	}
	if req.KitQuantity <= 0 {
		return nil, domain.Validationf("kit quantity must be positive, got %d", req.KitQuantity)
	}

	bom, err := s.registry.GetBOM(ctx, req.CompositeID)
	if err != nil {
		return nil, fmt.Errorf("load BOM for composite %d: %w", req.CompositeID, err)
	}
	if len(bom) == 0 {
		return nil, &domain.EmptyKitError{CompositeID: req.CompositeID}
	}

	claimed := false
	if req.RequestID != "" && s.cache != nil {
		ok, err := s.cache.SetIdempotency(ctx, idempotencyKeyPrefix+req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		claimed = true
	}

	result, err := s.consumeComponents(ctx, composite, bom, req)
	if err != nil && claimed {
		// nothing committed, the request id must stay usable for a retry
		_ = s.cache.DeleteIdempotency(ctx, idempotencyKeyPrefix+req.RequestID)
	}
	return result, err
}

func (s *KitService) consumeComponents(ctx context.Context, composite *domain.CompositeItem, bom []domain.CompositeComponent, req CompositeStockOutRequest) (*CompositeStockOutResult, error) {
	opts := MovementOptions{
		Reason:      fmt.Sprintf("composite stock-out %s x%d", composite.SKU, req.KitQuantity),
		ReferenceNo: req.ReferenceNo,
		Note:        req.Note,
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if attempt > 0 {
			// the BOM may have changed while we were conflicted
			fresh, err := s.registry.GetBOM(ctx, req.CompositeID)
			if err != nil {
				return nil, fmt.Errorf("load BOM for composite %d: %w", req.CompositeID, err)
			}
			if len(fresh) == 0 {
				return nil, &domain.EmptyKitError{CompositeID: req.CompositeID}
			}
			bom = fresh
		}

		demands := make([]StockDemand, 0, len(bom))
		for _, line := range bom {
			demands = append(demands, StockDemand{
				ItemID:   line.ComponentItemID,
				Quantity: line.QuantityPerKit * req.KitQuantity,
			})
		}

		movements, err := s.movements.StockOutBatch(ctx, demands, opts)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &CompositeStockOutResult{
			CompositeID: req.CompositeID,
			KitQuantity: req.KitQuantity,
			Movements:   movements,
		}, nil
	}
	return nil, fmt.Errorf("composite stock-out for %d: %w", req.CompositeID, domain.ErrConflict)
}
