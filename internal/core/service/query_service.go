package service

import (
	"context"
	"fmt"

	"github.com/mfalan/stock-ledger/internal/core/domain"
	"github.com/mfalan/stock-ledger/internal/port"
)

const defaultMovementLimit = 10

// QueryService serves the read-only projections: low-stock flags, the
// inventory summary and recent ledger entries. It never mutates anything.
type QueryService struct {
	store  port.ItemStore
	ledger port.Ledger
	cache  port.CacheRepository // may be nil
}

func NewQueryService(store port.ItemStore, ledger port.Ledger, cache port.CacheRepository) *QueryService {
	return &QueryService{
		store:  store,
		ledger: ledger,
		cache:  cache,
	}
}

// ListLowStock returns the items whose quantity is at or below the threshold:
// the override when given, else the item's own threshold, else the default.
func (s *QueryService) ListLowStock(ctx context.Context, thresholdOverride *int) ([]domain.InventoryItem, error) {
	if thresholdOverride != nil && *thresholdOverride < 0 {
		return nil, domain.Validationf("threshold must not be negative, got %d", *thresholdOverride)
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	low := make([]domain.InventoryItem, 0)
	for _, item := range items {
		if item.LowStockAt(thresholdOverride) {
			low = append(low, item)
		}
	}
	return low, nil
}

// Summarize returns the per-item stock projection, read through the cache
// when one is configured. Cache errors degrade to a direct store read.
func (s *QueryService) Summarize(ctx context.Context) ([]domain.StockSummary, error) {
	if s.cache != nil {
		if summary, found, err := s.cache.GetSummary(ctx); err == nil && found {
			return summary, nil
		}
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	summary := make([]domain.StockSummary, 0, len(items))
	for _, item := range items {
		summary = append(summary, domain.StockSummary{
			ItemID:    item.ID,
			Code:      item.Code,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Threshold: item.Threshold,
			GroupID:   item.GroupID,
		})
	}

	if s.cache != nil {
		_ = s.cache.SetSummary(ctx, summary)
	}
	return summary, nil
}

// Stats aggregates the dashboard numbers from a single snapshot read.
func (s *QueryService) Stats(ctx context.Context) (domain.DashboardStats, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("list items: %w", err)
	}

	stats := domain.DashboardStats{TotalItems: len(items)}
	for _, item := range items {
		stats.TotalQuantity += item.Quantity
		if item.LowStockAt(nil) {
			stats.LowStockCount++
		}
	}
	return stats, nil
}

// RecentMovements returns ledger entries newest first. itemID 0 means all
// items, a non-positive limit falls back to the default.
func (s *QueryService) RecentMovements(ctx context.Context, itemID int64, limit int) ([]domain.Movement, error) {
	if limit <= 0 {
		limit = defaultMovementLimit
	}
	movements, err := s.ledger.ListMovements(ctx, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}
