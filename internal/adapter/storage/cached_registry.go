package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mfalan/stock-ledger/internal/core/domain"
	"github.com/mfalan/stock-ledger/internal/port"
)

// CachedRegistry decorates a CompositeRegistry with an in-process LRU over
// BOM reads. Writes invalidate synchronously, so a decomposition never sees
// a BOM older than the write that preceded it.
type CachedRegistry struct {
	inner port.CompositeRegistry
	boms  *lru.Cache[int64, []domain.CompositeComponent]
}

func NewCachedRegistry(inner port.CompositeRegistry, size int) (*CachedRegistry, error) {
	boms, err := lru.New[int64, []domain.CompositeComponent](size)
	if err != nil {
		return nil, err
	}
	return &CachedRegistry{inner: inner, boms: boms}, nil
}

func (c *CachedRegistry) GetComposite(ctx context.Context, compositeID int64) (*domain.CompositeItem, error) {
	return c.inner.GetComposite(ctx, compositeID)
}

func (c *CachedRegistry) ListComposites(ctx context.Context) ([]domain.CompositeItem, error) {
	return c.inner.ListComposites(ctx)
}

func (c *CachedRegistry) GetBOM(ctx context.Context, compositeID int64) ([]domain.CompositeComponent, error) {
	if cached, ok := c.boms.Get(compositeID); ok {
		// copy, callers must not alias the cached slice
		bom := make([]domain.CompositeComponent, len(cached))
		copy(bom, cached)
		return bom, nil
	}

	bom, err := c.inner.GetBOM(ctx, compositeID)
	if err != nil {
		return nil, err
	}
	cached := make([]domain.CompositeComponent, len(bom))
	copy(cached, bom)
	c.boms.Add(compositeID, cached)
	return bom, nil
}

func (c *CachedRegistry) CreateComposite(ctx context.Context, composite *domain.CompositeItem, components []domain.CompositeComponent) error {
	if err := c.inner.CreateComposite(ctx, composite, components); err != nil {
		return err
	}
	c.boms.Remove(composite.ID)
	return nil
}
