package port

import (
	"context"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

// CompositeRegistry holds kit definitions and their bills of materials.
type CompositeRegistry interface {
	// GetComposite retrieves a composite item by ID, nil when absent.
	GetComposite(ctx context.Context, compositeID int64) (*domain.CompositeItem, error)

	ListComposites(ctx context.Context) ([]domain.CompositeItem, error)

	// GetBOM returns the component lines of a composite in definition order.
	GetBOM(ctx context.Context, compositeID int64) ([]domain.CompositeComponent, error)

	CreateComposite(ctx context.Context, composite *domain.CompositeItem, components []domain.CompositeComponent) error
}
