package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mfalan/stock-ledger/internal/core/domain"
	"github.com/mfalan/stock-ledger/internal/port"
)

type CreateItemRequest struct {
	Code        string
	Name        string
	Size        string
	Description string
	GroupID     *int64
	Threshold   *int
}

type CreateCompositeRequest struct {
	SKU         string
	Name        string
	Description string
	Components  []domain.CompositeComponent
}

// CatalogService manages item, group and composite definitions. Quantities
// are out of its hands: items start at zero and only movements change them.
type CatalogService struct {
	store    port.ItemStore
	registry port.CompositeRegistry
}

func NewCatalogService(store port.ItemStore, registry port.CompositeRegistry) *CatalogService {
	return &CatalogService{
		store:    store,
		registry: registry,
	}
}

func (s *CatalogService) CreateItem(ctx context.Context, req CreateItemRequest) (*domain.InventoryItem, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, domain.Validationf("item code is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Validationf("item name is required")
	}
	if req.Threshold != nil && *req.Threshold < 0 {
		return nil, domain.Validationf("threshold must not be negative, got %d", *req.Threshold)
	}
	if req.GroupID != nil {
		group, err := s.store.GetGroup(ctx, *req.GroupID)
		if err != nil {
			return nil, fmt.Errorf("load group %d: %w", *req.GroupID, err)
		}
		if group == nil {
			return nil, &domain.NotFoundError{Entity: "item group", ID: *req.GroupID}
		}
	}

	item := &domain.InventoryItem{
		Code:        code,
		Name:        strings.TrimSpace(req.Name),
		Size:        req.Size,
		Description: req.Description,
		GroupID:     req.GroupID,
		Threshold:   req.Threshold,
		Quantity:    0,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *CatalogService) GetItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", itemID, err)
	}
	if item == nil {
		return nil, &domain.NotFoundError{Entity: "item", ID: itemID}
	}
	return item, nil
}

func (s *CatalogService) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.store.ListItems(ctx)
}

// DeleteItem removes an item unless it is referenced by a BOM line or has
// recorded movements; those fail with domain.ErrItemInUse.
func (s *CatalogService) DeleteItem(ctx context.Context, itemID int64) error {
	return s.store.DeleteItem(ctx, itemID)
}

func (s *CatalogService) CreateGroup(ctx context.Context, name, description string) (*domain.ItemGroup, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.Validationf("group name is required")
	}
	group := &domain.ItemGroup{Name: strings.TrimSpace(name), Description: description}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *CatalogService) ListGroups(ctx context.Context) ([]domain.ItemGroup, error) {
	return s.store.ListGroups(ctx)
}

// CreateComposite registers a kit. A kit with zero component lines is valid
// to create; it just cannot be stocked out.
func (s *CatalogService) CreateComposite(ctx context.Context, req CreateCompositeRequest) (*domain.CompositeItem, error) {
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return nil, domain.Validationf("composite sku is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Validationf("composite name is required")
	}

	seen := make(map[int64]bool, len(req.Components))
	for _, line := range req.Components {
		if line.QuantityPerKit < 1 {
			return nil, domain.Validationf("per-kit quantity for item %d must be at least 1, got %d", line.ComponentItemID, line.QuantityPerKit)
		}
		if seen[line.ComponentItemID] {
			return nil, domain.Validationf("duplicate component line for item %d", line.ComponentItemID)
		}
		seen[line.ComponentItemID] = true

		item, err := s.store.GetItem(ctx, line.ComponentItemID)
		if err != nil {
			return nil, fmt.Errorf("load component %d: %w", line.ComponentItemID, err)
		}
		if item == nil {
			return nil, &domain.NotFoundError{Entity: "item", ID: line.ComponentItemID}
		}
	}

	composite := &domain.CompositeItem{
		SKU:         sku,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.registry.CreateComposite(ctx, composite, req.Components); err != nil {
		return nil, err
	}
	return composite, nil
}

func (s *CatalogService) GetComposite(ctx context.Context, compositeID int64) (*domain.CompositeItem, []domain.CompositeComponent, error) {
	composite, err := s.registry.GetComposite(ctx, compositeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load composite %d: %w", compositeID, err)
	}
	if composite == nil {
		return nil, nil, &domain.NotFoundError{Entity: "composite item", ID: compositeID}
	}
	components, err := s.registry.GetBOM(ctx, compositeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load BOM for composite %d: %w", compositeID, err)
	}
	return composite, components, nil
}

func (s *CatalogService) ListComposites(ctx context.Context) ([]domain.CompositeItem, error) {
	return s.registry.ListComposites(ctx)
}
