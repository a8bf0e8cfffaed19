package service

import (
	"context"
	"sync"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

// mockStore is an in-memory ItemStore + Ledger with the same transactional
// contract as the MySQL adapter: ApplyMovements validates every
// compare-and-set and the ledger invariant before applying anything.
type mockStore struct {
	mu          sync.Mutex
	items       map[int64]*domain.InventoryItem
	groups      map[int64]*domain.ItemGroup
	movements   []domain.Movement
	nextItemID  int64
	nextGroupID int64

	applyCalls  int
	failApplies int // force ErrConflict on the next N ApplyMovements calls
	listCalls   int
}

func newMockStore() *mockStore {
	return &mockStore{
		items:  make(map[int64]*domain.InventoryItem),
		groups: make(map[int64]*domain.ItemGroup),
	}
}

func (m *mockStore) addItem(code string, quantity int) *domain.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItemID++
	item := &domain.InventoryItem{ID: m.nextItemID, Code: code, Name: code, Quantity: quantity}
	m.items[item.ID] = item
	return item
}

func (m *mockStore) GetItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (m *mockStore) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	items := make([]domain.InventoryItem, 0, len(m.items))
	for id := int64(1); id <= m.nextItemID; id++ {
		if item, ok := m.items[id]; ok {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (m *mockStore) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Code == item.Code {
			return domain.Validationf("item code %q already exists", item.Code)
		}
	}
	m.nextItemID++
	item.ID = m.nextItemID
	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *mockStore) DeleteItem(ctx context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[itemID]; !ok {
		return &domain.NotFoundError{Entity: "item", ID: itemID}
	}
	for _, mv := range m.movements {
		if mv.ItemID == itemID {
			return domain.ErrItemInUse
		}
	}
	delete(m.items, itemID)
	return nil
}

func (m *mockStore) CreateGroup(ctx context.Context, group *domain.ItemGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGroupID++
	group.ID = m.nextGroupID
	clone := *group
	m.groups[group.ID] = &clone
	return nil
}

func (m *mockStore) GetGroup(ctx context.Context, groupID int64) (*domain.ItemGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[groupID]
	if !ok {
		return nil, nil
	}
	clone := *group
	return &clone, nil
}

func (m *mockStore) ListGroups(ctx context.Context) ([]domain.ItemGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make([]domain.ItemGroup, 0, len(m.groups))
	for id := int64(1); id <= m.nextGroupID; id++ {
		if group, ok := m.groups[id]; ok {
			groups = append(groups, *group)
		}
	}
	return groups, nil
}

func (m *mockStore) ApplyMovements(ctx context.Context, movements []*domain.Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.failApplies > 0 {
		m.failApplies--
		return domain.ErrConflict
	}

	for _, mv := range movements {
		item, ok := m.items[mv.ItemID]
		if !ok {
			return &domain.NotFoundError{Entity: "item", ID: mv.ItemID}
		}
		if item.Quantity != mv.BeforeQuantity {
			return domain.ErrConflict
		}
		if latest := m.latestLocked(mv.ItemID); latest != nil && latest.AfterQuantity != item.Quantity {
			return &domain.ConsistencyError{ItemID: mv.ItemID, ItemQuantity: item.Quantity, LedgerQuantity: latest.AfterQuantity}
		}
	}

	for _, mv := range movements {
		item := m.items[mv.ItemID]
		item.Quantity = mv.AfterQuantity
		item.Version++
		m.movements = append(m.movements, *mv)
	}
	return nil
}

func (m *mockStore) LatestMovement(ctx context.Context, itemID int64) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := m.latestLocked(itemID)
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (m *mockStore) ListMovements(ctx context.Context, itemID int64, limit int) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Movement
	for i := len(m.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if itemID == 0 || m.movements[i].ItemID == itemID {
			out = append(out, m.movements[i])
		}
	}
	return out, nil
}

func (m *mockStore) latestLocked(itemID int64) *domain.Movement {
	for i := len(m.movements) - 1; i >= 0; i-- {
		if m.movements[i].ItemID == itemID {
			return &m.movements[i]
		}
	}
	return nil
}

func (m *mockStore) movementCount(itemID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, mv := range m.movements {
		if itemID == 0 || mv.ItemID == itemID {
			count++
		}
	}
	return count
}

func (m *mockStore) quantity(itemID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemID].Quantity
}

// corrupt desynchronizes the stored quantity from the ledger without an
// accompanying movement, simulating the mismatch ConsistencyError guards.
func (m *mockStore) corrupt(itemID int64, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemID].Quantity = quantity
}

type mockRegistry struct {
	mu              sync.Mutex
	composites      map[int64]*domain.CompositeItem
	boms            map[int64][]domain.CompositeComponent
	nextCompositeID int64
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		composites: make(map[int64]*domain.CompositeItem),
		boms:       make(map[int64][]domain.CompositeComponent),
	}
}

func (m *mockRegistry) addComposite(sku string, components []domain.CompositeComponent) *domain.CompositeItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCompositeID++
	composite := &domain.CompositeItem{ID: m.nextCompositeID, SKU: sku, Name: sku}
	m.composites[composite.ID] = composite
	m.boms[composite.ID] = components
	return composite
}

func (m *mockRegistry) GetComposite(ctx context.Context, compositeID int64) (*domain.CompositeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	composite, ok := m.composites[compositeID]
	if !ok {
		return nil, nil
	}
	clone := *composite
	return &clone, nil
}

func (m *mockRegistry) ListComposites(ctx context.Context) ([]domain.CompositeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	composites := make([]domain.CompositeItem, 0, len(m.composites))
	for id := int64(1); id <= m.nextCompositeID; id++ {
		if composite, ok := m.composites[id]; ok {
			composites = append(composites, *composite)
		}
	}
	return composites, nil
}

func (m *mockRegistry) GetBOM(ctx context.Context, compositeID int64) ([]domain.CompositeComponent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bom := make([]domain.CompositeComponent, len(m.boms[compositeID]))
	copy(bom, m.boms[compositeID])
	return bom, nil
}

func (m *mockRegistry) CreateComposite(ctx context.Context, composite *domain.CompositeItem, components []domain.CompositeComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCompositeID++
	composite.ID = m.nextCompositeID
	clone := *composite
	m.composites[composite.ID] = &clone
	m.boms[composite.ID] = components
	return nil
}

type mockCache struct {
	mu            sync.Mutex
	idempotency   map[string]bool
	summary       []domain.StockSummary
	hasSummary    bool
	setCalls      int
	invalidations int
}

func newMockCache() *mockCache {
	return &mockCache{idempotency: make(map[string]bool)}
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotency[key] {
		return false, nil
	}
	m.idempotency[key] = true
	return true, nil
}

func (m *mockCache) DeleteIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotency, key)
	return nil
}

func (m *mockCache) GetSummary(ctx context.Context) ([]domain.StockSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasSummary {
		return nil, false, nil
	}
	return m.summary, true, nil
}

func (m *mockCache) SetSummary(ctx context.Context, summary []domain.StockSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = summary
	m.hasSummary = true
	m.setCalls++
	return nil
}

func (m *mockCache) InvalidateSummary(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = nil
	m.hasSummary = false
	m.invalidations++
	return nil
}

type mockPublisher struct {
	mu      sync.Mutex
	batches [][]domain.Movement
}

func (m *mockPublisher) PublishMovements(ctx context.Context, movements []domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, movements)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
