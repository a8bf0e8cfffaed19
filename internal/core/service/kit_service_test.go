package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

// kitFixture wires a registry, store and kit service around one composite:
// SKU KIT-1 needing 2x of component A (stock 10) and 3x of component B
// (stock 9), which caps the buildable count at 3.
type kitFixture struct {
	store     *mockStore
	registry  *mockRegistry
	kits      *KitService
	composite *domain.CompositeItem
	compA     *domain.InventoryItem
	compB     *domain.InventoryItem
}

func newKitFixture(cache *mockCache) *kitFixture {
	store := newMockStore()
	registry := newMockRegistry()
	compA := store.addItem("COMP-A", 10)
	compB := store.addItem("COMP-B", 9)
	composite := registry.addComposite("KIT-1", []domain.CompositeComponent{
		{ComponentItemID: compA.ID, QuantityPerKit: 2},
		{ComponentItemID: compB.ID, QuantityPerKit: 3},
	})
	movements := NewMovementService(store, nil, nil)
	var kits *KitService
	if cache != nil {
		kits = NewKitService(registry, store, movements, cache)
	} else {
		kits = NewKitService(registry, store, movements, nil)
	}
	return &kitFixture{
		store:     store,
		registry:  registry,
		kits:      kits,
		composite: composite,
		compA:     compA,
		compB:     compB,
	}
}

func TestComputeBuildableKits(t *testing.T) {
	f := newKitFixture(nil)

	capacity, err := f.kits.ComputeBuildableKits(context.Background(), f.composite.ID)
	if err != nil {
		t.Fatalf("ComputeBuildableKits failed: %v", err)
	}
	if !capacity.Known {
		t.Fatal("expected a known capacity")
	}
	// min(10/2, 9/3) = 3
	if capacity.Buildable != 3 {
		t.Errorf("expected 3 buildable kits, got %d", capacity.Buildable)
	}
}

func TestComputeBuildableKits_EmptyBOM(t *testing.T) {
	registry := newMockRegistry()
	composite := registry.addComposite("KIT-EMPTY", nil)
	kits := NewKitService(registry, newMockStore(), NewMovementService(newMockStore(), nil, nil), nil)

	capacity, err := kits.ComputeBuildableKits(context.Background(), composite.ID)
	if err != nil {
		t.Fatalf("ComputeBuildableKits failed: %v", err)
	}
	if !capacity.Known || capacity.Buildable != 0 {
		t.Errorf("empty BOM must report zero buildable, got %+v", capacity)
	}
}

func TestComputeBuildableKits_SkipsMissingComponents(t *testing.T) {
	f := newKitFixture(nil)
	// add a line pointing at an item that does not exist
	f.registry.boms[f.composite.ID] = append(f.registry.boms[f.composite.ID],
		domain.CompositeComponent{ComponentItemID: 999, QuantityPerKit: 1})

	capacity, err := f.kits.ComputeBuildableKits(context.Background(), f.composite.ID)
	if err != nil {
		t.Fatalf("ComputeBuildableKits failed: %v", err)
	}
	if !capacity.Known || capacity.Buildable != 3 {
		t.Errorf("missing component must not constrain the result, got %+v", capacity)
	}
}

func TestComputeBuildableKits_AllComponentsMissing(t *testing.T) {
	registry := newMockRegistry()
	composite := registry.addComposite("KIT-GHOST", []domain.CompositeComponent{
		{ComponentItemID: 998, QuantityPerKit: 1},
		{ComponentItemID: 999, QuantityPerKit: 2},
	})
	kits := NewKitService(registry, newMockStore(), NewMovementService(newMockStore(), nil, nil), nil)

	capacity, err := kits.ComputeBuildableKits(context.Background(), composite.ID)
	if err != nil {
		t.Fatalf("ComputeBuildableKits failed: %v", err)
	}
	if capacity.Known {
		t.Errorf("capacity must be unknown when no line is resolvable, got %+v", capacity)
	}
}

func TestComputeBuildableKits_UnknownComposite(t *testing.T) {
	f := newKitFixture(nil)

	_, err := f.kits.ComputeBuildableKits(context.Background(), 404)
	var nferr *domain.NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestStockOutComposite(t *testing.T) {
	f := newKitFixture(nil)

	result, err := f.kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
		CompositeID: f.composite.ID,
		KitQuantity: 3,
		ReferenceNo: "ORD-7",
	})
	if err != nil {
		t.Fatalf("StockOutComposite failed: %v", err)
	}
	if result.CompositeID != f.composite.ID || result.KitQuantity != 3 {
		t.Errorf("unexpected result header: %+v", result)
	}
	if len(result.Movements) != 2 {
		t.Fatalf("expected 2 component movements, got %d", len(result.Movements))
	}
	for _, m := range result.Movements {
		if m.Type != domain.MovementOut {
			t.Errorf("expected OUT movement, got %s", m.Type)
		}
		if m.ReferenceNo != "ORD-7" {
			t.Errorf("expected reference ORD-7, got %q", m.ReferenceNo)
		}
	}
	// 10 - 3*2 and 9 - 3*3
	if f.store.quantity(f.compA.ID) != 4 || f.store.quantity(f.compB.ID) != 0 {
		t.Errorf("expected quantities 4/0, got %d/%d",
			f.store.quantity(f.compA.ID), f.store.quantity(f.compB.ID))
	}
}

func TestStockOutComposite_InsufficientComponent(t *testing.T) {
	f := newKitFixture(nil)

	_, err := f.kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
		CompositeID: f.composite.ID,
		KitQuantity: 4, // needs 12x B, only 9 available
	})
	var ierr *domain.InsufficientStockError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if ierr.ItemID != f.compB.ID {
		t.Errorf("expected the short component %d, got %d", f.compB.ID, ierr.ItemID)
	}
	if f.store.quantity(f.compA.ID) != 10 || f.store.quantity(f.compB.ID) != 9 {
		t.Errorf("failed composite stock-out must leave components untouched, got %d/%d",
			f.store.quantity(f.compA.ID), f.store.quantity(f.compB.ID))
	}
	if count := f.store.movementCount(0); count != 0 {
		t.Errorf("failed composite stock-out must not be ledgered, got %d entries", count)
	}
}

func TestStockOutComposite_EmptyKit(t *testing.T) {
	f := newKitFixture(nil)
	empty := f.registry.addComposite("KIT-EMPTY", nil)

	_, err := f.kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
		CompositeID: empty.ID,
		KitQuantity: 1,
	})
	var kerr *domain.EmptyKitError
	if !errors.As(err, &kerr) {
		t.Fatalf("expected EmptyKitError, got %v", err)
	}
}

func TestStockOutComposite_UnknownComposite(t *testing.T) {
	f := newKitFixture(nil)

	_, err := f.kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
		CompositeID: 404,
		KitQuantity: 1,
	})
	var nferr *domain.NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestStockOutComposite_RejectsNonPositiveKitQuantity(t *testing.T) {
	f := newKitFixture(nil)

	for _, quantity := range []int{0, -2} {
		_, err := f.kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
			CompositeID: f.composite.ID,
			KitQuantity: quantity,
		})
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("kit quantity %d: expected ValidationError, got %v", quantity, err)
		}
	}
}

func TestStockOutComposite_DuplicateRequest(t *testing.T) {
	cache := newMockCache()
	f := newKitFixture(cache)
	req := CompositeStockOutRequest{
		CompositeID: f.composite.ID,
		KitQuantity: 1,
		RequestID:   "req-42",
	}

	if _, err := f.kits.StockOutComposite(context.Background(), req); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	_, err := f.kits.StockOutComposite(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	// only the first request consumed stock: 10-2 and 9-3
	if f.store.quantity(f.compA.ID) != 8 || f.store.quantity(f.compB.ID) != 6 {
		t.Errorf("duplicate must not consume stock, got %d/%d",
			f.store.quantity(f.compA.ID), f.store.quantity(f.compB.ID))
	}
}

func TestStockOutComposite_FailedRequestKeepsRequestIDUsable(t *testing.T) {
	cache := newMockCache()
	f := newKitFixture(cache)
	req := CompositeStockOutRequest{
		CompositeID: f.composite.ID,
		KitQuantity: 4, // needs 12x B, only 9 available
		RequestID:   "req-retry",
	}

	_, err := f.kits.StockOutComposite(context.Background(), req)
	var ierr *domain.InsufficientStockError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	// restock the short component, then retry the exact same request
	movements := NewMovementService(f.store, nil, nil)
	if _, err := movements.StockIn(context.Background(), f.compB.ID, 3, MovementOptions{Reason: "restock"}); err != nil {
		t.Fatalf("restock failed: %v", err)
	}

	result, err := f.kits.StockOutComposite(context.Background(), req)
	if err != nil {
		t.Fatalf("retry after a failed attempt must succeed, got %v", err)
	}
	if len(result.Movements) != 2 {
		t.Fatalf("expected 2 component movements, got %d", len(result.Movements))
	}
	if f.store.quantity(f.compA.ID) != 2 || f.store.quantity(f.compB.ID) != 0 {
		t.Errorf("expected quantities 2/0, got %d/%d",
			f.store.quantity(f.compA.ID), f.store.quantity(f.compB.ID))
	}

	// the committed request is now a duplicate
	_, err = f.kits.StockOutComposite(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest after commit, got %v", err)
	}
}

func TestStockOutComposite_RetriesOnConflict(t *testing.T) {
	f := newKitFixture(nil)
	f.store.failApplies = 1

	if _, err := f.kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
		CompositeID: f.composite.ID,
		KitQuantity: 1,
	}); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if f.store.applyCalls != 2 {
		t.Errorf("expected 2 apply attempts, got %d", f.store.applyCalls)
	}
	if f.store.quantity(f.compA.ID) != 8 || f.store.quantity(f.compB.ID) != 6 {
		t.Errorf("expected quantities 8/6, got %d/%d",
			f.store.quantity(f.compA.ID), f.store.quantity(f.compB.ID))
	}
}

func TestStockOutComposite_ConcurrentOnSharedComponent(t *testing.T) {
	store := newMockStore()
	registry := newMockRegistry()
	shared := store.addItem("COMP-SHARED", 5)
	composite := registry.addComposite("KIT-1", []domain.CompositeComponent{
		{ComponentItemID: shared.ID, QuantityPerKit: 5},
	})
	kits := NewKitService(registry, store, NewMovementService(store, nil, nil), nil)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := kits.StockOutComposite(context.Background(), CompositeStockOutRequest{
				CompositeID: composite.ID,
				KitQuantity: 1,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, insufficient := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		default:
			var ierr *domain.InsufficientStockError
			if errors.As(err, &ierr) {
				insufficient++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}
	if successes != 1 || insufficient != 1 {
		t.Errorf("expected 1 success and 1 insufficient, got %d/%d", successes, insufficient)
	}
	if got := store.quantity(shared.ID); got != 0 {
		t.Errorf("expected shared component depleted, got %d", got)
	}
}
