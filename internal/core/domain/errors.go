package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict signals that a concurrent mutation invalidated an optimistic
	// read. Callers may retry; every other error here is terminal.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrDuplicateRequest signals an idempotency-key replay.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrItemInUse rejects deleting an item still referenced by a BOM line or
	// by recorded movements.
	ErrItemInUse = errors.New("item is referenced and cannot be deleted")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

type InsufficientStockError struct {
	ItemID    int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: requested %d, available %d",
		e.ItemID, e.Requested, e.Available)
}

type EmptyKitError struct {
	CompositeID int64
}

func (e *EmptyKitError) Error() string {
	return fmt.Sprintf("composite item %d has no components", e.CompositeID)
}

// ConsistencyError reports a ledger/item-store mismatch: the item quantity no
// longer equals the after-quantity of its latest movement. It is fatal and
// must never be retried or silently repaired.
type ConsistencyError struct {
	ItemID         int64
	ItemQuantity   int
	LedgerQuantity int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger mismatch for item %d: item quantity %d, ledger says %d",
		e.ItemID, e.ItemQuantity, e.LedgerQuantity)
}
