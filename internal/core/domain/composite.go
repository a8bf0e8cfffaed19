package domain

import "time"

// CompositeItem is a kit: a virtual item whose stock-out consumes fixed
// quantities of other items. It carries no stock of its own.
type CompositeItem struct {
	ID          int64
	SKU         string // unique, stored uppercase
	Name        string
	Description string
	CreatedAt   time.Time
}

// CompositeComponent is one bill-of-materials line.
type CompositeComponent struct {
	ComponentItemID int64 `json:"component_item_id"`
	QuantityPerKit  int   `json:"quantity"`
}

// KitCapacity is the result of a buildable-kit computation. Known is false
// when no component's availability could be determined.
type KitCapacity struct {
	Buildable int
	Known     bool
}
