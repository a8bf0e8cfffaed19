package domain

import "time"

// DefaultLowStockThreshold is used for low-stock flagging when an item has no
// threshold of its own and the caller supplies no override.
const DefaultLowStockThreshold = 10

type InventoryItem struct {
	ID          int64
	Code        string // unique business key, stored uppercase, immutable
	Name        string
	Size        string
	Description string
	GroupID     *int64
	Quantity    int
	Threshold   *int
	Version     int // optimistic locking
	CreatedAt   time.Time
}

// LowStockAt reports whether the item counts as low stock against the given
// override. A nil override falls back to the item threshold, then the default.
func (i *InventoryItem) LowStockAt(override *int) bool {
	threshold := DefaultLowStockThreshold
	if override != nil {
		threshold = *override
	} else if i.Threshold != nil {
		threshold = *i.Threshold
	}
	return i.Quantity <= threshold
}

type ItemGroup struct {
	ID          int64
	Name        string
	Description string
}

// StockSummary is the dashboard projection of an item.
type StockSummary struct {
	ItemID    int64  `json:"item_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Threshold *int   `json:"threshold,omitempty"`
	GroupID   *int64 `json:"group_id,omitempty"`
}

type DashboardStats struct {
	TotalItems    int `json:"total_items"`
	TotalQuantity int `json:"total_quantity"`
	LowStockCount int `json:"low_stock_count"`
}
