package domain

import "time"

type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Movement is one immutable ledger entry. Quantity holds the raw input: a
// delta for IN/OUT, the absolute target for ADJUSTMENT. BeforeQuantity and
// AfterQuantity are snapshots taken atomically with the quantity update, so
// the most recent movement's AfterQuantity always equals the item's current
// quantity.
type Movement struct {
	ID             string       `json:"id"`
	ItemID         int64        `json:"item_id"`
	Type           MovementType `json:"type"`
	Quantity       int          `json:"quantity"`
	BeforeQuantity int          `json:"before_quantity"`
	AfterQuantity  int          `json:"after_quantity"`
	Reason         string       `json:"reason,omitempty"`
	ReferenceNo    string       `json:"reference_no,omitempty"`
	Note           string       `json:"note,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}
