package models

// LineState is the reconciliation state of one cart line.
type LineState int

const (
	// LineAbsent means the line is not in the cart.
	LineAbsent LineState = iota
	// LinePending means a remote mutation for the line is in flight.
	LinePending
	// LineCommitted means the in-memory line matches the last remote answer.
	LineCommitted
	// LineFailed means the last remote mutation failed and was rolled back.
	LineFailed
)

func (s LineState) String() string {
	switch s {
	case LinePending:
		return "pending"
	case LineCommitted:
		return "committed"
	case LineFailed:
		return "failed"
	default:
		return "absent"
	}
}

// CartOp names a cart mutation.
type CartOp string

const (
	OpAdd         CartOp = "add"
	OpSetQuantity CartOp = "set_quantity"
	OpRemove      CartOp = "remove"
)

// CartLine is one product in the cart.
type CartLine struct {
	// ID is the remote line identifier. Empty for lines restored from the
	// local mirror.
	ID string

	// ProductID is the catalog identifier of the product.
	ProductID string

	// ProductName is the display name captured when the line was added.
	ProductName string

	// Price is the unit price captured when the line was added.
	Price int64

	// Image is the product image captured when the line was added.
	Image string

	// Quantity is always at least 1. A line with no quantity is removed instead.
	Quantity int

	// State is the reconciliation state of this line.
	State LineState

	// PendingOp is the mutation in flight while State is LinePending.
	PendingOp CartOp

	// FailReason holds the error message while State is LineFailed.
	FailReason string

	// Provisional marks a line restored from the local mirror that has not
	// been confirmed by a remote load yet. Only ProductID and Quantity are set.
	Provisional bool
}

// Subtotal returns price times quantity.
func (l CartLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// LineTotal is the subtotal of one line.
type LineTotal struct {
	ProductID string
	Subtotal  int64
}

// CartTotals holds the derived totals of a cart. It is always recomputed from
// the full line set.
type CartTotals struct {
	Lines []LineTotal
	Total int64
}

// MirrorItem is one entry of the local durable cart mirror.
type MirrorItem struct {
	ProductID string
	Quantity  int
}

// MinQuantity is the smallest quantity a line can hold.
const MinQuantity = 1

// ClampQuantity raises q to MinQuantity.
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	return q
}
