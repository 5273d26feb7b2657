package models

// OrderItem is one line of an order payload.
type OrderItem struct {
	Name      string
	ProductID string
	Quantity  int
	Image     string
	Price     int64
}

// Order is built once when checkout starts and is never persisted locally.
type Order struct {
	UserID      string
	Items       []OrderItem
	TotalPrice  int64
	ReturnURL   string
	CancelURL   string
	Description string

	// OrderCode is a six digit display code generated on the client.
	// It is not a security-sensitive identifier.
	OrderCode string
}
