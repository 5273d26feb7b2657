package models

// Product is a catalog entry. It is immutable from the client's perspective.
type Product struct {
	// ID is the remote catalog identifier.
	ID string

	// Name is the display name, used for keyword search.
	Name string

	// Price is the unit price as an exact integer amount.
	Price int64

	// Image is a URL or path to the product image.
	Image string
}
