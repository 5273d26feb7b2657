// Package models defines the core domain models for the storefront client.
//
// # Models
//
//   - Product: a catalog entry, sourced wholesale from the remote catalog
//   - CartLine: one product in the cart, with its reconciliation state
//   - CartTotals: per-line subtotals and the grand total
//   - Session: identity and role decoded from the bearer token
//   - Order: the payload sent when checkout starts
//
// # Design Principles
//
// 1. **Exact money**: prices and totals are integers in the display currency;
// formatting happens only at render time.
// 2. **One field name**: the remote cart reports quantities as "quality";
// that name is translated at the API boundary and never appears here.
// 3. **IDs, not pointers**: lines reference products by ID.
package models
