package models

// RoleAdmin is the only role allowed into admin views.
const RoleAdmin = "admin"

// Session is the identity decoded from the stored bearer token.
// It is derived and read-only; it is never persisted by the storefront.
type Session struct {
	// UserID keys the remote cart.
	UserID string

	// Role gates admin views and cart mutations.
	Role string
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}
