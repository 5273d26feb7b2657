// Package guard decides whether a session may enter admin-only views.
package guard

import "github.com/mmynk/storefront/internal/models"

// UnauthorizedPath is where rejected navigations are sent.
const UnauthorizedPath = "/unauthorized"

// Decision is the outcome of a guard check.
type Decision struct {
	Allow    bool
	Redirect string
}

// Decide allows only the admin role. A missing session or an unknown role is
// never allowed.
func Decide(session *models.Session) Decision {
	if session.IsAdmin() {
		return Decision{Allow: true}
	}
	return Decision{Redirect: UnauthorizedPath}
}
