// Package e holds the error taxonomy shared by the storefront components.
package e

import "fmt"

var (
	// Remote API could not be reached or answered with a non-2xx status.
	ErrRemoteUnavailable = fmt.Errorf("remote unavailable")

	// Role based rejection, raised before any network call.
	ErrForbidden = fmt.Errorf("forbidden")

	// No session is active for an operation that needs one.
	ErrUnauthenticated = fmt.Errorf("unauthenticated")

	// The order endpoint answered without one of the required fields.
	ErrOrderCreationFailed = fmt.Errorf("order creation failed")

	// The stored session token could not be decoded.
	ErrDecodeFailure = fmt.Errorf("session token decode failure")

	ErrLineNotFound = fmt.Errorf("cart line not found")
	ErrEmptyCart    = fmt.Errorf("cart is empty")
)

// Wrap prefixes err with msg, keeping it matchable with errors.Is.
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
