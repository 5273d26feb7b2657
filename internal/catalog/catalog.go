// Package catalog fetches the product catalog, filters and pages it on the
// client, and is the entry point for adding products to the cart.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/pkg/e"
)

// PageSize is how much the visible window grows on each "load more".
const PageSize = 9

const (
	msgListFailed = "Could not load products"
	msgForbidden  = "Administrators cannot add products to the cart"
	msgSignIn     = "Please sign in to add products to the cart"
)

// Remote fetches the catalog.
type Remote interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// Cart receives confirmed adds. *cart.Reconciler implements it.
type Cart interface {
	Add(ctx context.Context, product models.Product, quantity int) error
}

// Store holds the last good catalog listing of one session.
type Store struct {
	remote   Remote
	cart     Cart
	session  *models.Session
	notifier notify.Notifier

	mu       sync.RWMutex
	products []models.Product
}

// NewStore creates a catalog store. cart may be nil for anonymous sessions.
func NewStore(remote Remote, cart Cart, session *models.Session, notifier notify.Notifier) *Store {
	return &Store{
		remote:   remote,
		cart:     cart,
		session:  session,
		notifier: notifier,
	}
}

// List fetches the full catalog. When the remote is unavailable the last
// good listing is returned together with the error, so views stay populated.
func (s *Store) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.remote.ListProducts(ctx)
	if err != nil {
		slog.Error("Product listing failed, keeping last good list", "error", err)
		notify.Error(ctx, s.notifier, msgListFailed, err)
		return s.Products(), err
	}

	s.mu.Lock()
	s.products = products
	s.mu.Unlock()

	slog.Debug("Products listed", "count", len(products))
	return slices.Clone(products), nil
}

// Products returns the last good listing without a remote call.
func (s *Store) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products)
}

// Lookup finds a product in the last good listing.
func (s *Store) Lookup(productID string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.products, func(p models.Product) bool { return p.ID == productID })
	if i < 0 {
		return models.Product{}, false
	}
	return s.products[i], true
}

// AddToCart adds quantity units (at least 1) of product to the cart.
// Administrators are rejected with e.ErrForbidden and anonymous sessions with
// e.ErrUnauthenticated, both before any network call.
func (s *Store) AddToCart(ctx context.Context, product models.Product, quantity int) error {
	if s.session.IsAdmin() {
		notify.Error(ctx, s.notifier, msgForbidden, nil)
		return fmt.Errorf("%w: role %q cannot add to cart", e.ErrForbidden, s.session.Role)
	}
	if s.session == nil || s.cart == nil {
		notify.Error(ctx, s.notifier, msgSignIn, nil)
		return e.ErrUnauthenticated
	}
	return s.cart.Add(ctx, product, models.ClampQuantity(quantity))
}

// Filter keeps the products whose name contains keyword, ignoring case.
// An empty keyword returns products unchanged.
func Filter(products []models.Product, keyword string) []models.Product {
	if keyword == "" {
		return products
	}
	fold := cases.Fold()
	needle := fold.String(keyword)
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(fold.String(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out
}

// Page returns the first window products. Re-slicing the same sequence with
// the same window always yields the same result.
func Page(products []models.Product, window int) []models.Product {
	if window < 0 {
		window = 0
	}
	return products[:min(window, len(products))]
}
