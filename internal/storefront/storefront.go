// Package storefront ties the components of one browsing session together.
// A Storefront is created when a session starts and torn down at logout; it
// replaces any global cart or session state.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/cart"
	"github.com/mmynk/storefront/internal/catalog"
	"github.com/mmynk/storefront/internal/checkout"
	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/internal/storage"
	"github.com/mmynk/storefront/pkg/e"
)

const msgSessionInvalid = "Your session is invalid. Please sign in again."

// Deps are the shared dependencies of every session.
type Deps struct {
	API      *api.Client
	Store    storage.Store
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Checkout checkout.Options

	// ReadSession decodes tokens; auth.ReadSession when nil.
	ReadSession auth.Reader
}

// Storefront is the context object of one session.
type Storefront struct {
	session *models.Session
	store   storage.Store

	Catalog  *catalog.Store
	Checkout *checkout.Initiator

	// Cart is nil for anonymous sessions.
	Cart *cart.Reconciler
}

// Open starts a session from the token kept in the local durable store.
func Open(ctx context.Context, deps Deps) (*Storefront, error) {
	token, _, err := deps.Store.Get(ctx, storage.KeyToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return New(ctx, deps, token), nil
}

// New starts a session for token. An undecodable token is treated as no
// session at all and reported to the user; it is never fatal.
func New(ctx context.Context, deps Deps, token string) *Storefront {
	read := deps.ReadSession
	if read == nil {
		read = auth.ReadSession
	}
	session, err := read(token)
	if err != nil {
		slog.Warn("Session token rejected", "error", err)
		notify.Error(ctx, deps.Notifier, msgSessionInvalid, err)
		session, token = nil, ""
	}

	client := deps.API.WithToken(token)
	sf := &Storefront{
		session:  session,
		store:    deps.Store,
		Checkout: checkout.New(client, session, deps.Checkout, deps.Notifier),
	}

	// A nil *cart.Reconciler must not reach catalog as a non-nil interface.
	var adder catalog.Cart
	if session != nil {
		sf.Cart = cart.New(session.UserID, client, deps.Store,
			cart.WithNotifier(deps.Notifier),
			cart.WithMetrics(deps.Metrics),
		)
		if err := sf.Cart.Restore(ctx); err != nil {
			slog.Warn("Cart mirror not restored", "user_id", session.UserID, "error", err)
		}
		adder = sf.Cart
	}
	sf.Catalog = catalog.NewStore(client, adder, session, deps.Notifier)

	return sf
}

// Session returns the decoded session, nil when anonymous.
func (s *Storefront) Session() *models.Session {
	return s.session
}

// RequireCart returns the cart or e.ErrUnauthenticated.
func (s *Storefront) RequireCart() (*cart.Reconciler, error) {
	if s.Cart == nil {
		return nil, e.ErrUnauthenticated
	}
	return s.Cart, nil
}

// StartCheckout creates an order from the current cart.
func (s *Storefront) StartCheckout(ctx context.Context) (*checkout.Handoff, error) {
	c, err := s.RequireCart()
	if err != nil {
		return nil, err
	}
	return s.Checkout.CreateOrder(ctx, c.Lines(), c.Totals())
}

// Close tears the session down without touching durable state.
func (s *Storefront) Close() {
	if s.Cart != nil {
		s.Cart.Close()
	}
}

// Logout tears the session down and clears the token and the cart mirror.
func (s *Storefront) Logout(ctx context.Context) error {
	s.Close()
	return errors.Join(
		s.store.Delete(ctx, storage.KeyToken),
		s.store.Delete(ctx, storage.KeyCartItems),
	)
}

// SaveToken validates token and stores it for later sessions. Issuing tokens
// is the remote API's job; this only keeps one the user already has.
func SaveToken(ctx context.Context, store storage.Store, token string) (*models.Session, error) {
	session, err := auth.ReadSession(token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, e.ErrUnauthenticated
	}
	if err := store.Set(ctx, storage.KeyToken, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return session, nil
}
