// Package checkout turns the reconciled cart into an order and requests a
// payment session for it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/pkg/e"
)

// ErrCartNotLoaded is returned when the cart still holds lines restored from
// the local mirror, which lack prices.
var ErrCartNotLoaded = errors.New("checkout: cart not loaded from remote")

const msgOrderFailed = "Could not create the order. Please try again."

// Remote creates orders.
type Remote interface {
	CreateOrder(ctx context.Context, order models.Order) (api.OrderSession, error)
}

// Options are the static parts of every order.
type Options struct {
	ReturnURL   string
	CancelURL   string
	Description string

	// OrderCode generates display codes; GenerateOrderCode when nil.
	OrderCode func() string
}

// Handoff is the navigation state passed to the checkout view.
type Handoff struct {
	CheckoutURL string
	CancelURL   string
	ReturnURL   string
	OrderCode   string

	// Order is a snapshot of the payload that was sent.
	Order models.Order
}

// Initiator starts checkouts for one session.
type Initiator struct {
	remote   Remote
	session  *models.Session
	opts     Options
	notifier notify.Notifier
}

// New creates an initiator. session may be nil; CreateOrder then fails.
func New(remote Remote, session *models.Session, opts Options, notifier notify.Notifier) *Initiator {
	if opts.OrderCode == nil {
		opts.OrderCode = GenerateOrderCode
	}
	return &Initiator{
		remote:   remote,
		session:  session,
		opts:     opts,
		notifier: notifier,
	}
}

// CreateOrder builds the order from lines and totals and requests a payment
// session. A response missing any of checkoutUrl, cancelUrl, returnUrl or
// orderCodeStatus fails with e.ErrOrderCreationFailed and yields no handoff.
// The cart itself is never modified here.
func (i *Initiator) CreateOrder(ctx context.Context, lines []models.CartLine, totals models.CartTotals) (*Handoff, error) {
	if i.session == nil {
		return nil, e.ErrUnauthenticated
	}
	if len(lines) == 0 {
		return nil, e.ErrEmptyCart
	}
	for _, line := range lines {
		if line.Provisional {
			return nil, ErrCartNotLoaded
		}
	}

	order := BuildOrder(i.session.UserID, lines, totals, i.opts)

	session, err := i.remote.CreateOrder(ctx, order)
	if err == nil {
		err = validate(session)
	}
	if err != nil {
		slog.Error("Order creation failed", "user_id", order.UserID, "order_code", order.OrderCode, "error", err)
		notify.Error(ctx, i.notifier, msgOrderFailed, err)
		return nil, err
	}

	slog.Info("Order created",
		"user_id", order.UserID,
		"order_code", session.OrderCode,
		"total", order.TotalPrice,
		"items", len(order.Items),
	)
	return &Handoff{
		CheckoutURL: session.CheckoutURL,
		CancelURL:   session.CancelURL,
		ReturnURL:   session.ReturnURL,
		OrderCode:   session.OrderCode,
		Order:       order,
	}, nil
}

// BuildOrder assembles the order payload.
func BuildOrder(userID string, lines []models.CartLine, totals models.CartTotals, opts Options) models.Order {
	code := GenerateOrderCode
	if opts.OrderCode != nil {
		code = opts.OrderCode
	}
	order := models.Order{
		UserID:      userID,
		Items:       make([]models.OrderItem, len(lines)),
		TotalPrice:  totals.Total,
		ReturnURL:   opts.ReturnURL,
		CancelURL:   opts.CancelURL,
		Description: opts.Description,
		OrderCode:   code(),
	}
	for j, line := range lines {
		order.Items[j] = models.OrderItem{
			Name:      line.ProductName,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Image:     line.Image,
			Price:     line.Price,
		}
	}
	return order
}

// GenerateOrderCode returns a random six digit code in [100000, 999999].
func GenerateOrderCode() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

func validate(s api.OrderSession) error {
	var missing []string
	if s.CheckoutURL == "" {
		missing = append(missing, "checkoutUrl")
	}
	if s.CancelURL == "" {
		missing = append(missing, "cancelUrl")
	}
	if s.ReturnURL == "" {
		missing = append(missing, "returnUrl")
	}
	if s.OrderCode == "" {
		missing = append(missing, "orderCodeStatus")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: response missing %v", e.ErrOrderCreationFailed, missing)
	}
	return nil
}
