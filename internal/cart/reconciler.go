// Package cart reconciles the three representations of a user's cart: the
// remote cart owned by the API, the local durable mirror, and the in-memory
// mirror owned by the Reconciler.
//
// Every mutation follows one contract. The remote call happens first and the
// durable mirror is only written after the remote confirms. Quantity changes
// are applied optimistically in memory and reverted when the remote refuses
// them. Mutations of one product are serialized for the whole remote
// round-trip; different products proceed concurrently.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/calculator"
	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/internal/storage"
	"github.com/mmynk/storefront/pkg/e"
)

// ErrClosed is returned when a result arrives after Close. The result is
// discarded.
var ErrClosed = errors.New("cart: reconciler closed")

// User-facing notices.
const (
	msgLoadFailed     = "Could not load your cart"
	msgAdded          = "Product added to cart"
	msgAddFailed      = "Could not add the product to the cart"
	msgQuantitySet    = "Quantity updated"
	msgQuantityFailed = "Could not update the quantity. Please try again."
	msgRemoved        = "Product removed from cart"
	msgRemoveFailed   = "Could not remove the product from the cart"
)

// Remote is the subset of the API client the reconciler needs.
type Remote interface {
	GetCart(ctx context.Context, userID string) ([]models.CartLine, error)
	AddToCart(ctx context.Context, req api.AddToCartRequest) error
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error
	RemoveFromCart(ctx context.Context, userID, productID string) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier sets where user-facing notices go.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler owns the in-memory cart mirror of one user.
type Reconciler struct {
	userID   string
	remote   Remote
	store    storage.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics

	// serializes remote mutations per product
	locks *keyedMutex

	// guards lines, totals, epoch and closed; never held across remote calls
	mu     sync.Mutex
	lines  []models.CartLine
	totals models.CartTotals
	epoch  uint64
	closed bool

	// guards read-modify-write sequences on the durable mirror
	mirrorMu sync.Mutex
}

// New creates a reconciler for userID.
func New(userID string, remote Remote, store storage.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		userID: userID,
		remote: remote,
		store:  store,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.totals = calculator.RecomputeTotals(nil)
	return r
}

// UserID returns the owner of the cart.
func (r *Reconciler) UserID() string {
	return r.userID
}

// Lines returns a copy of the in-memory mirror in insertion order.
func (r *Reconciler) Lines() []models.CartLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.lines)
}

// Line returns the in-memory line of productID.
func (r *Reconciler) Line(productID string) (models.CartLine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(productID); i >= 0 {
		return r.lines[i], true
	}
	return models.CartLine{}, false
}

// Totals returns the totals of the in-memory mirror.
func (r *Reconciler) Totals() models.CartTotals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.CartTotals{
		Lines: slices.Clone(r.totals.Lines),
		Total: r.totals.Total,
	}
}

// Close tears the reconciler down. Remote answers that arrive afterwards are
// discarded rather than applied.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Restore seeds an empty in-memory mirror from the durable mirror, so the
// cart can be shown before the remote fetch completes. Restored lines are
// provisional: they carry only product ID and quantity.
func (r *Reconciler) Restore(ctx context.Context) error {
	r.mirrorMu.Lock()
	items, err := storage.LoadCartMirror(ctx, r.store)
	r.mirrorMu.Unlock()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if len(r.lines) > 0 {
		return nil
	}
	for _, item := range items {
		r.lines = append(r.lines, models.CartLine{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			State:       models.LineCommitted,
			Provisional: true,
		})
	}
	r.recomputeLocked()
	return nil
}

// Load fetches the remote cart and replaces the in-memory mirror wholesale;
// the durable mirror is rewritten to match. On failure the current mirror is
// kept and a notice is raised.
func (r *Reconciler) Load(ctx context.Context) error {
	lines, err := r.remote.GetCart(ctx, r.userID)
	if err != nil {
		slog.Error("Cart load failed", "user_id", r.userID, "error", err)
		notify.Error(ctx, r.notifier, msgLoadFailed, err)
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.epoch++
	r.lines = lines
	r.recomputeLocked()
	r.mu.Unlock()

	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()
	if err := storage.SaveCartMirror(ctx, r.store, storage.MirrorFromLines(lines)); err != nil {
		slog.Warn("Cart mirror not updated after load", "user_id", r.userID, "error", err)
	}

	slog.Debug("Cart loaded", "user_id", r.userID, "lines", len(lines))
	return nil
}

// Add puts quantity units of product in the cart. The remote is asked first;
// only a confirmed add touches the mirrors. Adding a product already in the
// cart increments its line.
func (r *Reconciler) Add(ctx context.Context, product models.Product, quantity int) (err error) {
	defer func() { r.metrics.CartMutation(string(models.OpAdd), err) }()

	quantity = models.ClampQuantity(quantity)
	unlock, err := r.locks.Lock(ctx, product.ID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	epoch := r.epoch
	r.mu.Unlock()

	err = r.remote.AddToCart(ctx, api.AddToCartRequest{
		UserID:   r.userID,
		Product:  product,
		Quantity: quantity,
	})
	if err != nil {
		slog.Error("Add to cart failed", "user_id", r.userID, "product_id", product.ID, "error", err)
		notify.Error(ctx, r.notifier, msgAddFailed, err)
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.epoch != epoch {
		// A load landed meanwhile and may already hold this add. Incrementing
		// could count it twice, so take the remote state instead.
		r.mu.Unlock()
		if err := r.Load(ctx); err != nil {
			slog.Warn("Cart reload after add failed", "user_id", r.userID, "product_id", product.ID, "error", err)
		}
		slog.Info("Added to cart", "user_id", r.userID, "product_id", product.ID, "quantity", quantity)
		notify.Success(ctx, r.notifier, msgAdded)
		return nil
	}
	if i := r.indexLocked(product.ID); i >= 0 {
		line := &r.lines[i]
		line.Quantity += quantity
		line.State = models.LineCommitted
		line.FailReason = ""
		if line.Provisional {
			line.ProductName = product.Name
			line.Price = product.Price
			line.Image = product.Image
			line.Provisional = false
		}
	} else {
		r.lines = append(r.lines, models.CartLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Image:       product.Image,
			Quantity:    quantity,
			State:       models.LineCommitted,
		})
	}
	r.recomputeLocked()
	r.mu.Unlock()

	r.updateMirror(ctx, func(items []models.MirrorItem) []models.MirrorItem {
		for i := range items {
			if items[i].ProductID == product.ID {
				items[i].Quantity += quantity
				return items
			}
		}
		return append(items, models.MirrorItem{ProductID: product.ID, Quantity: quantity})
	})

	slog.Info("Added to cart", "user_id", r.userID, "product_id", product.ID, "quantity", quantity)
	notify.Success(ctx, r.notifier, msgAdded)
	return nil
}

// SetQuantity changes the quantity of a line, clamped to at least 1. The
// change shows in memory immediately and is reverted if the remote refuses it.
func (r *Reconciler) SetQuantity(ctx context.Context, productID string, quantity int) (err error) {
	defer func() { r.metrics.CartMutation(string(models.OpSetQuantity), err) }()

	quantity = models.ClampQuantity(quantity)
	unlock, err := r.locks.Lock(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	i := r.indexLocked(productID)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", e.ErrLineNotFound, productID)
	}
	previous := r.lines[i].Quantity
	epoch := r.epoch
	r.lines[i].Quantity = quantity
	r.lines[i].State = models.LinePending
	r.lines[i].PendingOp = models.OpSetQuantity
	r.recomputeLocked()
	r.mu.Unlock()

	remoteErr := r.remote.UpdateQuantity(ctx, r.userID, productID, quantity)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	i = r.indexLocked(productID)
	if remoteErr != nil {
		// A load that landed meanwhile is authoritative; leave it alone.
		if i >= 0 && epoch == r.epoch {
			r.lines[i].Quantity = previous
			r.lines[i].State = models.LineFailed
			r.lines[i].PendingOp = ""
			r.lines[i].FailReason = remoteErr.Error()
			r.recomputeLocked()
			r.metrics.Rollback()
		}
		r.mu.Unlock()
		slog.Error("Quantity update failed, reverted",
			"user_id", r.userID,
			"product_id", productID,
			"quantity", quantity,
			"reverted_to", previous,
			"error", remoteErr,
		)
		notify.Error(ctx, r.notifier, msgQuantityFailed, remoteErr)
		return remoteErr
	}
	if i >= 0 {
		r.lines[i].Quantity = quantity
		r.lines[i].State = models.LineCommitted
		r.lines[i].PendingOp = ""
		r.lines[i].FailReason = ""
		r.recomputeLocked()
	}
	r.mu.Unlock()

	r.updateMirror(ctx, func(items []models.MirrorItem) []models.MirrorItem {
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity = quantity
				return items
			}
		}
		return append(items, models.MirrorItem{ProductID: productID, Quantity: quantity})
	})

	slog.Info("Quantity updated", "user_id", r.userID, "product_id", productID, "quantity", quantity)
	notify.Success(ctx, r.notifier, msgQuantitySet)
	return nil
}

// Remove deletes a line. Both mirrors drop it only after the remote confirms.
func (r *Reconciler) Remove(ctx context.Context, productID string) (err error) {
	defer func() { r.metrics.CartMutation(string(models.OpRemove), err) }()

	unlock, err := r.locks.Lock(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	i := r.indexLocked(productID)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", e.ErrLineNotFound, productID)
	}
	r.lines[i].State = models.LinePending
	r.lines[i].PendingOp = models.OpRemove
	r.mu.Unlock()

	remoteErr := r.remote.RemoveFromCart(ctx, r.userID, productID)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	i = r.indexLocked(productID)
	if remoteErr != nil {
		if i >= 0 {
			r.lines[i].State = models.LineFailed
			r.lines[i].PendingOp = ""
			r.lines[i].FailReason = remoteErr.Error()
		}
		r.mu.Unlock()
		slog.Error("Remove from cart failed", "user_id", r.userID, "product_id", productID, "error", remoteErr)
		notify.Error(ctx, r.notifier, msgRemoveFailed, remoteErr)
		return remoteErr
	}
	if i >= 0 {
		r.lines = slices.Delete(r.lines, i, i+1)
		r.recomputeLocked()
	}
	r.mu.Unlock()

	r.updateMirror(ctx, func(items []models.MirrorItem) []models.MirrorItem {
		return slices.DeleteFunc(items, func(item models.MirrorItem) bool {
			return item.ProductID == productID
		})
	})

	slog.Info("Removed from cart", "user_id", r.userID, "product_id", productID)
	notify.Success(ctx, r.notifier, msgRemoved)
	return nil
}

// updateMirror applies fn to the durable mirror. The remote already holds the
// change, so a local write failure is logged and the next Load repairs it.
func (r *Reconciler) updateMirror(ctx context.Context, fn func([]models.MirrorItem) []models.MirrorItem) {
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()

	items, err := storage.LoadCartMirror(ctx, r.store)
	if err == nil {
		err = storage.SaveCartMirror(ctx, r.store, fn(items))
	}
	if err != nil {
		slog.Warn("Cart mirror update failed", "user_id", r.userID, "error", err)
	}
}

func (r *Reconciler) indexLocked(productID string) int {
	return slices.IndexFunc(r.lines, func(l models.CartLine) bool {
		return l.ProductID == productID
	})
}

func (r *Reconciler) recomputeLocked() {
	r.totals = calculator.RecomputeTotals(r.lines)
}
