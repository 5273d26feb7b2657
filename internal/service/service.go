// Package service exposes the storefront session operations to the browser
// as Connect RPC procedures.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/cart"
	"github.com/mmynk/storefront/internal/catalog"
	"github.com/mmynk/storefront/internal/checkout"
	"github.com/mmynk/storefront/internal/middleware"
	"github.com/mmynk/storefront/internal/storefront"
	"github.com/mmynk/storefront/pkg/e"
)

// Mux is satisfied by *http.ServeMux and chi routers.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// StorefrontService implements every storefront procedure on top of the
// session registry.
type StorefrontService struct {
	reg   *storefront.Registry
	admin auth.Reader
}

// NewStorefrontService creates the service. admin decides who may call the
// admin procedures and should verify token signatures.
func NewStorefrontService(reg *storefront.Registry, admin auth.Reader) *StorefrontService {
	return &StorefrontService{reg: reg, admin: admin}
}

// Register mounts every procedure on mux. The session, admin and logging
// interceptors are installed ahead of any in opts.
func Register(mux Mux, svc *StorefrontService, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{
		WithJSON(),
		connect.WithInterceptors(
			middleware.Sessions(svc.reg),
			middleware.LoggingInterceptor(),
			middleware.AdminOnly(AdminPrefix, svc.admin),
		),
	}, opts...)

	mux.Handle(ListProductsProcedure, connect.NewUnaryHandler(ListProductsProcedure, svc.ListProducts, opts...))
	mux.Handle(AddToCartProcedure, connect.NewUnaryHandler(AddToCartProcedure, svc.AddToCart, opts...))
	mux.Handle(GetCartProcedure, connect.NewUnaryHandler(GetCartProcedure, svc.GetCart, opts...))
	mux.Handle(SetQuantityProcedure, connect.NewUnaryHandler(SetQuantityProcedure, svc.SetQuantity, opts...))
	mux.Handle(RemoveItemProcedure, connect.NewUnaryHandler(RemoveItemProcedure, svc.RemoveItem, opts...))
	mux.Handle(CreateOrderProcedure, connect.NewUnaryHandler(CreateOrderProcedure, svc.CreateOrder, opts...))
	mux.Handle(WhoAmIProcedure, connect.NewUnaryHandler(WhoAmIProcedure, svc.WhoAmI, opts...))
	mux.Handle(LogoutProcedure, connect.NewUnaryHandler(LogoutProcedure, svc.Logout, opts...))
	mux.Handle(NotificationsProcedure, connect.NewUnaryHandler(NotificationsProcedure, svc.Notifications, opts...))
	mux.Handle(OverviewProcedure, connect.NewUnaryHandler(OverviewProcedure, svc.Overview, opts...))
}

// ListProducts returns the filtered, windowed catalog. A remote failure with
// a previous listing available is answered with that listing marked stale.
func (s *StorefrontService) ListProducts(ctx context.Context, req *connect.Request[ListProductsRequest]) (*connect.Response[ListProductsResponse], error) {
	entry := middleware.GetEntry(ctx)
	slog.Info("ListProducts request received", "search", req.Msg.Search, "pages", req.Msg.Pages)

	products, err := entry.Catalog.List(ctx)
	if err != nil && len(products) == 0 {
		return nil, toConnectError(err)
	}

	view := catalog.NewView()
	view.Keyword = req.Msg.Search
	result := view.ShowPages(req.Msg.Pages, len(products)).Apply(products)

	return connect.NewResponse(&ListProductsResponse{
		Products:  toProductViews(result.Visible),
		Matching:  result.Matching,
		HasMore:   result.HasMore,
		NoResults: result.NoResults,
		Stale:     err != nil,
	}), nil
}

// AddToCart adds a catalog product to the cart of the session.
func (s *StorefrontService) AddToCart(ctx context.Context, req *connect.Request[AddToCartRequest]) (*connect.Response[CartResponse], error) {
	entry := middleware.GetEntry(ctx)
	slog.Info("AddToCart request received",
		"user_id", middleware.GetUserID(ctx),
		"product_id", req.Msg.ProductID,
		"quantity", req.Msg.Quantity,
	)

	product, ok := entry.Catalog.Lookup(req.Msg.ProductID)
	if !ok {
		if _, err := entry.Catalog.List(ctx); err != nil {
			return nil, toConnectError(err)
		}
		if product, ok = entry.Catalog.Lookup(req.Msg.ProductID); !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("product %q not found", req.Msg.ProductID))
		}
	}

	if err := entry.Catalog.AddToCart(ctx, product, req.Msg.Quantity); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toCartResponse(entry.Cart.Lines(), entry.Cart.Totals())), nil
}

// GetCart reloads the cart from the remote unless Cached is set. A failed
// reload answers with the current mirror marked stale.
func (s *StorefrontService) GetCart(ctx context.Context, req *connect.Request[GetCartRequest]) (*connect.Response[CartResponse], error) {
	c, err := middleware.GetEntry(ctx).RequireCart()
	if err != nil {
		return nil, toConnectError(err)
	}
	slog.Info("GetCart request received", "user_id", c.UserID(), "cached", req.Msg.Cached)

	var loadErr error
	if !req.Msg.Cached {
		loadErr = c.Load(ctx)
		if errors.Is(loadErr, cart.ErrClosed) {
			return nil, toConnectError(loadErr)
		}
	}

	resp := toCartResponse(c.Lines(), c.Totals())
	resp.Stale = loadErr != nil
	return connect.NewResponse(resp), nil
}

// SetQuantity changes the quantity of one line.
func (s *StorefrontService) SetQuantity(ctx context.Context, req *connect.Request[SetQuantityRequest]) (*connect.Response[CartResponse], error) {
	c, err := middleware.GetEntry(ctx).RequireCart()
	if err != nil {
		return nil, toConnectError(err)
	}
	slog.Info("SetQuantity request received",
		"user_id", c.UserID(),
		"product_id", req.Msg.ProductID,
		"quantity", req.Msg.Quantity,
	)

	if err := c.SetQuantity(ctx, req.Msg.ProductID, req.Msg.Quantity); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toCartResponse(c.Lines(), c.Totals())), nil
}

// RemoveItem removes one line.
func (s *StorefrontService) RemoveItem(ctx context.Context, req *connect.Request[RemoveItemRequest]) (*connect.Response[CartResponse], error) {
	c, err := middleware.GetEntry(ctx).RequireCart()
	if err != nil {
		return nil, toConnectError(err)
	}
	slog.Info("RemoveItem request received", "user_id", c.UserID(), "product_id", req.Msg.ProductID)

	if err := c.Remove(ctx, req.Msg.ProductID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toCartResponse(c.Lines(), c.Totals())), nil
}

// CreateOrder starts a checkout for the current cart.
func (s *StorefrontService) CreateOrder(ctx context.Context, req *connect.Request[CreateOrderRequest]) (*connect.Response[CreateOrderResponse], error) {
	slog.Info("CreateOrder request received", "user_id", middleware.GetUserID(ctx))

	handoff, err := middleware.GetEntry(ctx).StartCheckout(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toOrderResponse(handoff)), nil
}

// WhoAmI reports the decoded session.
func (s *StorefrontService) WhoAmI(ctx context.Context, req *connect.Request[WhoAmIRequest]) (*connect.Response[WhoAmIResponse], error) {
	session := middleware.GetEntry(ctx).Session()
	if session == nil {
		return connect.NewResponse(&WhoAmIResponse{}), nil
	}
	return connect.NewResponse(&WhoAmIResponse{
		Authenticated: true,
		UserID:        session.UserID,
		Role:          session.Role,
		Admin:         session.IsAdmin(),
	}), nil
}

// Logout tears the session down and clears its durable state.
func (s *StorefrontService) Logout(ctx context.Context, req *connect.Request[LogoutRequest]) (*connect.Response[LogoutResponse], error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, toConnectError(e.ErrUnauthenticated)
	}
	if err := s.reg.Logout(ctx, middleware.GetToken(ctx)); err != nil {
		slog.Error("Logout failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	slog.Info("Logged out", "user_id", userID)
	return connect.NewResponse(&LogoutResponse{}), nil
}

// Notifications drains the pending notices of the session.
func (s *StorefrontService) Notifications(ctx context.Context, req *connect.Request[NotificationsRequest]) (*connect.Response[NotificationsResponse], error) {
	notices := middleware.GetEntry(ctx).Notices.Drain()
	return connect.NewResponse(&NotificationsResponse{Notices: toNoticeViews(notices)}), nil
}

// Overview summarizes the server for administrators.
func (s *StorefrontService) Overview(ctx context.Context, req *connect.Request[OverviewRequest]) (*connect.Response[OverviewResponse], error) {
	entry := middleware.GetEntry(ctx)
	products, err := entry.Catalog.List(ctx)
	if err != nil && len(products) == 0 {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&OverviewResponse{
		Sessions: s.reg.Len(),
		Products: len(products),
	}), nil
}

// toConnectError maps storefront errors onto Connect codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, e.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, e.ErrUnauthenticated), errors.Is(err, e.ErrDecodeFailure):
		code = connect.CodeUnauthenticated
	case errors.Is(err, e.ErrRemoteUnavailable):
		code = connect.CodeUnavailable
	case errors.Is(err, e.ErrLineNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, e.ErrEmptyCart), errors.Is(err, checkout.ErrCartNotLoaded):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, cart.ErrClosed):
		code = connect.CodeAborted
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}
