package service

import (
	"time"

	"github.com/mmynk/storefront/internal/calculator"
	"github.com/mmynk/storefront/internal/checkout"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/notify"
)

// Procedure names. Each is served at its own path.
const (
	ListProductsProcedure  = "/storefront.v1.CatalogService/ListProducts"
	AddToCartProcedure     = "/storefront.v1.CatalogService/AddToCart"
	GetCartProcedure       = "/storefront.v1.CartService/GetCart"
	SetQuantityProcedure   = "/storefront.v1.CartService/SetQuantity"
	RemoveItemProcedure    = "/storefront.v1.CartService/RemoveItem"
	CreateOrderProcedure   = "/storefront.v1.CheckoutService/CreateOrder"
	WhoAmIProcedure        = "/storefront.v1.SessionService/WhoAmI"
	LogoutProcedure        = "/storefront.v1.SessionService/Logout"
	NotificationsProcedure = "/storefront.v1.SessionService/Notifications"
	OverviewProcedure      = "/storefront.v1.AdminService/Overview"

	// AdminPrefix covers every admin-only procedure.
	AdminPrefix = "/storefront.v1.AdminService/"
)

type ListProductsRequest struct {
	Search string `json:"search,omitempty"`
	// Pages is how many "load more" steps are visible, at least 1.
	Pages int `json:"pages,omitempty"`
}

type ListProductsResponse struct {
	Products  []ProductView `json:"products"`
	Matching  int           `json:"matching"`
	HasMore   bool          `json:"hasMore"`
	NoResults bool          `json:"noResults"`
	// Stale is set when the remote failed and the last good listing is shown.
	Stale bool `json:"stale,omitempty"`
}

type ProductView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	PriceLabel string `json:"priceLabel"`
	Image      string `json:"image,omitempty"`
}

type AddToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity,omitempty"`
}

type GetCartRequest struct {
	// Cached skips the remote fetch and returns the in-memory mirror.
	Cached bool `json:"cached,omitempty"`
}

type SetQuantityRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequest struct {
	ProductID string `json:"productId"`
}

type CartResponse struct {
	Lines      []LineView `json:"lines"`
	Total      int64      `json:"total"`
	TotalLabel string     `json:"totalLabel"`
	Stale      bool       `json:"stale,omitempty"`
}

type LineView struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	Image         string `json:"image,omitempty"`
	Price         int64  `json:"price"`
	PriceLabel    string `json:"priceLabel"`
	Quantity      int    `json:"quantity"`
	Subtotal      int64  `json:"subtotal"`
	SubtotalLabel string `json:"subtotalLabel"`
	State         string `json:"state"`
	FailReason    string `json:"failReason,omitempty"`
	Provisional   bool   `json:"provisional,omitempty"`
}

type CreateOrderRequest struct{}

type CreateOrderResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	OrderCode   string `json:"orderCode"`
	Total       int64  `json:"total"`
	TotalLabel  string `json:"totalLabel"`
}

type WhoAmIRequest struct{}

type WhoAmIResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Role          string `json:"role,omitempty"`
	Admin         bool   `json:"admin"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type NotificationsRequest struct{}

type NotificationsResponse struct {
	Notices []NoticeView `json:"notices"`
}

type NoticeView struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type OverviewRequest struct{}

type OverviewResponse struct {
	Sessions int `json:"sessions"`
	Products int `json:"products"`
}

func toProductViews(products []models.Product) []ProductView {
	views := make([]ProductView, len(products))
	for i, p := range products {
		views[i] = ProductView{
			ID:         p.ID,
			Name:       p.Name,
			Price:      p.Price,
			PriceLabel: calculator.FormatPrice(p.Price),
			Image:      p.Image,
		}
	}
	return views
}

func toCartResponse(lines []models.CartLine, totals models.CartTotals) *CartResponse {
	views := make([]LineView, len(lines))
	for i, l := range lines {
		subtotal := l.Subtotal()
		views[i] = LineView{
			ProductID:     l.ProductID,
			Name:          l.ProductName,
			Image:         l.Image,
			Price:         l.Price,
			PriceLabel:    calculator.FormatPrice(l.Price),
			Quantity:      l.Quantity,
			Subtotal:      subtotal,
			SubtotalLabel: calculator.FormatPrice(subtotal),
			State:         l.State.String(),
			FailReason:    l.FailReason,
			Provisional:   l.Provisional,
		}
	}
	return &CartResponse{
		Lines:      views,
		Total:      totals.Total,
		TotalLabel: calculator.FormatPrice(totals.Total),
	}
}

func toOrderResponse(h *checkout.Handoff) *CreateOrderResponse {
	return &CreateOrderResponse{
		CheckoutURL: h.CheckoutURL,
		CancelURL:   h.CancelURL,
		ReturnURL:   h.ReturnURL,
		OrderCode:   h.OrderCode,
		Total:       h.Order.TotalPrice,
		TotalLabel:  calculator.FormatPrice(h.Order.TotalPrice),
	}
}

func toNoticeViews(notices []notify.Notice) []NoticeView {
	views := make([]NoticeView, len(notices))
	for i, n := range notices {
		views[i] = NoticeView{Level: string(n.Level), Message: n.Message, At: n.At}
	}
	return views
}
