// Package api is the client of the remote storefront REST API.
//
// It is the single ingestion boundary for remote data: wire payloads are
// decoded here and turned into models, including the cart's "quality" field,
// which becomes CartLine.Quantity and is never seen past this package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/pkg/e"
)

const (
	defaultTimeout  = 8 * time.Second
	requestIDHeader = "X-Request-ID"
)

// Endpoint names used for logging and metrics.
const (
	EndpointListProducts   = "product.list"
	EndpointGetCart        = "cart.get"
	EndpointAddToCart      = "cart.add"
	EndpointUpdateQuantity = "cart.update_quantity"
	EndpointRemove         = "cart.remove"
	EndpointCreateOrder    = "order.create"
)

// Client issues calls against the remote storefront API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// NewClient constructs an API client. timeout <= 0 selects the default.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// WithToken returns a copy of the client that sends token as a bearer
// credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// AddToCartRequest is the payload of an add-to-cart call.
type AddToCartRequest struct {
	UserID   string
	Product  models.Product
	Quantity int
}

// OrderSession is the remote answer to an order creation. Fields may be
// empty; validating them is up to the caller.
type OrderSession struct {
	CheckoutURL string
	CancelURL   string
	ReturnURL   string
	OrderCode   string
}

// ListProducts fetches the full catalog.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var payload []productPayload
	if err := c.do(ctx, EndpointListProducts, http.MethodGet, []string{"product", ""}, nil, &payload); err != nil {
		return nil, err
	}
	products := make([]models.Product, len(payload))
	for i, p := range payload {
		products[i] = p.toProduct()
	}
	return products, nil
}

// GetCart fetches the remote cart of userID.
func (c *Client) GetCart(ctx context.Context, userID string) ([]models.CartLine, error) {
	var payload []cartLinePayload
	if err := c.do(ctx, EndpointGetCart, http.MethodGet, []string{"cart", "cartItem", userID}, nil, &payload); err != nil {
		return nil, err
	}
	lines := make([]models.CartLine, 0, len(payload))
	for _, p := range payload {
		lines = append(lines, p.toCartLine())
	}
	return lines, nil
}

// AddToCart asks the remote cart to add quantity units of a product.
func (c *Client) AddToCart(ctx context.Context, req AddToCartRequest) error {
	body := addToCartPayload{
		UserID:      req.UserID,
		ProductID:   req.Product.ID,
		ProductName: req.Product.Name,
		Price:       req.Product.Price,
		Image:       req.Product.Image,
		Quality:     req.Quantity,
	}
	return c.do(ctx, EndpointAddToCart, http.MethodPost, []string{"cart", "addToCart"}, body, nil)
}

// UpdateQuantity sets the remote quantity of one line.
func (c *Client) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	return c.do(ctx, EndpointUpdateQuantity, http.MethodPut, []string{"cart", "updateQuantity", userID, productID}, body, nil)
}

// RemoveFromCart deletes one line from the remote cart.
func (c *Client) RemoveFromCart(ctx context.Context, userID, productID string) error {
	return c.do(ctx, EndpointRemove, http.MethodDelete, []string{"cart", "remove", userID, productID}, nil, nil)
}

// CreateOrder requests an order and payment session. A response that cannot
// be decoded fails with e.ErrOrderCreationFailed.
func (c *Client) CreateOrder(ctx context.Context, order models.Order) (OrderSession, error) {
	body := orderPayload{
		UserID:          order.UserID,
		Items:           make([]orderItemPayload, len(order.Items)),
		TotalPrice:      order.TotalPrice,
		ReturnURL:       order.ReturnURL,
		CancelURL:       order.CancelURL,
		Description:     order.Description,
		OrderCodeStatus: order.OrderCode,
	}
	for i, item := range order.Items {
		body.Items[i] = orderItemPayload{
			Name:      item.Name,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Price:     item.Price,
		}
	}

	var resp orderResponse
	err := c.do(ctx, EndpointCreateOrder, http.MethodPost, []string{"order", "create"}, body, &resp)
	if err != nil {
		return OrderSession{}, err
	}
	if resp.Data == nil {
		return OrderSession{}, fmt.Errorf("%w: response has no data object", e.ErrOrderCreationFailed)
	}
	return resp.Data.toOrderSession(), nil
}

// do performs one JSON round-trip. Transport failures and non-2xx answers
// are reported as e.ErrRemoteUnavailable.
func (c *Client) do(ctx context.Context, endpoint, method string, path []string, body, out any) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveRemote(endpoint, start, err) }()

	target := c.baseURL + "/" + escapePath(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", e.ErrRemoteUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: status %d: %s", e.ErrRemoteUnavailable, endpoint, resp.StatusCode, drainError(resp.Body))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if endpoint == EndpointCreateOrder {
			return fmt.Errorf("%w: malformed response: %v", e.ErrOrderCreationFailed, err)
		}
		return fmt.Errorf("%w: %s: malformed response: %v", e.ErrRemoteUnavailable, endpoint, err)
	}
	return nil
}

// escapePath escapes and joins path segments. An empty trailing segment
// keeps the trailing slash the catalog route expects.
func escapePath(segments []string) string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = url.PathEscape(s)
	}
	return strings.Join(out, "/")
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
