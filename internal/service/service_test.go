package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/api/apitest"
	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/checkout"
	"github.com/mmynk/storefront/internal/middleware"
	"github.com/mmynk/storefront/internal/storage"
	"github.com/mmynk/storefront/internal/storage/sqlite"
	"github.com/mmynk/storefront/internal/storefront"
)

type testServer struct {
	url    string
	remote *apitest.Server
	store  *sqlite.SQLiteStore
	reg    *storefront.Registry
}

// setupTestServer starts the service against a fake remote API with twelve
// products P01..P12 priced 10, 20, ... 120.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	var products []apitest.Product
	for i := 1; i <= 12; i++ {
		products = append(products, apitest.Product{
			ID:    fmt.Sprintf("P%02d", i),
			Name:  fmt.Sprintf("Product %02d", i),
			Price: int64(i * 10),
		})
	}
	products[0].Name = "Red Shoes"
	remote := apitest.NewServer(t, products...)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	deps := storefront.Deps{
		API:   api.NewClient(remote.URL, 0, nil),
		Store: store,
		Checkout: checkout.Options{
			ReturnURL:   "https://shop.example/success",
			CancelURL:   "https://shop.example/fail",
			Description: "test order",
		},
	}
	reg := storefront.NewRegistry(deps, func(key string) storage.Store {
		return store.Namespace(key)
	}, 16)

	mux := http.NewServeMux()
	Register(mux, NewStorefrontService(reg, auth.Verifier([]byte("test"))))
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		reg.Close()
		store.Close()
	})
	return &testServer{url: server.URL, remote: remote, store: store, reg: reg}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id_user": userID, "role": role}).
		SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

// unsigned builds an alg "none" token that anyone could write.
func unsigned(t *testing.T, userID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id_user": userID, "role": role}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	return s
}

func call[Req, Res any](t *testing.T, s *testServer, procedure, token string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, s.url+procedure, WithJSON())
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func expectCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil error", want)
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T", err)
	}
	if connectErr.Code() != want {
		t.Errorf("expected %v, got %v (%s)", want, connectErr.Code(), connectErr.Message())
	}
}

func TestListProducts(t *testing.T) {
	s := setupTestServer(t)

	resp, err := call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(resp.Products) != 9 || !resp.HasMore || resp.Matching != 12 {
		t.Errorf("first page: got %d products, hasMore=%v, matching=%d", len(resp.Products), resp.HasMore, resp.Matching)
	}
	if resp.Products[1].PriceLabel != "20" {
		t.Errorf("price label: expected '20', got '%s'", resp.Products[1].PriceLabel)
	}

	resp, err = call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{Pages: 2})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(resp.Products) != 12 || resp.HasMore {
		t.Errorf("two pages: got %d products, hasMore=%v", len(resp.Products), resp.HasMore)
	}

	resp, err = call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{Search: "shoes"})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != "P01" {
		t.Errorf("search: got %+v", resp.Products)
	}

	resp, err = call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{Search: "nothing like this"})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if !resp.NoResults || len(resp.Products) != 0 {
		t.Errorf("expected no results, got %+v", resp)
	}
}

func TestListProducts_HugePages(t *testing.T) {
	s := setupTestServer(t)

	for _, pages := range []int{-3, 1 << 40, int(^uint(0) >> 1)} {
		start := time.Now()
		resp, err := call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{Pages: pages})
		if err != nil {
			t.Fatalf("ListProducts(%d) failed: %v", pages, err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("ListProducts(%d) took %v", pages, elapsed)
		}
		want := 12
		if pages < 1 {
			want = 9
		}
		if len(resp.Products) != want {
			t.Errorf("ListProducts(%d): got %d products, want %d", pages, len(resp.Products), want)
		}
	}
}

func TestListProducts_StaleOnOutage(t *testing.T) {
	s := setupTestServer(t)

	if _, err := call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{}); err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}

	s.remote.FailNext("GET /product/", 1)
	resp, err := call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{})
	if err != nil {
		t.Fatalf("expected last good listing, got %v", err)
	}
	if !resp.Stale || len(resp.Products) != 9 {
		t.Errorf("expected 9 stale products, got %d (stale=%v)", len(resp.Products), resp.Stale)
	}
}

func TestListProducts_UnavailableWithoutHistory(t *testing.T) {
	s := setupTestServer(t)
	s.remote.FailNext("GET /product/", 1)

	_, err := call[ListProductsRequest, ListProductsResponse](t, s, ListProductsProcedure, "", &ListProductsRequest{})
	expectCode(t, err, connect.CodeUnavailable)
}

func TestCartFlow(t *testing.T) {
	s := setupTestServer(t)
	alice := token(t, "alice", "customer")

	for _, id := range []string{"P01", "P01", "P02"} {
		if _, err := call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, alice, &AddToCartRequest{ProductID: id}); err != nil {
			t.Fatalf("AddToCart(%s) failed: %v", id, err)
		}
	}

	cart, err := call[GetCartRequest, CartResponse](t, s, GetCartProcedure, alice, &GetCartRequest{})
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if len(cart.Lines) != 2 || cart.Lines[0].Quantity != 2 || cart.Lines[1].Quantity != 1 {
		t.Fatalf("unexpected lines %+v", cart.Lines)
	}
	if cart.Total != 40 {
		t.Errorf("total: expected 40, got %d", cart.Total)
	}

	cart, err = call[SetQuantityRequest, CartResponse](t, s, SetQuantityProcedure, alice, &SetQuantityRequest{ProductID: "P02", Quantity: 0})
	if err != nil {
		t.Fatalf("SetQuantity failed: %v", err)
	}
	if cart.Lines[1].Quantity != 1 || cart.Lines[1].State != "committed" {
		t.Errorf("expected clamped committed line, got %+v", cart.Lines[1])
	}

	cart, err = call[RemoveItemRequest, CartResponse](t, s, RemoveItemProcedure, alice, &RemoveItemRequest{ProductID: "P01"})
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Total != 20 {
		t.Errorf("after remove: %+v", cart)
	}
	if remote := s.remote.Cart("alice"); len(remote) != 1 || remote[0].ProductID != "P02" {
		t.Errorf("remote cart: %+v", remote)
	}

	notices, err := call[NotificationsRequest, NotificationsResponse](t, s, NotificationsProcedure, alice, &NotificationsRequest{})
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	if len(notices.Notices) != 5 {
		t.Errorf("expected 5 notices, got %+v", notices.Notices)
	}
}

func TestSetQuantity_Rollback(t *testing.T) {
	s := setupTestServer(t)
	alice := token(t, "alice", "customer")

	if _, err := call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, alice, &AddToCartRequest{ProductID: "P03", Quantity: 2}); err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}

	s.remote.FailNext("PUT /cart/updateQuantity", 1)
	_, err := call[SetQuantityRequest, CartResponse](t, s, SetQuantityProcedure, alice, &SetQuantityRequest{ProductID: "P03", Quantity: 5})
	expectCode(t, err, connect.CodeUnavailable)

	cart, err := call[GetCartRequest, CartResponse](t, s, GetCartProcedure, alice, &GetCartRequest{Cached: true})
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	line := cart.Lines[0]
	if line.Quantity != 2 || line.State != "failed" || cart.Total != 60 {
		t.Errorf("expected rollback to 2, got %+v (total %d)", line, cart.Total)
	}
}

func TestRemoveItem_NotFound(t *testing.T) {
	s := setupTestServer(t)

	_, err := call[RemoveItemRequest, CartResponse](t, s, RemoveItemProcedure, token(t, "alice", "customer"), &RemoveItemRequest{ProductID: "P09"})
	expectCode(t, err, connect.CodeNotFound)
}

func TestAddToCart_Rejections(t *testing.T) {
	s := setupTestServer(t)

	_, err := call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, "", &AddToCartRequest{ProductID: "P01"})
	expectCode(t, err, connect.CodeUnauthenticated)

	_, err = call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, token(t, "root", "admin"), &AddToCartRequest{ProductID: "P01"})
	expectCode(t, err, connect.CodePermissionDenied)

	_, err = call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, token(t, "alice", "customer"), &AddToCartRequest{ProductID: "nope"})
	expectCode(t, err, connect.CodeNotFound)

	if n := s.remote.CallCount("POST /cart/addToCart"); n != 0 {
		t.Errorf("expected no add requests, got %d", n)
	}
}

func TestCreateOrder(t *testing.T) {
	s := setupTestServer(t)
	alice := token(t, "alice", "customer")

	_, err := call[CreateOrderRequest, CreateOrderResponse](t, s, CreateOrderProcedure, alice, &CreateOrderRequest{})
	expectCode(t, err, connect.CodeFailedPrecondition)

	if _, err := call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, alice, &AddToCartRequest{ProductID: "P10", Quantity: 3}); err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}

	order, err := call[CreateOrderRequest, CreateOrderResponse](t, s, CreateOrderProcedure, alice, &CreateOrderRequest{})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.CheckoutURL == "" || order.OrderCode != "123456" {
		t.Errorf("unexpected handoff %+v", order)
	}
	if order.Total != 300 {
		t.Errorf("total: expected 300, got %d", order.Total)
	}

	s.remote.SetOrderResponse(map[string]any{"checkoutUrl": "https://pay.example/x"})
	_, err = call[CreateOrderRequest, CreateOrderResponse](t, s, CreateOrderProcedure, alice, &CreateOrderRequest{})
	expectCode(t, err, connect.CodeInternal)
}

func TestWhoAmIAndLogout(t *testing.T) {
	s := setupTestServer(t)
	alice := token(t, "alice", "customer")

	anon, err := call[WhoAmIRequest, WhoAmIResponse](t, s, WhoAmIProcedure, "", &WhoAmIRequest{})
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if anon.Authenticated {
		t.Error("expected anonymous session")
	}

	me, err := call[WhoAmIRequest, WhoAmIResponse](t, s, WhoAmIProcedure, alice, &WhoAmIRequest{})
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if !me.Authenticated || me.UserID != "alice" || me.Admin {
		t.Errorf("unexpected session %+v", me)
	}

	if _, err := call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, alice, &AddToCartRequest{ProductID: "P01"}); err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}
	if _, err := call[LogoutRequest, LogoutResponse](t, s, LogoutProcedure, alice, &LogoutRequest{}); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if s.reg.Len() != 0 {
		t.Errorf("expected no sessions after logout, got %d", s.reg.Len())
	}
	if _, ok, _ := s.store.Namespace(auth.Fingerprint(alice)).Get(context.Background(), storage.KeyCartItems); ok {
		t.Error("cart mirror survived logout")
	}

	_, err = call[LogoutRequest, LogoutResponse](t, s, LogoutProcedure, "", &LogoutRequest{})
	expectCode(t, err, connect.CodeUnauthenticated)
}

func TestOverview_AdminOnly(t *testing.T) {
	s := setupTestServer(t)

	_, err := call[OverviewRequest, OverviewResponse](t, s, OverviewProcedure, "", &OverviewRequest{})
	expectCode(t, err, connect.CodePermissionDenied)

	_, err = call[OverviewRequest, OverviewResponse](t, s, OverviewProcedure, token(t, "alice", "customer"), &OverviewRequest{})
	expectCode(t, err, connect.CodePermissionDenied)

	resp, err := call[OverviewRequest, OverviewResponse](t, s, OverviewProcedure, token(t, "root", "admin"), &OverviewRequest{})
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	// alice and root
	if resp.Products != 12 || resp.Sessions != 2 {
		t.Errorf("unexpected overview %+v", resp)
	}
}

func TestForgedToken(t *testing.T) {
	s := setupTestServer(t)
	alice := token(t, "alice", "customer")
	forged := unsigned(t, "alice", "admin")

	if _, err := call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, alice, &AddToCartRequest{ProductID: "P04", Quantity: 2}); err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}

	cart, err := call[GetCartRequest, CartResponse](t, s, GetCartProcedure, forged, &GetCartRequest{Cached: true})
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Errorf("forged token sees lines %+v", cart.Lines)
	}

	_, err = call[OverviewRequest, OverviewResponse](t, s, OverviewProcedure, forged, &OverviewRequest{})
	expectCode(t, err, connect.CodePermissionDenied)

	if _, err := call[LogoutRequest, LogoutResponse](t, s, LogoutProcedure, forged, &LogoutRequest{}); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, ok, _ := s.store.Namespace(auth.Fingerprint(alice)).Get(context.Background(), storage.KeyCartItems); !ok {
		t.Error("logout of another token cleared the cart mirror")
	}
	cart, err = call[GetCartRequest, CartResponse](t, s, GetCartProcedure, alice, &GetCartRequest{Cached: true})
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 {
		t.Errorf("alice lines = %+v", cart.Lines)
	}
}

func TestInvalidTokenIsReportedPerRequest(t *testing.T) {
	s := setupTestServer(t)

	client := connect.NewClient[WhoAmIRequest, WhoAmIResponse](http.DefaultClient, s.url+WhoAmIProcedure, WithJSON())
	req := connect.NewRequest(&WhoAmIRequest{})
	req.Header().Set("Authorization", "Bearer garbage")
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if resp.Msg.Authenticated {
		t.Error("expected anonymous session")
	}
	if got := resp.Header().Get(middleware.SessionHeader); got != "invalid" {
		t.Errorf("%s = %q, want invalid", middleware.SessionHeader, got)
	}

	// The next anonymous caller is not told about someone else's token.
	resp, err = client.CallUnary(context.Background(), connect.NewRequest(&WhoAmIRequest{}))
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if got := resp.Header().Get(middleware.SessionHeader); got != "" {
		t.Errorf("%s = %q for a request without a token", middleware.SessionHeader, got)
	}
	notices, err := call[NotificationsRequest, NotificationsResponse](t, s, NotificationsProcedure, "", &NotificationsRequest{})
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	if len(notices.Notices) != 0 {
		t.Errorf("anonymous notices = %+v", notices.Notices)
	}

	_, err = call[AddToCartRequest, CartResponse](t, s, AddToCartProcedure, "garbage", &AddToCartRequest{ProductID: "P01"})
	expectCode(t, err, connect.CodeUnauthenticated)
	var connectErr *connect.Error
	if errors.As(err, &connectErr) && connectErr.Meta().Get(middleware.SessionHeader) != "invalid" {
		t.Errorf("expected %s on the error", middleware.SessionHeader)
	}
}
