package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/api/apitest"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/pkg/e"
)

func TestListProducts(t *testing.T) {
	srv := apitest.NewServer(t,
		apitest.Product{ID: "A", Name: "Áo dài", Price: 150000, Image: "a.png"},
		apitest.Product{ID: "B", Name: "Nón lá", Price: 20000},
	)
	client := api.NewClient(srv.URL, 0, nil)

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	want := []models.Product{
		{ID: "A", Name: "Áo dài", Price: 150000, Image: "a.png"},
		{ID: "B", Name: "Nón lá", Price: 20000},
	}
	if diff := cmp.Diff(want, products); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}
	if calls := srv.Calls(); len(calls) != 1 || calls[0].Path != "/product/" {
		t.Errorf("expected one GET /product/, got %+v", calls)
	}
}

func TestGetCartNormalizesQuality(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.SetCart("u1",
		apitest.Line{ID: "l1", ProductID: "A", ProductName: "A", Price: 10, Quality: 3},
		apitest.Line{ID: "l2", ProductID: "B", ProductName: "B", Price: 20, Quality: 0},
	)
	client := api.NewClient(srv.URL, 0, nil).WithToken("tok")

	lines, err := client.GetCart(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", lines[0].Quantity)
	}
	if lines[1].Quantity != 1 {
		t.Errorf("zero quantity should clamp to 1, got %d", lines[1].Quantity)
	}
	if lines[0].State != models.LineCommitted {
		t.Errorf("state = %v, want committed", lines[0].State)
	}
	if auth := srv.Calls()[0].Authorization; auth != "Bearer tok" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
}

func TestCartMutationsWireFormat(t *testing.T) {
	srv := apitest.NewServer(t)
	client := api.NewClient(srv.URL, 0, nil).WithToken("tok")
	ctx := context.Background()

	err := client.AddToCart(ctx, api.AddToCartRequest{
		UserID:   "u1",
		Product:  models.Product{ID: "A", Name: "Alpha", Price: 10, Image: "a.png"},
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}
	body := srv.Calls()[0].Body
	if body["quality"] != float64(1) || body["productId"] != "A" || body["userId"] != "u1" {
		t.Errorf("unexpected add body %+v", body)
	}

	if err := client.UpdateQuantity(ctx, "u1", "A", 4); err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}
	if got := srv.Cart("u1")[0].Quality; got != 4 {
		t.Errorf("remote quantity = %d, want 4", got)
	}

	if err := client.RemoveFromCart(ctx, "u1", "A"); err != nil {
		t.Fatalf("RemoveFromCart failed: %v", err)
	}
	if len(srv.Cart("u1")) != 0 {
		t.Error("expected remote cart to be empty")
	}
}

func TestRemoteUnavailable(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := apitest.NewServer(t)
		srv.FailNext("GET /product/", 1)
		_, err := api.NewClient(srv.URL, 0, nil).ListProducts(context.Background())
		if !errors.Is(err, e.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := api.NewClient(url, 0, nil).GetCart(context.Background(), "u1")
		if !errors.Is(err, e.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
	})

	t.Run("cart payload is not an array", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message":"nope"}`))
		}))
		defer srv.Close()
		_, err := api.NewClient(srv.URL, 0, nil).GetCart(context.Background(), "u1")
		if !errors.Is(err, e.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
	})
}

func TestCreateOrder(t *testing.T) {
	order := models.Order{
		UserID:      "u1",
		Items:       []models.OrderItem{{Name: "A", ProductID: "A", Quantity: 2, Price: 10}},
		TotalPrice:  20,
		ReturnURL:   "https://shop.example/success",
		CancelURL:   "https://shop.example/fail",
		Description: "order",
		OrderCode:   "654321",
	}

	t.Run("numeric order code is accepted", func(t *testing.T) {
		srv := apitest.NewServer(t)
		srv.SetOrderResponse(map[string]any{
			"checkoutUrl":     "https://pay.example/c",
			"cancelUrl":       "https://shop.example/fail",
			"returnUrl":       "https://shop.example/success",
			"orderCodeStatus": 654321,
		})
		session, err := api.NewClient(srv.URL, 0, nil).CreateOrder(context.Background(), order)
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		if session.OrderCode != "654321" || session.CheckoutURL != "https://pay.example/c" {
			t.Errorf("unexpected session %+v", session)
		}
		body := srv.Calls()[0].Body
		if body["orderCodeStatus"] != "654321" || body["totalPrice"] != float64(20) {
			t.Errorf("unexpected order body %+v", body)
		}
		items, _ := body["items"].([]any)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %+v", body["items"])
		}
	})

	t.Run("missing data object", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message":"ok"}`))
		}))
		defer srv.Close()
		_, err := api.NewClient(srv.URL, 0, nil).CreateOrder(context.Background(), order)
		if !errors.Is(err, e.ErrOrderCreationFailed) {
			t.Errorf("expected ErrOrderCreationFailed, got %v", err)
		}
	})
}
