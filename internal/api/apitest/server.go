// Package apitest provides an in-memory fake of the remote storefront API
// for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Product is a catalog entry served by the fake.
type Product struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

// Line is a remote cart line as stored by the fake.
type Line struct {
	ID          string `json:"_id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
	Quality     int    `json:"quality"`
}

// Call records one request received by the fake.
type Call struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// Server is a fake remote API. Repeat adds of one product increment its
// quantity, mirroring the production backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	products []Product
	carts    map[string][]Line
	calls    []Call
	fail     map[string]int
	order    map[string]any
	hooks    map[string]func()
	commits  map[string]func()
}

// NewServer starts a fake API serving products. It is closed with t.Cleanup.
func NewServer(t testing.TB, products ...Product) *Server {
	t.Helper()
	s := &Server{
		products: products,
		carts:    make(map[string][]Line),
		fail:     make(map[string]int),
		hooks:    make(map[string]func()),
		commits:  make(map[string]func()),
		order: map[string]any{
			"checkoutUrl":     "https://pay.example/checkout/1",
			"cancelUrl":       "https://shop.example/fail",
			"returnUrl":       "https://shop.example/success",
			"orderCodeStatus": "123456",
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next n requests whose route starts with prefix
// (e.g. "PUT /cart/updateQuantity") answer 500.
func (s *Server) FailNext(prefix string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[prefix] += n
}

// OnRequest runs fn, without holding the fake's lock, before serving any
// request whose route starts with prefix.
func (s *Server) OnRequest(prefix string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[prefix] = fn
}

// OnCommit runs fn after a cart mutation whose route starts with prefix has
// been applied, before its response is written. fn runs without the fake's
// lock.
func (s *Server) OnCommit(prefix string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[prefix] = fn
}

// SetOrderResponse replaces the data object returned by order creation.
func (s *Server) SetOrderResponse(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = data
}

// SetCart replaces the remote cart of a user.
func (s *Server) SetCart(userID string, lines ...Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append([]Line(nil), lines...)
}

// Cart returns a copy of the remote cart of a user.
func (s *Server) Cart(userID string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.carts[userID]...)
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many received requests start with prefix.
func (s *Server) CallCount(prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.HasPrefix(c.Method+" "+c.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	var hook func()
	for prefix, fn := range s.hooks {
		if strings.HasPrefix(route, prefix) {
			hook = fn
		}
	}
	failing := false
	for prefix, n := range s.fail {
		if n > 0 && strings.HasPrefix(route, prefix) {
			s.fail[prefix] = n - 1
			failing = true
			break
		}
	}
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if failing {
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/product/":
		s.mu.Lock()
		products := append([]Product{}, s.products...)
		s.mu.Unlock()
		writeJSON(w, products)

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "cart" && parts[1] == "cartItem":
		lines := s.Cart(parts[2])
		if lines == nil {
			lines = []Line{}
		}
		writeJSON(w, lines)

	case r.Method == http.MethodPost && r.URL.Path == "/cart/addToCart":
		s.addToCart(body)
		s.committed(route)
		writeJSON(w, map[string]string{"message": "added"})

	case r.Method == http.MethodPut && len(parts) == 4 && parts[1] == "updateQuantity":
		q, _ := body["quantity"].(float64)
		if !s.updateLine(parts[2], parts[3], func(l *Line) { l.Quality = int(q) }) {
			http.Error(w, "line not found", http.StatusNotFound)
			return
		}
		s.committed(route)
		writeJSON(w, map[string]string{"message": "updated"})

	case r.Method == http.MethodDelete && len(parts) == 4 && parts[1] == "remove":
		if !s.removeLine(parts[2], parts[3]) {
			http.Error(w, "line not found", http.StatusNotFound)
			return
		}
		s.committed(route)
		writeJSON(w, map[string]string{"message": "removed"})

	case r.Method == http.MethodPost && r.URL.Path == "/order/create":
		s.mu.Lock()
		data := s.order
		s.mu.Unlock()
		writeJSON(w, map[string]any{"data": data})

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) committed(route string) {
	s.mu.Lock()
	var hook func()
	for prefix, fn := range s.commits {
		if strings.HasPrefix(route, prefix) {
			hook = fn
		}
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (s *Server) addToCart(body map[string]any) {
	userID, _ := body["userId"].(string)
	productID, _ := body["productId"].(string)
	name, _ := body["productName"].(string)
	image, _ := body["image"].(string)
	price, _ := body["price"].(float64)
	quality, _ := body["quality"].(float64)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, line := range s.carts[userID] {
		if line.ProductID == productID {
			s.carts[userID][i].Quality += int(quality)
			return
		}
	}
	s.carts[userID] = append(s.carts[userID], Line{
		ID:          "line-" + productID,
		ProductID:   productID,
		ProductName: name,
		Price:       int64(price),
		Image:       image,
		Quality:     int(quality),
	})
}

func (s *Server) updateLine(userID, productID string, fn func(*Line)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.carts[userID] {
		if s.carts[userID][i].ProductID == productID {
			fn(&s.carts[userID][i])
			return true
		}
	}
	return false
}

func (s *Server) removeLine(userID, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			s.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
