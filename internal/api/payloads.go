package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mmynk/storefront/internal/models"
)

type productPayload struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

func (p productPayload) toProduct() models.Product {
	return models.Product{
		ID:    p.ID,
		Name:  p.Name,
		Price: p.Price,
		Image: p.Image,
	}
}

// cartLinePayload is a remote cart line. The remote API spells quantity
// "quality".
type cartLinePayload struct {
	ID          string `json:"_id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
	Quality     int    `json:"quality"`
}

func (p cartLinePayload) toCartLine() models.CartLine {
	return models.CartLine{
		ID:          p.ID,
		ProductID:   p.ProductID,
		ProductName: p.ProductName,
		Price:       p.Price,
		Image:       p.Image,
		Quantity:    models.ClampQuantity(p.Quality),
		State:       models.LineCommitted,
	}
}

type addToCartPayload struct {
	UserID      string `json:"userId"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
	Quality     int    `json:"quality"`
}

type orderItemPayload struct {
	Name      string `json:"name"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image"`
	Price     int64  `json:"price"`
}

type orderPayload struct {
	UserID          string             `json:"userId"`
	Items           []orderItemPayload `json:"items"`
	TotalPrice      int64              `json:"totalPrice"`
	ReturnURL       string             `json:"returnUrl"`
	CancelURL       string             `json:"cancelUrl"`
	Description     string             `json:"description"`
	OrderCodeStatus string             `json:"orderCodeStatus"`
}

type orderResponse struct {
	Data *orderSessionPayload `json:"data"`
}

type orderSessionPayload struct {
	CheckoutURL     string     `json:"checkoutUrl"`
	CancelURL       string     `json:"cancelUrl"`
	ReturnURL       string     `json:"returnUrl"`
	OrderCodeStatus flexString `json:"orderCodeStatus"`
}

func (p orderSessionPayload) toOrderSession() OrderSession {
	return OrderSession{
		CheckoutURL: strings.TrimSpace(p.CheckoutURL),
		CancelURL:   strings.TrimSpace(p.CancelURL),
		ReturnURL:   strings.TrimSpace(p.ReturnURL),
		OrderCode:   strings.TrimSpace(string(p.OrderCodeStatus)),
	}
}

// flexString accepts a JSON string or number. The order endpoint echoes the
// order code back in either form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
