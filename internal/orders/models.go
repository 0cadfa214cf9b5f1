package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64
	SKU       string
	Name      string
	Stock     int
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Customer struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}

type Order struct {
	ID         int64
	CustomerID int64
	Status     Status
	Total      decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Eagerly attached by the store on reads.
	Customer *Customer
	Items    []OrderItem
}

type OrderItem struct {
	ID      int64
	OrderID int64
	// ProductID is nil once the product has been deleted.
	ProductID *int64
	Qty       int
	// Price is the unit price captured when the order was created.
	Price decimal.Decimal

	Product *Product
}

// LineTotal is Price * Qty.
func (it OrderItem) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Qty)))
}

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type UpdateOrderInput struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
}

type ProductInput struct {
	Name  string          `json:"name"`
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type ProductPatch struct {
	Name  *string          `json:"name,omitempty"`
	SKU   *string          `json:"sku,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock *int             `json:"stock,omitempty"`
}

type CustomerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CustomerPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// MaxOrderTotal is the largest total the orders table can hold (NUMERIC(12,2)).
var MaxOrderTotal = decimal.RequireFromString("9999999999.99")

// Money renders an amount the way it is stored: two fixed decimals.
func Money(d decimal.Decimal) string { return d.StringFixed(2) }
