package httpx

import (
	"time"

	"github.com/ariefcatur/futura-orders/internal/orders"
)

// Money is rendered as a fixed two-decimal string ("350.00").

type productView struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProduct(p orders.Product) productView {
	return productView{
		ID:        p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		Price:     orders.Money(p.Price),
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type customerView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toCustomer(c orders.Customer) customerView {
	return customerView{ID: c.ID, Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt}
}

type itemView struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"order_id"`
	ProductID *int64       `json:"product_id"`
	Qty       int          `json:"qty"`
	Price     string       `json:"price"`
	Product   *productView `json:"product"`
}

type orderView struct {
	ID         int64         `json:"id"`
	CustomerID int64         `json:"customer_id"`
	Status     orders.Status `json:"status"`
	Total      string        `json:"total"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Customer   *customerView `json:"customer,omitempty"`
	Items      []itemView    `json:"items"`
}

func toOrder(o orders.Order) orderView {
	v := orderView{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      orders.Money(o.Total),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
		Items:      make([]itemView, 0, len(o.Items)),
	}
	if o.Customer != nil {
		c := toCustomer(*o.Customer)
		v.Customer = &c
	}
	for _, it := range o.Items {
		iv := itemView{ID: it.ID, OrderID: it.OrderID, ProductID: it.ProductID, Qty: it.Qty, Price: orders.Money(it.Price)}
		if it.Product != nil {
			p := toProduct(*it.Product)
			iv.Product = &p
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, x := range in {
		out = append(out, f(x))
	}
	return out
}
