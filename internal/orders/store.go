package orders

import (
	"context"
	"errors"
)

// Store sentinels. Implementations return these (possibly wrapped) so the
// services can turn them into caller-facing errors.
var (
	ErrNoRecord     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store is the persistence collaborator. Reads on orders attach customer,
// items and item products.
type Store interface {
	ProductByID(ctx context.Context, id int64) (Product, error)
	ProductBySKU(ctx context.Context, sku string) (Product, error)
	ProductsByIDs(ctx context.Context, ids []int64) ([]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	InsertProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	// DeleteProduct removes the product and nulls product_id on its order items.
	DeleteProduct(ctx context.Context, id int64) error
	// DecrementStock subtracts qty only if the result stays >= 0. ok is false
	// when the stock was insufficient; remaining is the stock after the call.
	DecrementStock(ctx context.Context, id int64, qty int) (remaining int, ok bool, err error)

	CustomerByID(ctx context.Context, id int64) (Customer, error)
	CustomerByEmail(ctx context.Context, email string) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	InsertCustomer(ctx context.Context, c *Customer) error
	UpdateCustomer(ctx context.Context, c *Customer) error
	DeleteCustomer(ctx context.Context, id int64) error
	CustomerHasOrders(ctx context.Context, id int64) (bool, error)

	// InsertOrder writes the order and its items, filling ids and timestamps.
	InsertOrder(ctx context.Context, o *Order) error
	OrderByID(ctx context.Context, id int64) (Order, error)
	// ListOrders returns orders newest first.
	ListOrders(ctx context.Context) ([]Order, error)
	// MarkConfirmed moves a PENDING order to CONFIRMED. ok is false when the
	// order was not PENDING anymore.
	MarkConfirmed(ctx context.Context, id int64) (ok bool, err error)
	SetOrderCustomer(ctx context.Context, id, customerID int64) error
	DeleteOrder(ctx context.Context, id int64) error

	// InTx runs fn in one atomic unit. Returning an error from fn discards
	// every write made through tx.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
