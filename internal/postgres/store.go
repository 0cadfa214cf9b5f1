package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/futura-orders/internal/orders"
)

// querier is what *pgxpool.Pool and pgx.Tx have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements orders.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ orders.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// InTx runs fn in a READ COMMITTED transaction. Stock safety comes from the
// conditional UPDATEs, not from the isolation level.
func (s *Store) InTx(ctx context.Context, fn func(tx orders.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ErrNoRecord
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", orders.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

// Products

const productCols = `id, sku, name, stock, price, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ProductByID(ctx context.Context, id int64) (orders.Product, error) {
	p, err := scanProduct(s.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	return p, mapErr(err)
}

func (s *Store) ProductBySKU(ctx context.Context, sku string) (orders.Product, error) {
	p, err := scanProduct(s.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE sku = $1`, sku))
	return p, mapErr(err)
}

func (s *Store) ProductsByIDs(ctx context.Context, ids []int64) ([]orders.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1) ORDER BY id`, ids)
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productCols+` FROM products ORDER BY id`)
}

func (s *Store) queryProducts(ctx context.Context, sql string, args ...any) ([]orders.Product, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertProduct(ctx context.Context, p *orders.Product) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO products (sku, name, stock, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		p.SKU, p.Name, p.Stock, p.Price,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapErr(err)
}

func (s *Store) UpdateProduct(ctx context.Context, p *orders.Product) error {
	err := s.q.QueryRow(ctx, `
		UPDATE products SET sku = $2, name = $3, stock = $4, price = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.SKU, p.Name, p.Stock, p.Price,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapErr(err)
}

// DeleteProduct relies on ON DELETE SET NULL to sever order item links.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	ct, err := s.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNoRecord
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, id int64, qty int) (int, bool, error) {
	var left int
	err := s.q.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, id, qty).Scan(&left)
	if err == nil {
		return left, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}
	// refused: report what is there now
	err = s.q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&left)
	if err != nil {
		return 0, false, mapErr(err)
	}
	return left, false, nil
}

// Customers

func scanCustomer(row pgx.Row) (orders.Customer, error) {
	var c orders.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	return c, err
}

func (s *Store) CustomerByID(ctx context.Context, id int64) (orders.Customer, error) {
	c, err := scanCustomer(s.q.QueryRow(ctx, `SELECT id, name, email, created_at FROM customers WHERE id = $1`, id))
	return c, mapErr(err)
}

func (s *Store) CustomerByEmail(ctx context.Context, email string) (orders.Customer, error) {
	c, err := scanCustomer(s.q.QueryRow(ctx, `SELECT id, name, email, created_at FROM customers WHERE email = $1`, email))
	return c, mapErr(err)
}

func (s *Store) ListCustomers(ctx context.Context) ([]orders.Customer, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, email, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) InsertCustomer(ctx context.Context, c *orders.Customer) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO customers (name, email) VALUES ($1, $2)
		RETURNING id, created_at`, c.Name, c.Email,
	).Scan(&c.ID, &c.CreatedAt)
	return mapErr(err)
}

func (s *Store) UpdateCustomer(ctx context.Context, c *orders.Customer) error {
	err := s.q.QueryRow(ctx, `
		UPDATE customers SET name = $2, email = $3 WHERE id = $1
		RETURNING created_at`, c.ID, c.Name, c.Email,
	).Scan(&c.CreatedAt)
	return mapErr(err)
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	ct, err := s.q.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNoRecord
	}
	return nil
}

func (s *Store) CustomerHasOrders(ctx context.Context, id int64) (bool, error) {
	var has bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE customer_id = $1)`, id).Scan(&has)
	return has, err
}

// Orders

func (s *Store) InsertOrder(ctx context.Context, o *orders.Order) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO orders (customer_id, status, total)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		o.CustomerID, string(o.Status), o.Total,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if len(o.Items) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, it := range o.Items {
		b.Queue(`INSERT INTO order_items (order_id, product_id, qty, price)
		         VALUES ($1, $2, $3, $4) RETURNING id`, o.ID, it.ProductID, it.Qty, it.Price)
	}
	br := s.q.SendBatch(ctx, b)
	for i := range o.Items {
		if err := br.QueryRow().Scan(&o.Items[i].ID); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert item %d: %w", i, mapErr(err))
		}
		o.Items[i].OrderID = o.ID
	}
	return br.Close()
}

const orderSelect = `
	SELECT o.id, o.customer_id, o.status, o.total, o.created_at, o.updated_at,
	       c.name, c.email, c.created_at
	FROM orders o
	JOIN customers c ON c.id = o.customer_id`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		c      orders.Customer
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &status, &o.Total, &o.CreatedAt, &o.UpdatedAt,
		&c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		return o, err
	}
	if o.Status, err = orders.ParseStatus(status); err != nil {
		return o, err
	}
	c.ID = o.CustomerID
	o.Customer = &c
	return o, nil
}

func (s *Store) OrderByID(ctx context.Context, id int64) (orders.Order, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		return orders.Order{}, mapErr(err)
	}
	items, err := s.itemsFor(ctx, []int64{o.ID})
	if err != nil {
		return orders.Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	rows, err := s.q.Query(ctx, orderSelect+` ORDER BY o.created_at DESC, o.id DESC`)
	if err != nil {
		return nil, err
	}
	out := []orders.Order{}
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// itemsFor loads the items of the given orders with their (possibly gone) products.
func (s *Store) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]orders.OrderItem, error) {
	rows, err := s.q.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.qty, i.price,
		       p.sku, p.name, p.stock, p.price, p.created_at, p.updated_at
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]orders.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			it orders.OrderItem
			pr struct {
				sku, name        *string
				stock            *int
				price            decimal.NullDecimal
				created, updated *time.Time
			}
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.Price,
			&pr.sku, &pr.name, &pr.stock, &pr.price, &pr.created, &pr.updated); err != nil {
			return nil, err
		}
		if it.ProductID != nil && pr.sku != nil && pr.created != nil && pr.updated != nil {
			it.Product = &orders.Product{
				ID:        *it.ProductID,
				SKU:       *pr.sku,
				Name:      *pr.name,
				Stock:     *pr.stock,
				Price:     pr.price.Decimal,
				CreatedAt: *pr.created,
				UpdatedAt: *pr.updated,
			}
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (s *Store) MarkConfirmed(ctx context.Context, id int64) (bool, error) {
	ct, err := s.q.Exec(ctx, `
		UPDATE orders SET status = 'CONFIRMED', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) SetOrderCustomer(ctx context.Context, id, customerID int64) error {
	ct, err := s.q.Exec(ctx, `UPDATE orders SET customer_id = $2, updated_at = now() WHERE id = $1`, id, customerID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNoRecord
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	ct, err := s.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNoRecord
	}
	return nil
}
