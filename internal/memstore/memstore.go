// Package memstore is an in-memory orders.Store. Transactions take the write
// lock for their whole duration and restore a snapshot when fn fails.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/futura-orders/internal/orders"
)

type data struct {
	nextProduct  int64
	nextCustomer int64
	nextOrder    int64
	nextItem     int64

	products  map[int64]orders.Product
	customers map[int64]orders.Customer
	// items are kept inside the order; Customer and Product are attached on read
	orders map[int64]orders.Order
}

func newData() *data {
	return &data{
		nextProduct:  1,
		nextCustomer: 1,
		nextOrder:    1,
		nextItem:     1,
		products:     make(map[int64]orders.Product),
		customers:    make(map[int64]orders.Customer),
		orders:       make(map[int64]orders.Order),
	}
}

func (d *data) clone() *data {
	cp := *d
	cp.products = make(map[int64]orders.Product, len(d.products))
	for k, v := range d.products {
		cp.products[k] = v
	}
	cp.customers = make(map[int64]orders.Customer, len(d.customers))
	for k, v := range d.customers {
		cp.customers[k] = v
	}
	cp.orders = make(map[int64]orders.Order, len(d.orders))
	for k, v := range d.orders {
		cp.orders[k] = copyOrder(v)
	}
	return &cp
}

func copyOrder(o orders.Order) orders.Order {
	items := make([]orders.OrderItem, len(o.Items))
	for i, it := range o.Items {
		if it.ProductID != nil {
			id := *it.ProductID
			it.ProductID = &id
		}
		it.Product = nil
		items[i] = it
	}
	o.Items = items
	o.Customer = nil
	return o
}

type Store struct {
	mu   *sync.RWMutex
	db   *data
	inTx bool

	// Now is the clock used for timestamps.
	Now func() time.Time
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		mu:  &sync.RWMutex{},
		db:  newData(),
		Now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) rlock() {
	if !s.inTx {
		s.mu.RLock()
	}
}
func (s *Store) runlock() {
	if !s.inTx {
		s.mu.RUnlock()
	}
}
func (s *Store) wlock() {
	if !s.inTx {
		s.mu.Lock()
	}
}
func (s *Store) wunlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.db.clone()
	defer func() {
		if r := recover(); r != nil {
			*s.db = *snapshot
			panic(r)
		}
		if err != nil {
			*s.db = *snapshot
		}
	}()
	return fn(&Store{mu: s.mu, db: s.db, inTx: true, Now: s.Now})
}

// Products

func (s *Store) ProductByID(_ context.Context, id int64) (orders.Product, error) {
	s.rlock()
	defer s.runlock()
	p, ok := s.db.products[id]
	if !ok {
		return orders.Product{}, orders.ErrNoRecord
	}
	return p, nil
}

func (s *Store) ProductBySKU(_ context.Context, sku string) (orders.Product, error) {
	s.rlock()
	defer s.runlock()
	for _, p := range s.db.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return orders.Product{}, orders.ErrNoRecord
}

func (s *Store) ProductsByIDs(_ context.Context, ids []int64) ([]orders.Product, error) {
	s.rlock()
	defer s.runlock()
	out := make([]orders.Product, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := s.db.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListProducts(context.Context) ([]orders.Product, error) {
	s.rlock()
	defer s.runlock()
	out := make([]orders.Product, 0, len(s.db.products))
	for _, p := range s.db.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertProduct(_ context.Context, p *orders.Product) error {
	s.wlock()
	defer s.wunlock()
	if s.skuTaken(p.SKU, 0) {
		return orders.ErrDuplicateKey
	}
	p.ID = s.db.nextProduct
	s.db.nextProduct++
	p.CreatedAt = s.Now()
	p.UpdatedAt = p.CreatedAt
	s.db.products[p.ID] = *p
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p *orders.Product) error {
	s.wlock()
	defer s.wunlock()
	old, ok := s.db.products[p.ID]
	if !ok {
		return orders.ErrNoRecord
	}
	if s.skuTaken(p.SKU, p.ID) {
		return orders.ErrDuplicateKey
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = s.Now()
	s.db.products[p.ID] = *p
	return nil
}

func (s *Store) skuTaken(sku string, self int64) bool {
	for _, p := range s.db.products {
		if p.SKU == sku && p.ID != self {
			return true
		}
	}
	return false
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.wlock()
	defer s.wunlock()
	if _, ok := s.db.products[id]; !ok {
		return orders.ErrNoRecord
	}
	delete(s.db.products, id)
	for oid, o := range s.db.orders {
		changed := false
		for i, it := range o.Items {
			if it.ProductID != nil && *it.ProductID == id {
				o.Items[i].ProductID = nil
				changed = true
			}
		}
		if changed {
			s.db.orders[oid] = o
		}
	}
	return nil
}

func (s *Store) DecrementStock(_ context.Context, id int64, qty int) (int, bool, error) {
	s.wlock()
	defer s.wunlock()
	p, ok := s.db.products[id]
	if !ok {
		return 0, false, orders.ErrNoRecord
	}
	if p.Stock < qty {
		return p.Stock, false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = s.Now()
	s.db.products[id] = p
	return p.Stock, true, nil
}

// Customers

func (s *Store) CustomerByID(_ context.Context, id int64) (orders.Customer, error) {
	s.rlock()
	defer s.runlock()
	c, ok := s.db.customers[id]
	if !ok {
		return orders.Customer{}, orders.ErrNoRecord
	}
	return c, nil
}

func (s *Store) CustomerByEmail(_ context.Context, email string) (orders.Customer, error) {
	s.rlock()
	defer s.runlock()
	for _, c := range s.db.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return orders.Customer{}, orders.ErrNoRecord
}

func (s *Store) ListCustomers(context.Context) ([]orders.Customer, error) {
	s.rlock()
	defer s.runlock()
	out := make([]orders.Customer, 0, len(s.db.customers))
	for _, c := range s.db.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertCustomer(_ context.Context, c *orders.Customer) error {
	s.wlock()
	defer s.wunlock()
	if s.emailTaken(c.Email, 0) {
		return orders.ErrDuplicateKey
	}
	c.ID = s.db.nextCustomer
	s.db.nextCustomer++
	c.CreatedAt = s.Now()
	s.db.customers[c.ID] = *c
	return nil
}

func (s *Store) UpdateCustomer(_ context.Context, c *orders.Customer) error {
	s.wlock()
	defer s.wunlock()
	old, ok := s.db.customers[c.ID]
	if !ok {
		return orders.ErrNoRecord
	}
	if s.emailTaken(c.Email, c.ID) {
		return orders.ErrDuplicateKey
	}
	c.CreatedAt = old.CreatedAt
	s.db.customers[c.ID] = *c
	return nil
}

func (s *Store) emailTaken(email string, self int64) bool {
	for _, c := range s.db.customers {
		if c.Email == email && c.ID != self {
			return true
		}
	}
	return false
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.wlock()
	defer s.wunlock()
	if _, ok := s.db.customers[id]; !ok {
		return orders.ErrNoRecord
	}
	delete(s.db.customers, id)
	return nil
}

func (s *Store) CustomerHasOrders(_ context.Context, id int64) (bool, error) {
	s.rlock()
	defer s.runlock()
	for _, o := range s.db.orders {
		if o.CustomerID == id {
			return true, nil
		}
	}
	return false, nil
}

// Orders

func (s *Store) InsertOrder(_ context.Context, o *orders.Order) error {
	s.wlock()
	defer s.wunlock()
	if _, ok := s.db.customers[o.CustomerID]; !ok {
		return orders.ErrNoRecord
	}
	o.ID = s.db.nextOrder
	s.db.nextOrder++
	o.CreatedAt = s.Now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		o.Items[i].ID = s.db.nextItem
		s.db.nextItem++
		o.Items[i].OrderID = o.ID
	}
	s.db.orders[o.ID] = copyOrder(*o)
	return nil
}

func (s *Store) OrderByID(_ context.Context, id int64) (orders.Order, error) {
	s.rlock()
	defer s.runlock()
	o, ok := s.db.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNoRecord
	}
	return s.attach(o), nil
}

func (s *Store) ListOrders(context.Context) ([]orders.Order, error) {
	s.rlock()
	defer s.runlock()
	out := make([]orders.Order, 0, len(s.db.orders))
	for _, o := range s.db.orders {
		out = append(out, s.attach(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// attach returns a detached copy of o with customer and products filled in.
func (s *Store) attach(o orders.Order) orders.Order {
	o = copyOrder(o)
	if c, ok := s.db.customers[o.CustomerID]; ok {
		o.Customer = &c
	}
	for i, it := range o.Items {
		if it.ProductID == nil {
			continue
		}
		if p, ok := s.db.products[*it.ProductID]; ok {
			o.Items[i].Product = &p
		}
	}
	return o
}

func (s *Store) MarkConfirmed(_ context.Context, id int64) (bool, error) {
	s.wlock()
	defer s.wunlock()
	o, ok := s.db.orders[id]
	if !ok {
		return false, orders.ErrNoRecord
	}
	if o.Status != orders.StatusPending {
		return false, nil
	}
	o.Status = orders.StatusConfirmed
	o.UpdatedAt = s.Now()
	s.db.orders[id] = o
	return true, nil
}

func (s *Store) SetOrderCustomer(_ context.Context, id, customerID int64) error {
	s.wlock()
	defer s.wunlock()
	o, ok := s.db.orders[id]
	if !ok {
		return orders.ErrNoRecord
	}
	if _, ok := s.db.customers[customerID]; !ok {
		return orders.ErrNoRecord
	}
	o.CustomerID = customerID
	o.UpdatedAt = s.Now()
	s.db.orders[id] = o
	return nil
}

func (s *Store) DeleteOrder(_ context.Context, id int64) error {
	s.wlock()
	defer s.wunlock()
	if _, ok := s.db.orders[id]; !ok {
		return orders.ErrNoRecord
	}
	delete(s.db.orders, id)
	return nil
}
