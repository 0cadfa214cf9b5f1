package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"github.com/ariefcatur/futura-orders/internal/memstore"
	"github.com/ariefcatur/futura-orders/internal/orders"
)

type published struct {
	topic string
	key   string
	env   orders.Envelope
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []published
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key []byte, env orders.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, published{topic: topic, key: string(key), env: env})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.got))
	for _, g := range p.got {
		out = append(out, g.topic)
	}
	return out
}

type mapCache struct {
	mu sync.Mutex
	m  map[int64]orders.Status
}

func (c *mapCache) SetStatus(_ context.Context, id int64, s orders.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = s
	return nil
}

func (c *mapCache) DropStatus(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type countingRecorder struct {
	mu        sync.Mutex
	created   int
	confirmed int
	rejected  map[string]int
}

func (r *countingRecorder) OrderCreated() {
	r.mu.Lock()
	r.created++
	r.mu.Unlock()
}

func (r *countingRecorder) OrderConfirmed(time.Duration) {
	r.mu.Lock()
	r.confirmed++
	r.mu.Unlock()
}

func (r *countingRecorder) OrderRejected(op, reason string) {
	r.mu.Lock()
	r.rejected[op+"/"+reason]++
	r.mu.Unlock()
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memstore.Store
	events  *recordingPublisher
	cache   *mapCache
	metrics *countingRecorder
	svc     *orders.Service
	catalog *orders.CatalogService
	people  *orders.CustomerService

	customer orders.Customer
	widget   orders.Product // 100.00, stock 10
	gadget   orders.Product // 50.00, stock 5
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memstore.New()
	s.events = &recordingPublisher{}
	s.cache = &mapCache{m: map[int64]orders.Status{}}
	s.metrics = &countingRecorder{rejected: map[string]int{}}
	s.svc = &orders.Service{
		Store:       s.store,
		Events:      s.events,
		Cache:       s.cache,
		Metrics:     s.metrics,
		ServiceName: "orders-test",
	}
	s.catalog = &orders.CatalogService{Store: s.store}
	s.people = &orders.CustomerService{Store: s.store}

	var err error
	s.customer, err = s.people.CreateCustomer(s.ctx, orders.CustomerInput{Name: "Ana", Email: "ana@example.com"})
	s.Require().NoError(err)
	s.widget = s.product("Widget", "W-1", "100.00", 10)
	s.gadget = s.product("Gadget", "G-1", "50.00", 5)
}

func (s *ServiceSuite) product(name, sku, price string, stock int) orders.Product {
	p, err := s.catalog.CreateProduct(s.ctx, orders.ProductInput{
		Name: name, SKU: sku, Price: decimal.RequireFromString(price), Stock: stock,
	})
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) stockOf(id int64) int {
	p, err := s.store.ProductByID(s.ctx, id)
	s.Require().NoError(err)
	return p.Stock
}

func (s *ServiceSuite) orderCount() int {
	list, err := s.svc.ListOrders(s.ctx)
	s.Require().NoError(err)
	return len(list)
}

func (s *ServiceSuite) TestCreateOrder_ExactTotal() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{
		{ProductID: s.widget.ID, Qty: 2},
		{ProductID: s.gadget.ID, Qty: 3},
	})
	s.Require().NoError(err)

	s.Equal("350.00", orders.Money(o.Total))
	s.Equal(orders.StatusPending, o.Status)
	s.Require().NotNil(o.Customer)
	s.Equal("Ana", o.Customer.Name)
	s.Require().Len(o.Items, 2)
	s.Equal("100.00", orders.Money(o.Items[0].Price))
	s.Require().NotNil(o.Items[0].Product)
	s.Equal("Widget", o.Items[0].Product.Name)

	// creation does not touch stock
	s.Equal(10, s.stockOf(s.widget.ID))
	s.Equal(5, s.stockOf(s.gadget.ID))

	s.Equal([]string{orders.TopicOrderCreated}, s.events.topics())
	s.Equal(orders.StatusPending, s.cache.m[o.ID])
	s.Equal(1, s.metrics.created)
}

func (s *ServiceSuite) TestCreateOrder_UnknownCustomer() {
	_, err := s.svc.CreateOrder(s.ctx, 999, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 1}})
	s.Require().ErrorIs(err, orders.ErrNotFound)
	s.EqualError(err, "customer 999 not found")
	s.Zero(s.orderCount())
	s.Empty(s.events.topics())
	s.Equal(1, s.metrics.rejected["create/not_found"])
}

func (s *ServiceSuite) TestCreateOrder_UnknownProduct() {
	_, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{
		{ProductID: s.widget.ID, Qty: 1},
		{ProductID: 4242, Qty: 1},
	})
	s.Require().ErrorIs(err, orders.ErrNotFound)
	s.EqualError(err, "one or more products not found")
	s.Zero(s.orderCount())
}

func (s *ServiceSuite) TestCreateOrder_InsufficientStock() {
	_, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{
		{ProductID: s.widget.ID, Qty: 1},
		{ProductID: s.gadget.ID, Qty: 6},
	})
	s.Require().ErrorIs(err, orders.ErrInvalidRequest)
	s.EqualError(err, "insufficient stock for product Gadget, available 5, requested 6")
	s.Zero(s.orderCount())
	s.Equal(10, s.stockOf(s.widget.ID))
}

func (s *ServiceSuite) TestCreateOrder_TotalTooLarge() {
	big := s.product("Yacht", "Y-1", "99999999.99", 200)

	_, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: big.ID, Qty: 101}})
	s.Require().ErrorIs(err, orders.ErrInvalidRequest)
	s.EqualError(err, "order total 10099999998.99 exceeds the maximum of 9999999999.99")
	s.Zero(s.orderCount())

	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: big.ID, Qty: 100}})
	s.Require().NoError(err)
	s.Equal("9999999999.00", orders.Money(o.Total))
}

func (s *ServiceSuite) TestCreateOrder_DuplicateLinesCheckedIndividually() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{
		{ProductID: s.gadget.ID, Qty: 4},
		{ProductID: s.gadget.ID, Qty: 4},
	})
	s.Require().NoError(err)
	s.Equal("400.00", orders.Money(o.Total))
	s.Len(o.Items, 2)
}

func (s *ServiceSuite) TestCreateOrder_BadInput() {
	_, err := s.svc.CreateOrder(s.ctx, s.customer.ID, nil)
	s.ErrorIs(err, orders.ErrInvalidRequest)

	_, err = s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 0}})
	s.ErrorIs(err, orders.ErrInvalidRequest)

	// input validation runs before any lookup
	_, err = s.svc.CreateOrder(s.ctx, 999, []orders.ItemInput{{ProductID: s.widget.ID, Qty: -1}})
	s.ErrorIs(err, orders.ErrInvalidRequest)
	s.Zero(s.orderCount())
}

func (s *ServiceSuite) TestConfirmOrder_DecrementsStock() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{
		{ProductID: s.widget.ID, Qty: 2},
		{ProductID: s.gadget.ID, Qty: 3},
	})
	s.Require().NoError(err)

	got, err := s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(orders.StatusConfirmed, got.Status)
	s.Equal("350.00", orders.Money(got.Total))
	s.Equal(8, s.stockOf(s.widget.ID))
	s.Equal(2, s.stockOf(s.gadget.ID))

	s.Equal([]string{orders.TopicOrderCreated, orders.TopicOrderConfirmed}, s.events.topics())
	s.Equal(orders.StatusConfirmed, s.cache.m[o.ID])
	s.Equal(1, s.metrics.confirmed)
}

func (s *ServiceSuite) TestConfirmOrder_Twice() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 2}})
	s.Require().NoError(err)
	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)

	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().ErrorIs(err, orders.ErrInvalidRequest)
	s.EqualError(err, "order already confirmed")
	s.Equal(8, s.stockOf(s.widget.ID))
}

func (s *ServiceSuite) TestConfirmOrder_Unknown() {
	_, err := s.svc.ConfirmOrder(s.ctx, 77)
	s.ErrorIs(err, orders.ErrNotFound)
	s.Equal(1, s.metrics.rejected["confirm/not_found"])
}

func (s *ServiceSuite) TestConfirmOrder_StockConsumedAfterCreate() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{
		{ProductID: s.widget.ID, Qty: 2},
		{ProductID: s.gadget.ID, Qty: 4},
	})
	s.Require().NoError(err)

	left := 3
	_, err = s.catalog.UpdateProduct(s.ctx, s.gadget.ID, orders.ProductPatch{Stock: &left})
	s.Require().NoError(err)

	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().ErrorIs(err, orders.ErrInvalidRequest)
	s.EqualError(err, "insufficient stock for product Gadget, available 3, requested 4")

	// the widget line was already decremented inside the unit; it must be rolled back
	s.Equal(10, s.stockOf(s.widget.ID))
	s.Equal(3, s.stockOf(s.gadget.ID))
	got, err := s.svc.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(orders.StatusPending, got.Status)
}

func (s *ServiceSuite) TestConfirmOrder_ExactStock() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.gadget.ID, Qty: 5}})
	s.Require().NoError(err)
	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Zero(s.stockOf(s.gadget.ID))
}

func (s *ServiceSuite) TestConfirmOrder_ProductDeleted() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.gadget.ID, Qty: 2}})
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.DeleteProduct(s.ctx, s.gadget.ID))

	got, err := s.svc.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Items, 1)
	s.Nil(got.Items[0].ProductID)
	s.Equal(2, got.Items[0].Qty)
	s.Equal("50.00", orders.Money(got.Items[0].Price))

	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.ErrorIs(err, orders.ErrNotFound)
}

func (s *ServiceSuite) TestConfirmOrder_RaceForLastUnit() {
	last := s.product("Last", "L-1", "10.00", 1)
	var ids []int64
	for i := 0; i < 8; i++ {
		o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: last.ID, Qty: 1}})
		s.Require().NoError(err)
		ids = append(ids, o.ID)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, lost int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.svc.ConfirmOrder(s.ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, orders.ErrInvalidRequest):
				lost++
			}
		}(id)
	}
	wg.Wait()

	s.Equal(1, ok)
	s.Equal(len(ids)-1, lost)
	s.Zero(s.stockOf(last.ID))
}

func (s *ServiceSuite) TestUpdateOrder() {
	other, err := s.people.CreateCustomer(s.ctx, orders.CustomerInput{Name: "Budi", Email: "budi@example.com"})
	s.Require().NoError(err)
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 1}})
	s.Require().NoError(err)

	got, err := s.svc.UpdateOrder(s.ctx, o.ID, orders.UpdateOrderInput{CustomerID: &other.ID})
	s.Require().NoError(err)
	s.Equal(other.ID, got.CustomerID)
	s.Equal("Budi", got.Customer.Name)
	s.Equal("100.00", orders.Money(got.Total))

	missing := int64(999)
	_, err = s.svc.UpdateOrder(s.ctx, o.ID, orders.UpdateOrderInput{CustomerID: &missing})
	s.ErrorIs(err, orders.ErrNotFound)

	_, err = s.svc.UpdateOrder(s.ctx, 555, orders.UpdateOrderInput{})
	s.ErrorIs(err, orders.ErrNotFound)

	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	_, err = s.svc.UpdateOrder(s.ctx, o.ID, orders.UpdateOrderInput{CustomerID: &s.customer.ID})
	s.Require().ErrorIs(err, orders.ErrInvalidRequest)
	s.EqualError(err, "cannot update a confirmed order")
}

func (s *ServiceSuite) TestDeleteOrder() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 1}})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.DeleteOrder(s.ctx, o.ID))

	_, err = s.svc.GetOrder(s.ctx, o.ID)
	s.ErrorIs(err, orders.ErrNotFound)
	s.NotContains(s.cache.m, o.ID)
	s.Equal([]string{orders.TopicOrderCreated, orders.TopicOrderDeleted}, s.events.topics())

	s.ErrorIs(s.svc.DeleteOrder(s.ctx, o.ID), orders.ErrNotFound)
}

func (s *ServiceSuite) TestDeleteOrder_Confirmed() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 1}})
	s.Require().NoError(err)
	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)

	err = s.svc.DeleteOrder(s.ctx, o.ID)
	s.Require().ErrorIs(err, orders.ErrInvalidRequest)
	s.EqualError(err, "cannot delete a confirmed order")
	s.Equal(1, s.orderCount())
}

func (s *ServiceSuite) TestPublishFailureDoesNotFailWorkflow() {
	s.events.err = errors.New("broker down")
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 1}})
	s.Require().NoError(err)
	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(9, s.stockOf(s.widget.ID))
}

func (s *ServiceSuite) TestEventEnvelope() {
	o, err := s.svc.CreateOrder(s.ctx, s.customer.ID, []orders.ItemInput{{ProductID: s.widget.ID, Qty: 2}})
	s.Require().NoError(err)
	_, err = s.svc.ConfirmOrder(s.ctx, o.ID)
	s.Require().NoError(err)

	s.Require().Len(s.events.got, 2)
	ev := s.events.got[1]
	s.Equal(string(orders.PartitionKey(o.ID)), ev.key)
	s.Equal(orders.EventOrderConfirmed, ev.env.EventType)
	s.Equal("orders-test", ev.env.Producer)
	s.NotEmpty(ev.env.EventID)
	s.JSONEq(`{"order_id":1,"customer_id":1,"items":[{"product_id":1,"qty":2,"remaining_stock":8}],"total":"200.00"}`,
		string(ev.env.Payload))
}

func TestServiceWithoutCollaborators(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := &orders.Service{Store: store}
	cu, err := (&orders.CustomerService{Store: store}).CreateCustomer(ctx, orders.CustomerInput{Name: "A", Email: "a@b.co"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := (&orders.CatalogService{Store: store}).CreateProduct(ctx, orders.ProductInput{
		Name: "P", SKU: "P", Price: decimal.NewFromInt(1), Stock: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	o, err := svc.CreateOrder(ctx, cu.ID, []orders.ItemInput{{ProductID: p.ID, Qty: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmOrder(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteOrder(ctx, o.ID); !errors.Is(err, orders.ErrInvalidRequest) {
		t.Fatalf("delete confirmed: %v", err)
	}
}

func TestCreateOrder_TotalProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := memstore.New()
		svc := &orders.Service{Store: store}
		catalog := &orders.CatalogService{Store: store}
		cu, err := (&orders.CustomerService{Store: store}).CreateCustomer(ctx, orders.CustomerInput{Name: "P", Email: "p@q.io"})
		if err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(1, 6).Draw(t, "lines")
		var (
			items []orders.ItemInput
			cents int64
		)
		for i := 0; i < n; i++ {
			price := rapid.Int64Range(0, 9_999_999).Draw(t, "price_cents")
			qty := rapid.IntRange(1, 50).Draw(t, "qty")
			p, err := catalog.CreateProduct(ctx, orders.ProductInput{
				Name:  "p",
				SKU:   string(rune('a' + i)),
				Price: decimal.New(price, -2),
				Stock: qty,
			})
			if err != nil {
				t.Fatal(err)
			}
			items = append(items, orders.ItemInput{ProductID: p.ID, Qty: qty})
			cents += price * int64(qty)
		}

		o, err := svc.CreateOrder(ctx, cu.ID, items)
		if err != nil {
			t.Fatal(err)
		}
		want := orders.Money(decimal.New(cents, -2))
		if got := orders.Money(o.Total); got != want {
			t.Fatalf("total %s, want %s", got, want)
		}
		var sum decimal.Decimal
		for _, it := range o.Items {
			sum = sum.Add(it.LineTotal())
		}
		if !sum.Equal(o.Total) {
			t.Fatalf("total %s != sum of lines %s", o.Total, sum)
		}
	})
}
