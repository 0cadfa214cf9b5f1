package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/shopspring/decimal"
)

// StatusCache keeps a read-through copy of order status (Redis in production).
type StatusCache interface {
	SetStatus(ctx context.Context, orderID int64, s Status) error
	DropStatus(ctx context.Context, orderID int64) error
}

// Recorder receives workflow outcomes for metrics.
type Recorder interface {
	OrderCreated()
	OrderConfirmed(d time.Duration)
	OrderRejected(op, reason string)
}

// Service is the order workflow engine. Store is required; everything else
// may be nil.
type Service struct {
	Store       Store
	Events      Publisher
	Cache       StatusCache
	Metrics     Recorder
	ServiceName string
}

func (s *Service) CreateOrder(ctx context.Context, customerID int64, items []ItemInput) (Order, error) {
	log := logx.FromCtx(ctx)

	o, err := s.createOrder(ctx, customerID, items)
	if err != nil {
		s.rejected(ctx, "create", err)
		return Order{}, err
	}
	log.Info("order created", "order_id", o.ID, "customer_id", o.CustomerID, "total", Money(o.Total))

	if s.Metrics != nil {
		s.Metrics.OrderCreated()
	}
	s.cacheStatus(ctx, o.ID, o.Status)

	lines := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, ItemPrice{ProductID: productIDOf(it), Qty: it.Qty, Price: Money(it.Price)})
	}
	s.publish(ctx, TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID, CustomerID: o.CustomerID, Items: lines, Total: Money(o.Total),
	})
	return o, nil
}

func (s *Service) createOrder(ctx context.Context, customerID int64, items []ItemInput) (Order, error) {
	if len(items) == 0 {
		return Order{}, invalid("order must contain at least one item")
	}
	for _, it := range items {
		if it.Qty < 1 {
			return Order{}, invalid("qty for product %d must be at least 1", it.ProductID)
		}
	}

	var out Order
	err := s.Store.InTx(ctx, func(tx Store) error {
		if _, err := tx.CustomerByID(ctx, customerID); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("customer %d not found", customerID)
			}
			return fmt.Errorf("load customer: %w", err)
		}

		ids := distinctProductIDs(items)
		products, err := tx.ProductsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		if len(products) != len(ids) {
			return notFound("one or more products not found")
		}
		byID := make(map[int64]Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		// Each line is checked on its own against the current stock.
		o := Order{CustomerID: customerID, Status: StatusPending, Total: decimal.Zero}
		for _, in := range items {
			p := byID[in.ProductID]
			if p.Stock < in.Qty {
				return insufficientStock(p, in.Qty)
			}
			pid := p.ID
			it := OrderItem{ProductID: &pid, Qty: in.Qty, Price: p.Price}
			o.Total = o.Total.Add(it.LineTotal())
			o.Items = append(o.Items, it)
		}
		if o.Total.GreaterThan(MaxOrderTotal) {
			return invalid("order total %s exceeds the maximum of %s", Money(o.Total), Money(MaxOrderTotal))
		}

		if err := tx.InsertOrder(ctx, &o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		out, err = tx.OrderByID(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("reload order %d: %w", o.ID, err)
		}
		return nil
	})
	return out, err
}

// ConfirmOrder decrements stock for every item and moves the order to
// CONFIRMED. Either all of it happens or none of it.
func (s *Service) ConfirmOrder(ctx context.Context, orderID int64) (Order, error) {
	start := time.Now()
	log := logx.FromCtx(ctx)

	var (
		out       Order
		remaining []ItemStock
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		remaining = remaining[:0]

		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("order %d not found", orderID)
			}
			return fmt.Errorf("load order: %w", err)
		}
		if !CanTransition(o.Status, StatusConfirmed) {
			return invalid("order already confirmed")
		}

		for _, it := range o.Items {
			if it.ProductID == nil {
				return notFound("order item %d has no product", it.ID)
			}
			p, err := tx.ProductByID(ctx, *it.ProductID)
			if err != nil {
				if errors.Is(err, ErrNoRecord) {
					return notFound("product %d not found", *it.ProductID)
				}
				return fmt.Errorf("load product: %w", err)
			}
			if p.Stock < it.Qty {
				return insufficientStock(p, it.Qty)
			}
			left, ok, err := tx.DecrementStock(ctx, p.ID, it.Qty)
			if err != nil {
				return fmt.Errorf("decrement stock of product %d: %w", p.ID, err)
			}
			if !ok {
				// someone else took the units between the read and the update
				p.Stock = left
				return insufficientStock(p, it.Qty)
			}
			remaining = append(remaining, ItemStock{ProductID: p.ID, Qty: it.Qty, RemainingStock: left})
		}

		ok, err := tx.MarkConfirmed(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("mark confirmed: %w", err)
		}
		if !ok {
			return invalid("order already confirmed")
		}

		out, err = tx.OrderByID(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("reload order %d: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		s.rejected(ctx, "confirm", err)
		return Order{}, err
	}

	log.Info("order confirmed", "order_id", out.ID, "items", len(out.Items))
	if s.Metrics != nil {
		s.Metrics.OrderConfirmed(time.Since(start))
	}
	s.cacheStatus(ctx, out.ID, out.Status)
	s.publish(ctx, TopicOrderConfirmed, EventOrderConfirmed, out.ID, OrderConfirmedPayload{
		OrderID: out.ID, CustomerID: out.CustomerID, Items: remaining, Total: Money(out.Total),
	})
	return out, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := s.Store.OrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return Order{}, notFound("order %d not found", id)
		}
		return Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	list, err := s.Store.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// OrderStatus is the uncached status lookup behind the status cache.
func (s *Service) OrderStatus(ctx context.Context, id int64) (Status, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// UpdateOrder changes order metadata only. Items, prices and total are
// never touched and stock is not re-validated.
func (s *Service) UpdateOrder(ctx context.Context, id int64, in UpdateOrderInput) (Order, error) {
	var out Order
	err := s.Store.InTx(ctx, func(tx Store) error {
		o, err := tx.OrderByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("order %d not found", id)
			}
			return fmt.Errorf("load order: %w", err)
		}
		if o.Status.Terminal() {
			return invalid("cannot update a confirmed order")
		}
		if in.CustomerID != nil && *in.CustomerID != o.CustomerID {
			if _, err := tx.CustomerByID(ctx, *in.CustomerID); err != nil {
				if errors.Is(err, ErrNoRecord) {
					return notFound("customer %d not found", *in.CustomerID)
				}
				return fmt.Errorf("load customer: %w", err)
			}
			if err := tx.SetOrderCustomer(ctx, id, *in.CustomerID); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
		}
		out, err = tx.OrderByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload order %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		s.rejected(ctx, "update", err)
		return Order{}, err
	}
	return out, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	err := s.Store.InTx(ctx, func(tx Store) error {
		o, err := tx.OrderByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("order %d not found", id)
			}
			return fmt.Errorf("load order: %w", err)
		}
		if o.Status.Terminal() {
			return invalid("cannot delete a confirmed order")
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		s.rejected(ctx, "delete", err)
		return err
	}

	logx.FromCtx(ctx).Info("order deleted", "order_id", id)
	if s.Cache != nil {
		if err := s.Cache.DropStatus(ctx, id); err != nil {
			logx.FromCtx(ctx).Warn("drop cached status", "order_id", id, "err", err)
		}
	}
	s.publish(ctx, TopicOrderDeleted, EventOrderDeleted, id, OrderDeletedPayload{OrderID: id})
	return nil
}

func (s *Service) rejected(ctx context.Context, op string, err error) {
	reason := Reason(err)
	log := logx.FromCtx(ctx)
	if reason == "error" {
		log.Error("order "+op+" failed", "err", err)
	} else {
		log.Warn("order "+op+" rejected", "reason", reason, "err", err)
	}
	if s.Metrics != nil {
		s.Metrics.OrderRejected(op, reason)
	}
}

func (s *Service) cacheStatus(ctx context.Context, id int64, st Status) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.SetStatus(ctx, id, st); err != nil {
		logx.FromCtx(ctx).Warn("cache order status", "order_id", id, "err", err)
	}
}

// publish runs after commit; a failed publish is logged and otherwise ignored.
func (s *Service) publish(ctx context.Context, topic, eventType string, orderID int64, payload any) {
	if s.Events == nil {
		return
	}
	log := logx.FromCtx(ctx)
	env, err := NewEnvelope(eventType, s.ServiceName, logx.RequestID(ctx), orderID, payload)
	if err != nil {
		log.Error("build event", "event_type", eventType, "err", err)
		return
	}
	if err := s.Events.Publish(ctx, topic, PartitionKey(orderID), env); err != nil {
		log.Error("publish event", "event_type", eventType, "order_id", orderID, "err", err)
	}
}

// Reason names the kind of err for logs and metric labels.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func distinctProductIDs(items []ItemInput) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

func productIDOf(it OrderItem) int64 {
	if it.ProductID == nil {
		return 0
	}
	return *it.ProductID
}
