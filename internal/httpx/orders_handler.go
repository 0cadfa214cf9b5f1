package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/ariefcatur/futura-orders/internal/orders"
)

// StatusCache is the read side of the order status cache. FillStatus must
// not overwrite an existing entry.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID int64) (orders.Status, bool, error)
	FillStatus(ctx context.Context, orderID int64, s orders.Status) (bool, error)
}

// Idempotency backs the Idempotency-Key header on order creation.
type Idempotency interface {
	Claim(ctx context.Context, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Abandon(ctx context.Context, key string) error
}

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Orders *orders.Service
	Status StatusCache
	Idem   Idempotency
}

type createOrderReq struct {
	CustomerID *int64             `json:"customer_id"`
	Items      []orders.ItemInput `json:"items"`
}

type statusResp struct {
	OrderID int64         `json:"order_id"`
	Status  orders.Status `json:"status"`
	Cached  bool          `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/confirm", h.confirmOrder)
	r.Patch("/orders/{id}", h.updateOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.CustomerID == nil {
		badRequest(w, "customer_id is required")
		return
	}
	ctx := r.Context()
	log := logx.FromCtx(ctx)

	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" && h.Idem != nil {
		existing, claimed, err := h.Idem.Claim(ctx, key)
		switch {
		case err != nil:
			// Redis trouble only costs us the dedup, not the request
			log.Warn("idempotency claim", "err", err)
			key = ""
		case !claimed && existing == 0:
			writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "a request with this Idempotency-Key is still in progress"})
			return
		case !claimed:
			o, err := h.Orders.GetOrder(ctx, existing)
			if err != nil {
				writeError(w, r, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, toOrder(o))
			return
		}
	} else {
		key = ""
	}

	o, err := h.Orders.CreateOrder(ctx, *req.CustomerID, req.Items)
	if key != "" {
		if err != nil {
			if aerr := h.Idem.Abandon(ctx, key); aerr != nil {
				log.Warn("idempotency abandon", "err", aerr)
			}
		} else if cerr := h.Idem.Complete(ctx, key, o.ID); cerr != nil {
			// an in-flight marker left behind would refuse every retry until it expires
			log.Warn("idempotency complete", "err", cerr)
			if aerr := h.Idem.Abandon(ctx, key); aerr != nil {
				log.Warn("idempotency abandon", "err", aerr)
			}
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(o))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toOrder))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	o, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ctx := r.Context()

	// 1) cache
	if h.Status != nil {
		s, ok, err := h.Status.GetStatus(ctx, id)
		if err != nil {
			logx.FromCtx(ctx).Warn("status cache read", "order_id", id, "err", err)
		} else if ok {
			writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: s, Cached: true})
			return
		}
	}

	// 2) store
	s, err := h.Orders.OrderStatus(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Status != nil {
		if _, err := h.Status.FillStatus(ctx, id, s); err != nil {
			logx.FromCtx(ctx).Warn("status cache write", "order_id", id, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: s})
}

func (h *OrdersHandler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	o, err := h.Orders.ConfirmOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var in orders.UpdateOrderInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, err.Error())
		return
	}
	o, err := h.Orders.UpdateOrder(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.Orders.DeleteOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
