package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	kafkax "github.com/infoanil/toy-rental-service/internal/kafka"
	"github.com/infoanil/toy-rental-service/internal/redisx"
	"github.com/infoanil/toy-rental-service/internal/rental"
)

// OrdersHandler serves the customer-facing paths: availability, checkout,
// order queries, cancellation. Redis and Producer may be nil (tests); the
// store stays the source of truth either way.
type OrdersHandler struct {
	Engine   *rental.Service
	Producer Publisher
	Redis    *redis.Client
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/api/products/{id}/availability", h.checkAvailability)
	r.Post("/api/orders", h.placeOrder)
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Post("/api/orders/{id}/cancel", h.cancelOrder)
}

type availabilityResp struct {
	ProductID  int64  `json:"product_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	BufferDays int    `json:"buffer_days"`
	Available  bool   `json:"available"`
}

func (h *OrdersHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	startStr := r.URL.Query().Get("start")
	if startStr == "" {
		writeError(w, &rental.ValidationError{Field: "start", Reason: "required"})
		return
	}
	start, err := rental.ParseDate(startStr)
	if err != nil {
		writeError(w, &rental.ValidationError{Field: "start", Reason: "want YYYY-MM-DD"})
		return
	}
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		if days, err = strconv.Atoi(d); err != nil {
			writeError(w, &rental.ValidationError{Field: "days", Reason: "not a number"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	av, err := h.Engine.CheckAvailability(ctx, productID, start, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResp{
		ProductID:  av.ProductID,
		StartDate:  rental.FormatDate(av.StartDate),
		EndDate:    rental.FormatDate(av.EndDate),
		BufferDays: av.BufferDays,
		Available:  av.Available,
	})
}

type placeOrderItemReq struct {
	ProductID int64  `json:"product_id"`
	PlanID    int64  `json:"plan_id"`
	StartDate string `json:"start_date"`
}

type placeOrderReq struct {
	UserID    int64               `json:"user_id"`
	AddressID *int64              `json:"address_id,omitempty"`
	Items     []placeOrderItemReq `json:"items"`
}

type orderResp struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	TotalDue    int    `json:"total_due"`
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	preq := rental.PlaceOrderRequest{UserID: req.UserID, AddressID: req.AddressID}
	for _, it := range req.Items {
		start, err := rental.ParseDate(it.StartDate)
		if err != nil {
			writeError(w, &rental.ValidationError{Field: "start_date", Reason: "want YYYY-MM-DD"})
			return
		}
		preq.Items = append(preq.Items, rental.PlaceOrderItem{
			ProductID: it.ProductID,
			PlanID:    it.PlanID,
			StartDate: start,
		})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, items, err := h.Engine.PlaceOrder(ctx, preq)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	h.publishPlaced(r, o, items)

	writeJSON(w, http.StatusCreated, orderResp{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		TotalDue:    o.TotalDue,
	})
}

type orderItemResp struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	PlanID          int64  `json:"plan_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	ItemPrice       int    `json:"item_price"`
	InventoryUnitID *int64 `json:"inventory_unit_id,omitempty"`
}

type orderDetailResp struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	PaymentMode string          `json:"payment_mode"`
	DeliveryFee int             `json:"delivery_fee"`
	TotalDue    int             `json:"total_due"`
	PlacedAt    time.Time       `json:"placed_at"`
	Items       []orderItemResp `json:"items"`
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, items, err := h.Engine.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := orderDetailResp{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		PaymentMode: o.PaymentMode,
		DeliveryFee: o.DeliveryFee,
		TotalDue:    o.TotalDue,
		PlacedAt:    o.PlacedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResp{
			ID:              it.ID,
			ProductID:       it.ProductID,
			PlanID:          it.PlanID,
			StartDate:       rental.FormatDate(it.StartDate),
			EndDate:         rental.FormatDate(it.EndDate),
			ItemPrice:       it.ItemPrice,
			InventoryUnitID: it.InventoryUnitID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, &rental.ValidationError{Field: "user_id", Reason: "required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Engine.ListUserOrders(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResp{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			TotalDue:    o.TotalDue,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.Cancel(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	h.publishStatus(r, rental.EventOrderCancelled, rental.TopicOrderCancelled, o)

	writeJSON(w, http.StatusOK, orderResp{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		TotalDue:    o.TotalDue,
	})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID int64, status rental.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publishPlaced(r *http.Request, o rental.Order, items []rental.OrderItem) {
	if h.Producer == nil {
		return
	}
	payload := rental.OrderPlacedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		TotalDue:    o.TotalDue,
	}
	for _, it := range items {
		payload.Items = append(payload.Items, rental.PlacedItem{
			ProductID: it.ProductID,
			PlanID:    it.PlanID,
			StartDate: rental.FormatDate(it.StartDate),
			EndDate:   rental.FormatDate(it.EndDate),
			ItemPrice: it.ItemPrice,
		})
	}
	ev := rental.NewEnvelope(rental.EventOrderPlaced, h.Service, r.Header.Get("X-Request-Id"), o.ID, payload)
	h.Producer.Publish(rental.TopicOrderPlaced, rental.PartitionKey(o.ID), kafkax.MustMarshal(ev))
}

func (h *OrdersHandler) publishStatus(r *http.Request, eventType, topic string, o rental.Order) {
	if h.Producer == nil {
		return
	}
	ev := rental.NewEnvelope(eventType, h.Service, r.Header.Get("X-Request-Id"), o.ID, rental.OrderStatusPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
	})
	h.Producer.Publish(topic, rental.PartitionKey(o.ID), kafkax.MustMarshal(ev))
}
