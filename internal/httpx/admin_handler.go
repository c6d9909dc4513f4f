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

// AdminHandler serves the operator paths: order listing, the binding
// confirm step, delivery hand-off and inventory unit management.
// Authentication is the gateway's job, not ours.
type AdminHandler struct {
	Engine   *rental.Service
	Producer Publisher
	Redis    *redis.Client
	Service  string
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Get("/api/admin/orders", h.listOrders)
	r.Post("/api/admin/orders/{id}/confirm", h.confirmOrder)
	r.Post("/api/admin/orders/{id}/delivered", h.markDelivered)
	r.Post("/api/admin/units", h.addUnit)
	r.Get("/api/admin/units", h.listUnits)
	r.Delete("/api/admin/units/{id}", h.deleteUnit)
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Engine.ListOrders(ctx, rental.Status(r.URL.Query().Get("status")), 100)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]orderDetailResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderDetailResp{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			PaymentMode: o.PaymentMode,
			DeliveryFee: o.DeliveryFee,
			TotalDue:    o.TotalDue,
			PlacedAt:    o.PlacedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type confirmResp struct {
	OrderID     int64                         `json:"order_id"`
	OrderNumber string                        `json:"order_number"`
	Status      string                        `json:"status"`
	Units       []rental.AllocatedUnitPayload `json:"units"`
}

func (h *AdminHandler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.Confirm(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, res.Order.ID, res.Order.Status)

	units := allocatedUnitPayloads(res.Units)
	if h.Producer != nil {
		ev := rental.NewEnvelope(rental.EventOrderConfirmed, h.Service, r.Header.Get("X-Request-Id"), res.Order.ID,
			rental.OrderConfirmedPayload{
				OrderID:     res.Order.ID,
				OrderNumber: res.Order.OrderNumber,
				Units:       units,
			})
		h.Producer.Publish(rental.TopicOrderConfirmed, rental.PartitionKey(res.Order.ID), kafkax.MustMarshal(ev))
	}

	writeJSON(w, http.StatusOK, confirmResp{
		OrderID:     res.Order.ID,
		OrderNumber: res.Order.OrderNumber,
		Status:      string(res.Order.Status),
		Units:       units,
	})
}

func allocatedUnitPayloads(units []rental.AllocatedUnit) []rental.AllocatedUnitPayload {
	out := make([]rental.AllocatedUnitPayload, 0, len(units))
	for _, u := range units {
		out = append(out, rental.AllocatedUnitPayload{
			OrderItemID:     u.ItemID,
			ProductID:       u.ProductID,
			InventoryUnitID: u.InventoryUnitID,
			StartDate:       rental.FormatDate(u.StartDate),
			EndDate:         rental.FormatDate(u.EndDate),
		})
	}
	return out
}

func (h *AdminHandler) markDelivered(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.MarkDelivered(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	if h.Producer != nil {
		ev := rental.NewEnvelope(rental.EventOrderDelivered, h.Service, r.Header.Get("X-Request-Id"), o.ID,
			rental.OrderStatusPayload{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: o.Status})
		h.Producer.Publish(rental.TopicOrderDelivered, rental.PartitionKey(o.ID), kafkax.MustMarshal(ev))
	}

	writeJSON(w, http.StatusOK, orderResp{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		TotalDue:    o.TotalDue,
	})
}

type addUnitReq struct {
	ProductID int64 `json:"product_id"`
}

func (h *AdminHandler) addUnit(w http.ResponseWriter, r *http.Request) {
	var req addUnitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Engine.AddUnit(ctx, req.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"unit_id":    u.ID,
		"product_id": u.ProductID,
		"status":     u.Status,
	})
}

func (h *AdminHandler) listUnits(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		writeError(w, &rental.ValidationError{Field: "product_id", Reason: "required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	units, err := h.Engine.ListUnits(ctx, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(units))
	for _, u := range units {
		out = append(out, map[string]any{
			"unit_id":       u.ID,
			"product_id":    u.ProductID,
			"status":        u.Status,
			"active_blocks": u.ActiveBlocks,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) deleteUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Engine.RemoveUnit(ctx, unitID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) cacheStatus(ctx context.Context, orderID int64, status rental.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}
