// Package gateway terminates client HTTP and relays each route as a broker
// command, waiting for the service reply and translating its status code
// back into the HTTP response.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

// Requester is the slice of mq.Requester the gateway needs; tests supply a
// fake.
type Requester interface {
	Do(ctx context.Context, topic, name, idempotencyKey string, payload interface{}) (mq.Reply, error)
}

// ErrorEnvelope is the uniform error body for every non-2xx response.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Message    string `json:"message"`
}

type Handler struct {
	rpc     Requester
	timeout time.Duration
	now     func() time.Time
}

func NewHandler(rpc Requester, timeout time.Duration) *Handler {
	return &Handler{rpc: rpc, timeout: timeout, now: time.Now}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Orders.
	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.updateOrderStatus)
	mux.HandleFunc("POST /orders/{id}/payments", h.addPaymentRecord)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("GET /orders", h.listOrders)

	// Inventory.
	mux.HandleFunc("POST /inventory", h.createInventory)
	mux.HandleFunc("PATCH /inventory/{id}", h.updateInventory)
	mux.HandleFunc("POST /inventory/{id}/add", h.stockOp("add_stock"))
	mux.HandleFunc("POST /inventory/{id}/reduce", h.stockOp("reduce_stock"))
	mux.HandleFunc("POST /inventory/{id}/reserve", h.stockOp("reserve_stock"))
	mux.HandleFunc("POST /inventory/{id}/release", h.stockOp("release_stock"))
	mux.HandleFunc("GET /inventory/{id}", h.getInventory)
	mux.HandleFunc("GET /inventory", h.listInventory)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.relay(w, r, constants.OrderCommandsTopic, "create_order", payload, true)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}
	payload["orderId"] = r.PathValue("id")
	h.relay(w, r, constants.OrderCommandsTopic, "cancel_order", payload, true)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}
	payload["orderId"] = r.PathValue("id")
	h.relay(w, r, constants.OrderCommandsTopic, "update_order_status", payload, true)
}

func (h *Handler) addPaymentRecord(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}
	payload["orderId"] = r.PathValue("id")
	h.relay(w, r, constants.OrderCommandsTopic, "add_payment_record", payload, true)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{"orderId": r.PathValue("id")}
	h.relay(w, r, constants.OrderCommandsTopic, "get_order_by_id", payload, false)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("userId"); userID != "" {
		h.relay(w, r, constants.OrderCommandsTopic, "get_user_orders", map[string]interface{}{"userId": userID}, false)
		return
	}
	h.relay(w, r, constants.OrderCommandsTopic, "get_all_orders", map[string]interface{}{}, false)
}

func (h *Handler) createInventory(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.relay(w, r, constants.InventoryCommandsTopic, "create_inventory", payload, true)
}

func (h *Handler) updateInventory(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}
	payload["productId"] = r.PathValue("id")
	h.relay(w, r, constants.InventoryCommandsTopic, "update_inventory", payload, true)
}

func (h *Handler) stockOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := h.readBody(w, r)
		if !ok {
			return
		}
		payload["productId"] = r.PathValue("id")
		h.relay(w, r, constants.InventoryCommandsTopic, op, payload, true)
	}
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{"productId": r.PathValue("id")}
	h.relay(w, r, constants.InventoryCommandsTopic, "get_inventory_for_product", payload, false)
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, constants.InventoryCommandsTopic, "get_available_products", map[string]interface{}{}, false)
}

// readBody decodes the request body into a map so path parameters can be
// merged in. An empty body is treated as an empty object.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	payload := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
			return nil, false
		}
	}
	return payload, true
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, topic, op string, payload map[string]interface{}, mutating bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var key string
	if mutating {
		key = r.Header.Get("Idempotency-Key")
		if key == "" {
			key = autoKey(op, r.URL.Path, payload)
		}
	}

	reply, err := h.rpc.Do(ctx, topic, op, key, payload)
	if err != nil {
		if errors.Is(err, mq.ErrReplyTimeout) {
			h.writeError(w, http.StatusGatewayTimeout, "upstream service did not answer in time")
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("command", op).Msg("relay failed")
		h.writeError(w, http.StatusBadGateway, "upstream service unreachable")
		return
	}

	if reply.StatusCode >= 400 {
		h.writeError(w, reply.StatusCode, reply.Message)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.StatusCode)
	if len(reply.Payload) > 0 {
		w.Write(reply.Payload)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorEnvelope{
		StatusCode: code,
		Timestamp:  h.now().UTC().Format(time.RFC3339),
		Message:    message,
	})
}

// autoKey derives a deterministic idempotency key for clients that sent
// none: the same route and payload always map to the same key, so blind
// retries of an identical request deduplicate naturally. Map marshalling
// sorts keys, keeping the digest stable across retries.
func autoKey(op, route string, payload map[string]interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(route)
	}
	sum := sha256.Sum256(append([]byte(route+"\n"), raw...))
	return "auto-" + strings.ReplaceAll(op, "_", "-") + "-" + hex.EncodeToString(sum[:])
}
