package payment

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/eventtix/multisafepay-provider/internal/transport"
)

// WebhookHandler receives the gateway's asynchronous notifications and the
// payer's synchronous return hop. Both are thin: validation here, state
// logic in the service.
type WebhookHandler struct {
	*transport.BaseHandler
	service *Service
	logger  *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, service *Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		service:     service,
		logger:      logger,
	}
}

type callbackResponse struct {
	Status string `json:"status"`
}

// HandleWebhook processes POST /webhooks/multisafepay/{payment}/{action}.
// The gateway retries until it sees a 2xx, so duplicate deliveries are
// normal here.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "payment"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid payment id")
		return
	}
	action := chi.URLParam(r, "action")

	h.logger.Info("received gateway notification",
		"payment_id", paymentID,
		"action", action)

	if err := h.service.HandleCallback(r.Context(), paymentID, action); err != nil {
		h.logger.Error("failed to process gateway notification",
			"error", err,
			"payment_id", paymentID,
			"action", action)
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, callbackResponse{Status: "ok"})
}

// HandleReturn processes GET /return/{order}/{payment}/{hash}: the browser
// coming back from the gateway. The hash only proves the caller knows the
// order secret; the authoritative state change still arrives by webhook.
func (h *WebhookHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	orderCode := chi.URLParam(r, "order")
	hash := chi.URLParam(r, "hash")

	paymentID, err := strconv.ParseInt(chi.URLParam(r, "payment"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	p, err := h.service.repo.GetPayment(paymentID)
	if err != nil || p.OrderCode != orderCode {
		h.logger.Warn("return request for unknown payment",
			"payment_id", paymentID,
			"order_code", orderCode)
		h.WriteError(w, http.StatusNotFound, "payment not found")
		return
	}

	expected := ReturnHash(p.OrderSecret)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(expected)) != 1 {
		h.logger.Warn("return request with bad hash",
			"payment_id", paymentID,
			"order_code", orderCode)
		h.WriteError(w, http.StatusForbidden, "invalid hash")
		return
	}

	// Hand the payer back to the order page; the webhook decides the state.
	http.Redirect(w, r, fmt.Sprintf("/order/%s", orderCode), http.StatusFound)
}
