package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	internal "github.com/eventtix/multisafepay-provider/internal"
	"github.com/eventtix/multisafepay-provider/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.L()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a plain error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorResp := map[string]interface{}{
		"code":    status,
		"message": message,
	}

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		h.Logger.Error("failed to encode error response", "error", err)
	}
}

// HandleError maps an application error to its HTTP shape. Unknown error
// types become an opaque 500.
func (h *BaseHandler) HandleError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		status, body := appErr.ToHTTPResponse()
		if appErr.Type == internal.ErrorTypeInternal {
			h.Logger.Error("internal error", "error", appErr.Error())
		}
		h.WriteJSON(w, status, body)
		return
	}

	h.Logger.Error("unhandled error", "error", err)
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}

// HandleServiceError is HandleError with request context for the log line.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	h.HandleError(w, err)
}
