package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/dispatch"
	"github.com/voidKandy/espionox-sub001/internal/provider"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a dispatcher error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrRateLimit):
		return http.StatusTooManyRequests
	}
	switch dispatch.KindOf(err) {
	case dispatch.KindModeMismatch:
		return http.StatusConflict
	case dispatch.KindTransport, dispatch.KindDecode:
		return http.StatusBadGateway
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	case dispatch.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDispatchError writes err with its status and kind.
func writeDispatchError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var de *dispatch.Error
	if errors.As(err, &de) {
		resp.Kind = de.Kind.String()
	}
	writeJSON(w, statusFor(err), resp)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
