package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/dispatch"
)

// Stream frame types.
const (
	frameDelta = "delta"
	frameDone  = "done"
	frameError = "error"
)

// streamFrame is one server-to-client websocket message.
type streamFrame struct {
	Type    string            `json:"type"`
	Content string            `json:"content,omitempty"`
	Result  *dispatchResponse `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Status  int               `json:"status,omitempty"`
}

// handleStream upgrades to a websocket. Each client frame is a dispatch
// request; the server answers with delta frames followed by one done or
// error frame. Requests on one connection run one at a time.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := g.lookupAgent(w, r)
		if !ok {
			return
		}

		// Server read and write timeouts must not cut a long-lived socket.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.config.OriginPatterns,
		})
		if err != nil {
			g.logger.Warn("stream: websocket accept failed", "agent", a.Name, "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()
		conn.SetReadLimit(int64(g.config.MaxBodyBytes))

		ctx := r.Context()
		for {
			var req dispatchRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					g.logger.Debug("stream: read ended", "agent", a.Name, "error", err)
				}
				return
			}

			opts, err := req.options()
			if err != nil {
				if werr := wsjson.Write(ctx, conn, streamFrame{Type: frameError, Error: err.Error(), Status: http.StatusBadRequest}); werr != nil {
					return
				}
				continue
			}
			if !g.streamOne(ctx, conn, a, req.Prompt, opts) {
				return
			}
		}
	}
}

// streamOne runs a single dispatch and reports false when the connection
// can no longer be written to.
func (g *Gateway) streamOne(ctx context.Context, conn *websocket.Conn, a *agent.Agent, prompt string, opts []dispatch.Option) bool {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	opts = append(opts, dispatch.OnDelta(func(delta string) {
		if writeErr != nil {
			return
		}
		if writeErr = wsjson.Write(dctx, conn, streamFrame{Type: frameDelta, Content: delta}); writeErr != nil {
			cancel()
		}
	}))

	res, err := g.dispatcher.Dispatch(dctx, a, prompt, opts...)
	if writeErr != nil {
		g.logger.Debug("stream: client went away", "agent", a.Name, "error", writeErr)
		return false
	}
	if err != nil {
		frame := streamFrame{Type: frameError, Error: err.Error(), Status: statusFor(err)}
		var de *dispatch.Error
		if errors.As(err, &de) {
			frame.Kind = de.Kind.String()
		}
		return wsjson.Write(ctx, conn, frame) == nil
	}

	resp := toDispatchResponse(res)
	return wsjson.Write(ctx, conn, streamFrame{Type: frameDone, Result: &resp}) == nil
}
