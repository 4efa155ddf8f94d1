package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voidKandy/espionox-sub001/internal/agent"
	"github.com/voidKandy/espionox-sub001/internal/dispatch"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/internal/security"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// defaultRecallK is used when a recall request omits k.
const defaultRecallK = 5

type agentJSON struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Mode     string `json:"mode"`
	Thread   string `json:"thread,omitempty"`
}

type messageJSON struct {
	ID             string            `json:"id"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	ModelGenerated bool              `json:"model_generated,omitempty"`
	Kind           string            `json:"kind,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

func toMessageJSON(m message.Message) messageJSON {
	md := m.Metadata()
	return messageJSON{
		ID:             m.ID(),
		Role:           m.Role().String(),
		Content:        m.Content(),
		ModelGenerated: md.ModelGenerated,
		Kind:           string(md.Kind),
		Extra:          md.Extra,
	}
}

type dispatchRequest struct {
	Prompt  string `json:"prompt"`
	Timeout string `json:"timeout,omitempty"`
}

// options validates the request and converts it to dispatch options.
func (req dispatchRequest) options() ([]dispatch.Option, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	if req.Timeout == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(req.Timeout)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid timeout %q", req.Timeout)
	}
	return []dispatch.Option{dispatch.WithTimeout(d)}, nil
}

type observerErrorJSON struct {
	Observer string `json:"observer"`
	Error    string `json:"error"`
}

type dispatchResponse struct {
	Reply          messageJSON         `json:"reply"`
	DurationMS     int64               `json:"duration_ms"`
	ObserverErrors []observerErrorJSON `json:"observer_errors,omitempty"`
}

func toDispatchResponse(res *dispatch.Result) dispatchResponse {
	resp := dispatchResponse{
		Reply:      toMessageJSON(res.Reply),
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, f := range res.ObserverErrors {
		resp.ObserverErrors = append(resp.ObserverErrors, observerErrorJSON{Observer: f.Observer, Error: f.Err.Error()})
	}
	return resp
}

type transcriptResponse struct {
	Agent    string        `json:"agent"`
	Mode     string        `json:"mode"`
	Messages []messageJSON `json:"messages"`
}

type modeRequest struct {
	Mode   string `json:"mode"`
	Thread string `json:"thread,omitempty"`
}

type recallRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type matchJSON struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Content  string  `json:"content"`
	Filepath string  `json:"filepath,omitempty"`
	Score    float32 `json:"score"`
}

// handleListAgents lists configured agents in configuration order.
func (g *Gateway) handleListAgents() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := make([]agentJSON, 0, g.agents.Len())
		for _, name := range g.agents.Names() {
			a, err := g.agents.Get(name)
			if err != nil {
				continue
			}
			mode := a.Memory.Mode()
			out = append(out, agentJSON{
				Name:     a.Name,
				Provider: a.Provider,
				Mode:     mode.String(),
				Thread:   mode.Thread(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleDispatch runs one prompt to completion and returns the reply.
func (g *Gateway) handleDispatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := g.lookupAgent(w, r)
		if !ok {
			return
		}
		var req dispatchRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		opts, err := req.options()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := g.dispatcher.Dispatch(r.Context(), a, req.Prompt, opts...)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDispatchResponse(res))
	}
}

// handleTranscript returns the agent's live transcript.
func (g *Gateway) handleTranscript() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := g.lookupAgent(w, r)
		if !ok {
			return
		}
		msgs := a.Memory.Transcript().Messages()
		resp := transcriptResponse{
			Agent:    a.Name,
			Mode:     a.Memory.Mode().String(),
			Messages: make([]messageJSON, len(msgs)),
		}
		for i, m := range msgs {
			resp.Messages[i] = toMessageJSON(m)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSwitchMode changes the agent's memory mode.
func (g *Gateway) handleSwitchMode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := g.lookupAgent(w, r)
		if !ok {
			return
		}
		var req modeRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		if req.Mode == "" {
			writeError(w, http.StatusBadRequest, "mode is required")
			return
		}
		mode, err := memory.ParseMode(req.Mode, req.Thread)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := g.dispatcher.Switch(r.Context(), a, mode); err != nil {
			writeDispatchError(w, err)
			return
		}
		g.auditAgent(security.EventModeSwitch, r, a, "")
		writeJSON(w, http.StatusOK, agentJSON{
			Name:     a.Name,
			Provider: a.Provider,
			Mode:     mode.String(),
			Thread:   mode.Thread(),
		})
	}
}

// handleRecall returns the stored summaries closest to a query.
func (g *Gateway) handleRecall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := g.lookupAgent(w, r)
		if !ok {
			return
		}
		var req recallRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		k := req.K
		if k <= 0 {
			k = defaultRecallK
		}

		matches, err := g.dispatcher.Recall(r.Context(), a, req.Query, k)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		g.auditAgent(security.EventRecall, r, a, fmt.Sprintf("k=%d matches=%d", k, len(matches)))

		out := make([]matchJSON, len(matches))
		for i, m := range matches {
			out[i] = matchJSON{
				ID:       m.Summary.ID,
				Kind:     string(m.Summary.Kind),
				Content:  m.Summary.Content,
				Filepath: m.Summary.Filepath,
				Score:    m.Score,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// lookupAgent resolves the {agent} URL parameter, writing a 404 when it is
// unknown.
func (g *Gateway) lookupAgent(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	a, err := g.agents.Get(chi.URLParam(r, "agent"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return a, true
}

// decodeBody reads a bounded JSON body into v. On failure it writes the
// response and returns false.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := g.config.MaxBodyBytes
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := security.ValidateBodySize(data, limit); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return false
	}
	if err := security.ValidateJSONDepth(data, 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (g *Gateway) auditAgent(t security.EventType, r *http.Request, a *agent.Agent, detail string) {
	if g.audit == nil {
		return
	}
	mode := a.Memory.Mode()
	_ = g.audit.Log(security.AuditEvent{
		Type:   t,
		Agent:  a.Name,
		Thread: mode.Thread(),
		Mode:   mode.String(),
		Remote: r.RemoteAddr,
		Detail: detail,
	})
}
