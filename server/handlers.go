package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/corecraft-support/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	qstashx "github.com/tanpawarit/corecraft-support/pkg/qstash"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("server: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe counts requests by route template and logs them.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		log.Debug().Str("method", r.Method).Str("route", route).Int("status", rec.status).Msg("server: request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	Text       string `json:"text"`
	CustomerID string `json:"customer_id,omitempty"`
}

type messageResponse struct {
	SessionID  string   `json:"session_id"`
	Reply      string   `json:"reply"`
	GoalID     string   `json:"goal_id,omitempty"`
	GoalType   string   `json:"goal_type,omitempty"`
	GoalStatus string   `json:"goal_status,omitempty"`
	ToolCalls  []string `json:"tool_calls,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	out, err := s.chat.Handle(r.Context(), orchestratorx.Input{
		SessionID:  sessionID,
		CustomerID: req.CustomerID,
		Text:       req.Text,
	})
	if err != nil {
		writeError(w, chatErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		SessionID:  sessionID,
		Reply:      out.Reply,
		GoalID:     out.GoalID,
		GoalType:   out.GoalType,
		GoalStatus: out.GoalStatus,
		ToolCalls:  out.ToolCalls,
	})
}

func chatErrorStatus(err error) int {
	switch {
	case errors.Is(err, orchestratorx.ErrInvalidSession),
		errors.Is(err, orchestratorx.ErrInvalidMessage),
		errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, contractx.ErrModelInvoke),
		errors.Is(err, contractx.ErrSchemaViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requireStaff rejects requests without the configured bearer token.
func (s *Server) requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.StaffToken == "" {
			writeError(w, http.StatusForbidden, "staff tool access is disabled")
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.StaffToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid staff token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentType := contractx.AgentType(vars["agent"])
	switch agentType {
	case contractx.AgentTypeSales, contractx.AgentTypeSupport, contractx.AgentTypeStaff:
	default:
		writeError(w, http.StatusNotFound, "unknown agent "+vars["agent"])
		return
	}

	args := map[string]any{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			writeError(w, http.StatusBadRequest, "arguments must be a JSON object")
			return
		}
	}

	res, err := s.tools.ExecuteOne(r.Context(), agentType, contractx.ToolRequest{Tool: vars["tool"], Args: args})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	switch {
	case len(res.Denials) > 0:
		status = http.StatusUnprocessableEntity
	case res.Error != "":
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

// callbackReport is the delivery report QStash posts after calling a destination.
type callbackReport struct {
	SourceMessageID string `json:"sourceMessageId"`
	URL             string `json:"url"`
	Status          int    `json:"status"`
	Retried         int    `json:"retried"`
}

func (s *Server) handleNotificationCallback(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		writeError(w, http.StatusNotFound, "notifications are disabled")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.verifier.Verify(r.Header.Get(qstashx.SignatureHeader), body, s.cfg.CallbackURL); err != nil {
		log.Warn().Err(err).Msg("server: rejected notification callback")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var report callbackReport
	if err := json.Unmarshal(body, &report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback body")
		return
	}
	ev := log.Info()
	if report.Status >= 300 {
		ev = log.Warn()
	}
	ev.Str("message_id", report.SourceMessageID).
		Str("destination", report.URL).
		Int("status", report.Status).
		Int("retried", report.Retried).
		Msg("server: notification delivered")
	w.WriteHeader(http.StatusNoContent)
}
