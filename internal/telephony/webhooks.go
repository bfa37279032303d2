package telephony

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/b00y0h/barberbot/internal/call"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/store"
)

// CallDirectory is the part of call.Manager the webhooks use
type CallDirectory interface {
	HandleStatus(ctx context.Context, sessionID, status string, duration *int) error
	ListActiveCalls() []call.Snapshot
}

// WebhookConfig configures the Twilio webhooks
type WebhookConfig struct {
	PublicBaseURL string // used to rebuild the signed URL
	StreamURL     string // wss URL of the media stream
	AuthToken     string // empty disables signature validation
	AdminKey      string // bearer key for /calls routes; empty disables them
}

// Webhooks serves Twilio voice callbacks and the active call listing
type Webhooks struct {
	cfg       WebhookConfig
	calls     CallDirectory
	dialer    *Dialer
	validator *twilioclient.RequestValidator
	logger    zerolog.Logger
}

// NewWebhooks creates the webhook handlers. dialer may be nil.
func NewWebhooks(cfg WebhookConfig, calls CallDirectory, dialer *Dialer) *Webhooks {
	w := &Webhooks{
		cfg:    cfg,
		calls:  calls,
		dialer: dialer,
		logger: observability.ForComponent("webhooks"),
	}
	if cfg.AuthToken != "" {
		v := twilioclient.NewRequestValidator(cfg.AuthToken)
		w.validator = &v
	} else {
		w.logger.Warn().Msg("TWILIO_AUTH_TOKEN not set, webhook signatures are not validated")
	}
	if cfg.AdminKey == "" {
		w.logger.Warn().Msg("ADMIN_API_KEY not set, /calls routes are disabled")
	}
	return w
}

// Register mounts the handlers on mux
func (w *Webhooks) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /voice/incoming", w.Incoming)
	mux.HandleFunc("POST /voice/status", w.Status)
	mux.HandleFunc("GET /calls/active", w.admin(w.ActiveCalls))
	mux.HandleFunc("POST /calls/outbound", w.admin(w.Outbound))
}

// Incoming answers a new call with TwiML that connects it to the media stream
func (w *Webhooks) Incoming(rw http.ResponseWriter, r *http.Request) {
	params, ok := w.verify(rw, r)
	if !ok {
		return
	}
	w.logger.Info().
		Str("call_sid", params["CallSid"]).
		Str("from", params["From"]).
		Str("to", params["To"]).
		Msg("Incoming call")

	doc, err := streamTwiML(w.cfg.StreamURL, store.DirectionInbound, params["From"])
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to build TwiML")
		http.Error(rw, "internal error", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/xml")
	_, _ = rw.Write([]byte(doc))
}

// Status applies a call status callback
func (w *Webhooks) Status(rw http.ResponseWriter, r *http.Request) {
	params, ok := w.verify(rw, r)
	if !ok {
		return
	}
	callSid := params["CallSid"]
	status := params["CallStatus"]
	w.logger.Info().Str("call_sid", callSid).Str("status", status).Msg("Call status")

	var duration *int
	if raw := params["CallDuration"]; raw != "" {
		if d, err := strconv.Atoi(raw); err == nil {
			duration = &d
		}
	}
	if err := w.calls.HandleStatus(r.Context(), callSid, status, duration); err != nil {
		w.logger.Error().Err(err).Str("call_sid", callSid).Msg("Error handling call status")
	}
	// Twilio retries on non-2xx; a failed bookkeeping write should not cause that
	rw.WriteHeader(http.StatusOK)
}

// ActiveCalls lists calls in progress
func (w *Webhooks) ActiveCalls(rw http.ResponseWriter, r *http.Request) {
	calls := w.calls.ListActiveCalls()
	writeJSON(rw, http.StatusOK, map[string]any{
		"active_calls": len(calls),
		"calls":        calls,
	})
}

type outboundRequest struct {
	To string `json:"to"`
}

// Outbound places a call to the number in the JSON body
func (w *Webhooks) Outbound(rw http.ResponseWriter, r *http.Request) {
	if w.dialer == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "outbound calling is not configured"})
		return
	}
	var req outboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.To) == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "to is required"})
		return
	}

	sid, err := w.dialer.Dial(r.Context(), strings.TrimSpace(req.To))
	if err != nil {
		w.logger.Error().Err(err).Str("to", req.To).Msg("Outbound call failed")
		observability.RecordError("outbound_call_error", "telephony")
		writeJSON(rw, http.StatusBadGateway, map[string]string{"error": "failed to place call"})
		return
	}
	w.logger.Info().Str("call_sid", sid).Str("to", req.To).Msg("Outbound call initiated")
	writeJSON(rw, http.StatusOK, map[string]string{"call_sid": sid})
}

// verify parses the form and checks X-Twilio-Signature when a token is configured
func (w *Webhooks) verify(rw http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(rw, "failed to parse form data", http.StatusBadRequest)
		return nil, false
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if w.validator == nil {
		return params, true
	}
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || !w.validator.Validate(w.requestURL(r), params, signature) {
		w.logger.Warn().Str("path", r.URL.Path).Msg("Invalid Twilio signature")
		observability.RecordError("invalid_signature", "telephony")
		http.Error(rw, "invalid Twilio signature", http.StatusForbidden)
		return nil, false
	}
	return params, true
}

// admin requires "Authorization: Bearer <ADMIN_API_KEY>"
func (w *Webhooks) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if w.cfg.AdminKey == "" {
			writeJSON(rw, http.StatusForbidden, map[string]string{"error": "admin API is not configured"})
			return
		}
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(w.cfg.AdminKey)) != 1 {
			w.logger.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Rejected admin request")
			observability.RecordError("unauthorized_admin", "telephony")
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(rw, r)
	}
}

func (w *Webhooks) requestURL(r *http.Request) string {
	if w.cfg.PublicBaseURL != "" {
		return strings.TrimRight(w.cfg.PublicBaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		observability.RecordError("response_encode_error", "telephony")
	}
}
