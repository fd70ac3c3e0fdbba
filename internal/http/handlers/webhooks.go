// Package handlers holds the HTTP entry points: channel webhooks for the
// routing engine and operator endpoints for number management.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/internal/routing"
	"github.com/xonelabs/xonebot/pkg/logging"
)

type conversationEngine interface {
	Handle(ctx context.Context, event routing.InboundEvent) (*routing.Reply, error)
}

// WebhookHandler receives inbound events from the delivery channels and
// feeds them to the routing engine.
type WebhookHandler struct {
	engine  conversationEngine
	logger  *logging.Logger
	metrics *metrics.GatewayMetrics
}

func NewWebhookHandler(engine conversationEngine, logger *logging.Logger, m *metrics.GatewayMetrics) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{engine: engine, logger: logger, metrics: m}
}

// webhookPayload is the wire shape shared by all channels. Voice webhooks
// carry transcribed text; chat and WhatsApp carry the raw message.
type webhookPayload struct {
	SessionID    string `json:"session_id"`
	Text         string `json:"text"`
	CalledNumber string `json:"called_number"`
	CallerNumber string `json:"caller_number"`
	Extension    string `json:"extension"`
}

// HandleVoice processes inbound voice events.
func (h *WebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, routing.ChannelVoice)
}

// HandleChat processes inbound web chat messages.
func (h *WebhookHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, routing.ChannelChat)
}

// HandleWhatsApp processes inbound WhatsApp messages.
func (h *WebhookHandler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, routing.ChannelWhatsApp)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, channel routing.Channel) {
	start := time.Now()

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	// A caller-supplied session id keeps the conversation across webhooks;
	// a fresh one starts a new session.
	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := h.engine.Handle(r.Context(), routing.InboundEvent{
		SessionID:    sessionID,
		Text:         payload.Text,
		Channel:      channel,
		CalledNumber: payload.CalledNumber,
		CallerNumber: payload.CallerNumber,
		Extension:    payload.Extension,
	})
	if err != nil {
		h.logger.Error("inbound event handling failed", "channel", string(channel), "session_id", sessionID, "error", err)
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWebhookLatency(string(channel), time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, struct {
		SessionID string `json:"session_id"`
		*routing.Reply
	}{SessionID: sessionID, Reply: reply})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
