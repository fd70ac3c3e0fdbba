package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/internal/routing"
)

type stubEngine struct {
	reply     *routing.Reply
	err       error
	lastEvent routing.InboundEvent
}

func (e *stubEngine) Handle(ctx context.Context, event routing.InboundEvent) (*routing.Reply, error) {
	e.lastEvent = event
	return e.reply, e.err
}

func newWebhookHandler(engine *stubEngine) *WebhookHandler {
	return NewWebhookHandler(engine, nil, metrics.NewGatewayMetrics(prometheus.NewRegistry()))
}

func TestHandleChatReturnsReply(t *testing.T) {
	engine := &stubEngine{reply: &routing.Reply{Message: "hi!", State: routing.StateAwaitingTenantSelection}}
	h := newWebhookHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat",
		strings.NewReader(`{"session_id":"s1","text":"hello"}`))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		State     string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.SessionID != "s1" || body.Message != "hi!" {
		t.Errorf("unexpected body: %+v", body)
	}
	if engine.lastEvent.Channel != routing.ChannelChat {
		t.Errorf("channel = %s, want chat", engine.lastEvent.Channel)
	}
}

func TestHandleVoiceCarriesTelephonyIdentity(t *testing.T) {
	engine := &stubEngine{reply: &routing.Reply{Message: "ok", State: routing.StateInTenantConversation}}
	h := newWebhookHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice",
		strings.NewReader(`{"session_id":"s1","text":"hi","called_number":"+37129998877","caller_number":"+37120000001","extension":"4821"}`))
	rec := httptest.NewRecorder()
	h.HandleVoice(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	evt := engine.lastEvent
	if evt.Channel != routing.ChannelVoice || evt.CalledNumber != "+37129998877" || evt.Extension != "4821" {
		t.Errorf("identity fields not forwarded: %+v", evt)
	}
}

func TestMissingSessionIDGetsGenerated(t *testing.T) {
	engine := &stubEngine{reply: &routing.Reply{Message: "ok", State: routing.StateAwaitingTenantSelection}}
	h := newWebhookHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if engine.lastEvent.SessionID == "" {
		t.Error("expected a generated session id")
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.SessionID != engine.lastEvent.SessionID {
		t.Error("response must echo the session id used")
	}
}

func TestEmptyTextRejected(t *testing.T) {
	h := newWebhookHandler(&stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(`{"session_id":"s1","text":"  "}`))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	h := newWebhookHandler(&stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
