package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xonelabs/xonebot/internal/carrier"
	"github.com/xonelabs/xonebot/pkg/logging"
)

type numberOrchestrator interface {
	SearchNumbers(ctx context.Context, countryCode, preferredProvider string) []carrier.NumberOffer
	ProvisionNumber(ctx context.Context, tenantID string, offer carrier.NumberOffer) (*carrier.ProvisionedNumber, error)
	ReleaseNumber(ctx context.Context, numberID string) error
	SetupExistingNumber(ctx context.Context, tenantID, existingNumber string) (*carrier.ExistingNumberSetup, error)
	VerifyExistingNumber(ctx context.Context, tenantID, numberID, code string) bool
}

type sessionResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

// NumbersHandler exposes operator endpoints for number lifecycle:
// search, provision, release, and bring-your-own-number onboarding.
type NumbersHandler struct {
	orchestrator numberOrchestrator
	sessions     sessionResetter
	logger       *logging.Logger
}

func NewNumbersHandler(orchestrator numberOrchestrator, sessions sessionResetter, logger *logging.Logger) *NumbersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &NumbersHandler{orchestrator: orchestrator, sessions: sessions, logger: logger}
}

// Search lists available numbers for a country, regional priority applied.
// GET /admin/numbers/search?country=+371&provider=vonage
func (h *NumbersHandler) Search(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		http.Error(w, "country is required", http.StatusBadRequest)
		return
	}
	offers := h.orchestrator.SearchNumbers(r.Context(), country, r.URL.Query().Get("provider"))
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers, "count": len(offers)})
}

type provisionRequest struct {
	TenantID string              `json:"tenant_id"`
	Offer    carrier.NumberOffer `json:"offer"`
}

// Provision buys a number from an earlier search result and assigns it to
// a tenant. A failed provision leaves no record behind.
func (h *NumbersHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.Offer.Number) == "" {
		http.Error(w, "tenant_id and offer.number are required", http.StatusBadRequest)
		return
	}

	rec, err := h.orchestrator.ProvisionNumber(r.Context(), req.TenantID, req.Offer)
	if err != nil {
		h.logger.Warn("provision failed", "tenant_id", req.TenantID, "number", req.Offer.Number, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Release returns a number to the carrier and marks the record released.
func (h *NumbersHandler) Release(w http.ResponseWriter, r *http.Request) {
	numberID := chi.URLParam(r, "numberID")
	if err := h.orchestrator.ReleaseNumber(r.Context(), numberID); err != nil {
		if err == carrier.ErrNumberNotFound {
			http.Error(w, "number not found", http.StatusNotFound)
			return
		}
		h.logger.Warn("release failed", "number_id", numberID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type existingNumberRequest struct {
	TenantID string `json:"tenant_id"`
	Number   string `json:"number"`
}

// SetupExisting starts bring-your-own-number onboarding: issues the
// extension code and forwarding instructions.
func (h *NumbersHandler) SetupExisting(w http.ResponseWriter, r *http.Request) {
	var req existingNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	setup, err := h.orchestrator.SetupExistingNumber(r.Context(), req.TenantID, req.Number)
	if err != nil {
		h.logger.Warn("existing number setup failed", "tenant_id", req.TenantID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, setup)
}

type verifyRequest struct {
	TenantID string `json:"tenant_id"`
	Code     string `json:"code"`
}

// VerifyExisting checks the code observed during the live test call. The
// outcome is a plain boolean; a failed verification changes nothing.
func (h *NumbersHandler) VerifyExisting(w http.ResponseWriter, r *http.Request) {
	numberID := chi.URLParam(r, "numberID")
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	verified := h.orchestrator.VerifyExistingNumber(r.Context(), req.TenantID, numberID, req.Code)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

// ResetSession drops all conversation state for a session. Operator
// tooling for stuck or test sessions.
func (h *NumbersHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if h.sessions == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.sessions.Reset(r.Context(), sessionID); err != nil {
		h.logger.Error("session reset failed", "session_id", sessionID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
