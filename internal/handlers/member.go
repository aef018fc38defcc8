package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nebulasphere007-cell/MockZen/internal/services"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

// MemberHandler serves candidate and institution-admin views.
type MemberHandler struct {
	sessions *Sessions
	gate     *services.AccessGate
	identity *services.IdentityService
	ledger   *services.CreditLedger
	pools    *services.InstitutionCredits
	log      *zap.Logger
}

func NewMemberHandler(sessions *Sessions, gate *services.AccessGate, identity *services.IdentityService, ledger *services.CreditLedger, pools *services.InstitutionCredits, log *zap.Logger) *MemberHandler {
	return &MemberHandler{sessions: sessions, gate: gate, identity: identity, ledger: ledger, pools: pools, log: log}
}

// UserRouter registers candidate routes.
func UserRouter(r chi.Router, handler *MemberHandler) {
	r.Use(handler.sessions.RequireRole(types.RoleCandidate))
	r.Get("/credits", handler.OwnCredits)
	r.Post("/credits/consume", handler.ConsumeCredits)
}

// InstitutionRouter registers institution-admin routes.
func InstitutionRouter(r chi.Router, handler *MemberHandler) {
	r.Use(handler.sessions.RequireRole(types.RoleInstitutionAdmin))
	r.Get("/credits", handler.InstitutionCredits)
	r.Get("/members", handler.ListMembers)
	r.Get("/members/{userId}/credits", handler.MemberCredits)
}

func (h *MemberHandler) OwnCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())

	balance, err := h.ledger.GetBalance(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: balance.Balance})
}

func (h *MemberHandler) ConsumeCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())

	var req ConsumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cost, balance, err := h.ledger.ConsumeInterview(r.Context(), caller.ID, req.DurationMinutes, req.IdempotencyKey)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ConsumeResponse{Cost: cost, Balance: balance})
}

func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ListResponse[types.AccountWithBalance]{Items: []types.AccountWithBalance{}, Page: page, Limit: limit}
	if caller.InstitutionID == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	items, total, err := h.identity.ListAccounts(r.Context(), store.AccountFilter{
		Search:        r.URL.Query().Get("search"),
		InstitutionID: caller.InstitutionID,
		Offset:        offset,
		Limit:         limit,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	resp.Items = items
	resp.Total = total
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemberHandler) MemberCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.gate.Check(r.Context(), caller, types.RoleInstitutionAdmin, services.SameInstitution(h.identity, userID)); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: balance.Balance})
}

// InstitutionCredits shows the pool of the caller's own institution.
func (h *MemberHandler) InstitutionCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	if caller.InstitutionID == nil {
		writeServiceError(w, r, h.log, services.ErrForbidden)
		return
	}
	servePool(w, r, h.pools, h.log, *caller.InstitutionID)
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type ConsumeRequest struct {
	DurationMinutes int    `json:"duration_minutes"`
	IdempotencyKey  string `json:"idempotency_key"`
}

type ConsumeResponse struct {
	Cost    int64 `json:"cost"`
	Balance int64 `json:"balance"`
}
