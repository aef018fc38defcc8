package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/services"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

// SuperAdminHandler serves the privileged administration API.
type SuperAdminHandler struct {
	sessions     *Sessions
	login        *services.LoginService
	identity     *services.IdentityService
	ledger       *services.CreditLedger
	provisioning *services.ProvisioningService
	statements   *services.StatementService
	pools        *services.InstitutionCredits
	overview     *services.OverviewService
	log          *zap.Logger
}

func NewSuperAdminHandler(
	sessions *Sessions,
	login *services.LoginService,
	identity *services.IdentityService,
	ledger *services.CreditLedger,
	provisioning *services.ProvisioningService,
	statements *services.StatementService,
	pools *services.InstitutionCredits,
	overview *services.OverviewService,
	log *zap.Logger,
) *SuperAdminHandler {
	return &SuperAdminHandler{
		sessions:     sessions,
		login:        login,
		identity:     identity,
		ledger:       ledger,
		provisioning: provisioning,
		statements:   statements,
		pools:        pools,
		overview:     overview,
		log:          log,
	}
}

// SuperAdminRouter registers super-admin routes on the given router.
func SuperAdminRouter(r chi.Router, handler *SuperAdminHandler) {
	r.Post("/create-temp-super-admin", handler.CreateSuperAdmin)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.sessions.logout)

	r.Group(func(r chi.Router) {
		r.Use(handler.sessions.RequireRole(types.RoleSuperAdmin))

		r.Get("/users", handler.ListUsers)
		r.Route("/users/{userId}/credits", func(r chi.Router) {
			r.Get("/", handler.GetCredits)
			r.Post("/", handler.AdjustCredits)
			r.Post("/statement", handler.ExportStatement)
			r.Get("/statements/{name}", handler.GetStatement)
		})
		r.Post("/institution-users/create", handler.CreateInstitutionUser)
		r.Post("/institutions/create", handler.CreateInstitution)
		r.Get("/institutions", handler.ListInstitutions)
		r.Get("/institutions/{institutionId}/members", handler.InstitutionMembers)
		r.Get("/institutions/{institutionId}/credits", handler.GetInstitutionCredits)
		r.Post("/institutions/{institutionId}/credits", handler.AdjustInstitutionCredits)
		r.Get("/overview", handler.Overview)
	})
}

// CreateSuperAdmin is the guarded bootstrap path; it upserts by email.
func (h *SuperAdminHandler) CreateSuperAdmin(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioning.AuthorizeBootstrap(r.Context(), r.Header.Get(headerBootstrap)); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, created, err := h.provisioning.CreateSuperAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	message := "Super admin password updated"
	if created {
		message = "Super admin created"
	}
	writeJSON(w, http.StatusOK, CreatedResponse{UserID: account.ID, Message: message})
}

func (h *SuperAdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	serveLogin(w, r, h.sessions, h.login, h.log, types.RoleSuperAdmin)
}

func (h *SuperAdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.identity.ListAccounts(r.Context(), store.AccountFilter{
		Search: r.URL.Query().Get("search"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.AccountWithBalance]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *SuperAdminHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, entries, err := h.ledger.History(r.Context(), userID, 0)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditsResponse{
		Balance:      balance.Balance,
		Version:      balance.Version,
		Transactions: entries,
	})
}

// AdjustCredits credits a positive amount and debits a negative one.
func (h *SuperAdminHandler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AdjustCreditsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := req.Amount.Int64()
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a non-zero integer")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = services.ReasonAdminAdjust
	}

	opts := []services.MutationOption{services.WithIdempotencyKey(req.IdempotencyKey)}
	var newBalance int64
	if amount > 0 {
		newBalance, err = h.ledger.Credit(r.Context(), userID, amount, reason, caller.ID.String(), opts...)
	} else {
		newBalance, err = h.ledger.Debit(r.Context(), userID, -amount, reason, caller.ID.String(), opts...)
	}
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustCreditsResponse{NewBalance: newBalance, Message: "Credits updated"})
}

func (h *SuperAdminHandler) ExportStatement(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.statements.Export(r.Context(), userID, caller.ID.String())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatementResponse{Key: key, Name: path.Base(key), Bucket: h.statements.Bucket()})
}

func (h *SuperAdminHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc, err := h.statements.Open(r.Context(), userID, chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("statement download interrupted", zap.Error(err))
	}
}

func (h *SuperAdminHandler) CreateInstitutionUser(w http.ResponseWriter, r *http.Request) {
	var req CreateInstitutionUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	account, err := h.provisioning.CreateInstitutionAdmin(r.Context(), req.Name, req.Email, req.Password, req.InstitutionID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, CreatedResponse{UserID: account.ID, Message: "Institution user created"})
}

func (h *SuperAdminHandler) CreateInstitution(w http.ResponseWriter, r *http.Request) {
	var req CreateInstitutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	institution, err := h.identity.CreateInstitution(r.Context(), req.Name, req.EmailDomain)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, institution)
}

func (h *SuperAdminHandler) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	institutions, err := h.identity.ListInstitutions(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Institution]{Items: institutions, Page: 1, Limit: len(institutions), Total: len(institutions)})
}

func (h *SuperAdminHandler) InstitutionMembers(w http.ResponseWriter, r *http.Request) {
	institutionID, err := parseInstitutionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.identity.GetInstitution(r.Context(), institutionID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	items, total, err := h.identity.ListAccounts(r.Context(), store.AccountFilter{
		Search:        r.URL.Query().Get("search"),
		InstitutionID: &institutionID,
		Offset:        offset,
		Limit:         limit,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if items == nil {
		items = []types.AccountWithBalance{}
	}
	writeJSON(w, http.StatusOK, ListResponse[types.AccountWithBalance]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *SuperAdminHandler) GetInstitutionCredits(w http.ResponseWriter, r *http.Request) {
	institutionID, err := parseInstitutionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	servePool(w, r, h.pools, h.log, institutionID)
}

// AdjustInstitutionCredits takes either a signed amount or an absolute set_to.
func (h *SuperAdminHandler) AdjustInstitutionCredits(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	institutionID, err := parseInstitutionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AdjustPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	adj := services.PoolAdjustment{Reason: req.Reason, Actor: caller.ID.String()}
	if adj.Amount, err = optionalInt(req.Amount, "amount"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if adj.SetTo, err = optionalInt(req.SetTo, "set_to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	newBalance, err := h.pools.Adjust(r.Context(), institutionID, adj)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustCreditsResponse{NewBalance: newBalance, Message: "Institution credits updated"})
}

func (h *SuperAdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.overview.Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func servePool(w http.ResponseWriter, r *http.Request, pools *services.InstitutionCredits, log *zap.Logger, institutionID uuid.UUID) {
	balance, entries, err := pools.Pool(r.Context(), institutionID, 0)
	if err != nil {
		writeServiceError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, PoolResponse{
		InstitutionID: institutionID,
		Balance:       balance.Balance,
		Transactions:  entries,
	})
}

func optionalInt(raw *json.Number, field string) (*int64, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := raw.Int64()
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", field)
	}
	return &v, nil
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateInstitutionUserRequest struct {
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Password      string     `json:"password"`
	InstitutionID *uuid.UUID `json:"institution_id,omitempty"`
}

type CreateInstitutionRequest struct {
	Name        string `json:"name"`
	EmailDomain string `json:"email_domain"`
}

type CreatedResponse struct {
	UserID  uuid.UUID `json:"userId"`
	Message string    `json:"message"`
}

type AdjustCreditsRequest struct {
	Amount         json.Number `json:"amount"`
	Reason         string      `json:"reason,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

type AdjustCreditsResponse struct {
	NewBalance int64  `json:"newBalance"`
	Message    string `json:"message"`
}

type CreditsResponse struct {
	Balance      int64               `json:"balance"`
	Version      int64               `json:"version"`
	Transactions []types.LedgerEntry `json:"transactions"`
}

type AdjustPoolRequest struct {
	Amount *json.Number `json:"amount,omitempty"`
	SetTo  *json.Number `json:"set_to,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

type PoolResponse struct {
	InstitutionID uuid.UUID                      `json:"institution_id"`
	Balance       int64                          `json:"balance"`
	Transactions  []types.InstitutionCreditEntry `json:"transactions"`
}

type StatementResponse struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Bucket string `json:"bucket"`
}
