package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nebulasphere007-cell/MockZen/config"
	"github.com/nebulasphere007-cell/MockZen/internal/services"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

// Sessions reads and writes the session cookie and guards routes through the AccessGate.
type Sessions struct {
	authority *services.SessionAuthority
	gate      *services.AccessGate
	cookie    config.SessionConfig
	log       *zap.Logger
}

func NewSessions(authority *services.SessionAuthority, gate *services.AccessGate, cookie config.SessionConfig, log *zap.Logger) *Sessions {
	if cookie.CookieName == "" {
		cookie.CookieName = "session"
	}
	return &Sessions{authority: authority, gate: gate, cookie: cookie, log: log}
}

// RequireRole admits callers holding role (or SuperAdmin) and stores the account in context.
func (s *Sessions) RequireRole(role types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := s.gate.Authorize(r.Context(), s.token(r), role, nil)
			if err != nil {
				writeServiceError(w, r, s.log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
		})
	}
}

// RequireSession admits any caller with a valid session.
func (s *Sessions) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.token(r)
		if token == "" {
			writeServiceError(w, r, s.log, services.ErrUnauthenticated)
			return
		}
		account, err := s.authority.Validate(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, s.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
	})
}

// token prefers the cookie and falls back to a bearer header for API clients.
func (s *Sessions) token(r *http.Request) string {
	if cookie, err := r.Cookie(s.cookie.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	token, err := bearerToken(r)
	if err != nil {
		return ""
	}
	return token
}

func (s *Sessions) setCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Sessions) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// logout revokes the presented session, if any, and always clears the cookie.
func (s *Sessions) logout(w http.ResponseWriter, r *http.Request) {
	if token := s.token(r); token != "" {
		if err := s.authority.Revoke(r.Context(), token); err != nil {
			writeServiceError(w, r, s.log, err)
			return
		}
	}
	s.clearCookie(w)
	writeJSON(w, http.StatusOK, LoginResponse{Success: true})
}

// AuthHandler provides role-agnostic authentication endpoints.
type AuthHandler struct {
	sessions     *Sessions
	login        *services.LoginService
	provisioning *services.ProvisioningService
	log          *zap.Logger
}

func NewAuthHandler(sessions *Sessions, login *services.LoginService, provisioning *services.ProvisioningService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, login: login, provisioning: provisioning, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.sessions.logout)
	r.With(handler.sessions.RequireSession).Get("/me", handler.Me)
}

// Register creates a candidate account and signs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	account, err := h.provisioning.RegisterCandidate(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	result, err := h.login.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	h.sessions.setCookie(w, result.Token, result.Session.ExpiresAt)
	writeJSON(w, http.StatusCreated, AccountResponse{Account: account})
}

// Login verifies credentials for any role and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	serveLogin(w, r, h.sessions, h.login, h.log)
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, h.log, services.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: account})
}

func serveLogin(w http.ResponseWriter, r *http.Request, sessions *Sessions, login *services.LoginService, log *zap.Logger, roles ...types.Role) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, LoginResponse{Error: err.Error()})
		return
	}

	result, err := login.Login(r.Context(), req.Email, req.Password, clientIP(r), roles...)
	if err != nil {
		status, message := statusFor(err)
		var retry *services.RetryAfterError
		if errors.As(err, &retry) {
			w.Header().Set(headerRetry, retryAfterSeconds(retry.After))
		}
		if status == http.StatusInternalServerError {
			log.Error("login failed", zap.Error(err))
		}
		writeJSON(w, status, LoginResponse{Error: message})
		return
	}

	sessions.setCookie(w, result.Token, result.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, LoginResponse{Success: true, User: &result.Account})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	User    *types.Account `json:"user,omitempty"`
}

type AccountResponse struct {
	Account types.Account `json:"user"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
