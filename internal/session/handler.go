package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/cinelog/service-core-go/internal/device"
	"github.com/ovaphlow/cinelog/service-core-go/pkg/utilities"
)

// Cookie names.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
	SessionCookie = "sessionId"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	svc    *Service
	cfg    Config
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, cfg Config, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, cfg: cfg, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionView is a session as listed to its owner.
type sessionView struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	IPAddress    string    `json:"ipAddress"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
	Current      bool      `json:"current"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, device.FromRequest(r), device.RemoteAddr(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setCookie(w, AccessCookie, res.AccessToken, h.cfg.AccessTTL, true)
	h.setCookie(w, RefreshCookie, res.RefreshToken, h.cfg.RefreshTTL, true)
	h.setCookie(w, SessionCookie, res.Session.ID, h.cfg.RefreshTTL, false)
	writeJSON(w, http.StatusOK, map[string]any{"user": res.User, "sessionId": res.Session.ID})
}

// Logout always succeeds and clears the auth cookies. The session to end
// comes from the access or refresh token, never from the readable
// sessionId cookie alone.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(RefreshCookie); err == nil {
		refresh = c.Value
	}
	sessionID := h.svc.LogoutSessionID(r.Context(), accessTokenFrom(r), refresh)
	h.svc.Logout(r.Context(), sessionID)
	for _, name := range []string{AccessCookie, RefreshCookie} {
		h.clearCookie(w, name, true)
	}
	h.clearCookie(w, SessionCookie, false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing refresh token"})
		return
	}
	grant, err := h.svc.Refresh(r.Context(), c.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setCookie(w, AccessCookie, grant.AccessToken, h.cfg.AccessTTL, true)
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": grant.SessionID, "expiresAt": grant.ExpiresAt})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := utilities.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	sessions, err := h.svc.ListActiveSessions(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			ID:           s.ID,
			Device:       s.Device,
			IPAddress:    s.IPAddress,
			LastActivity: s.LastActivity,
			CreatedAt:    s.CreatedAt,
			Current:      s.ID == p.SessionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	p, ok := utilities.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.svc.TerminateSession(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireAuth admits requests carrying a valid access token, read from the
// accessToken cookie or an "Authorization: Bearer" header, and stores the
// caller's Principal in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessTokenFrom(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		p, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidAccessToken) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(utilities.WithPrincipal(r.Context(), p)))
	})
}

func accessTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, ErrInvalidRefreshToken):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
	case errors.Is(err, ErrInvalidAccessToken):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	default:
		h.logger.Errorw("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
