package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/cinelog/service-core-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for account operations (register / me).
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest request body for register endpoint.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrEmailTaken):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
		default:
			h.logger.Warnw("register failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

// Me returns the account behind the authenticated request.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := utilities.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	u, err := h.svc.Get(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		h.logger.Warnw("load current user failed", "err", err, "user_id", p.UserID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
