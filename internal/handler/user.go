package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/handler/dto"
	"github.com/promptpix/promptpix/internal/model"
	"github.com/promptpix/promptpix/internal/service"
)

// AccountService is the subset of service.AccountService used over HTTP.
type AccountService interface {
	Register(ctx context.Context, input service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Account(ctx context.Context, userID string) (*model.User, error)
	Logout(ctx context.Context, session *model.AuthContext) error
	Purchase(ctx context.Context, userID, planID string) (*model.Transaction, error)
	Transactions(ctx context.Context, userID string, plans []string, limit int) ([]*model.Transaction, error)
}

// UserHandler handles account endpoints.
type UserHandler struct {
	svc    AccountService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc AccountService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// Register handles POST /api/user/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "User already exists")
			return
		}
		h.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(sess))
}

// Login handles POST /api/user/login.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingDetails)
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(sess))
}

// Credits handles GET /api/user/credits.
func (h *UserHandler) Credits(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Account(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("load credits failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, dto.CreditsResponse{
		Success: true,
		Credits: user.CreditBalance,
		User:    dto.UserSummary{Name: user.Name},
	})
}

// Logout handles POST /api/user/logout.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.AuthFromContext(r.Context())
	if session == nil {
		writeError(w, http.StatusUnauthorized, "Not Authorized. Login Again")
		return
	}
	if err := h.svc.Logout(r.Context(), session); err != nil {
		h.logger.Error("logout failed", "user_id", session.UserID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Logout failed, try again")
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Logged out"})
}

// Plans handles GET /api/user/plans.
func (h *UserHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.PlansResponse{Success: true, Plans: model.Plans})
}

func toAuthResponse(sess *service.Session) dto.AuthResponse {
	return dto.AuthResponse{
		Success:   true,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      dto.UserSummary{Name: sess.User.Name},
	}
}
