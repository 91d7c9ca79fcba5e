package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/model"
)

// LegacyTokenHeader carries the bare session token for older clients.
const LegacyTokenHeader = "token"

// TokenParser verifies session tokens.
type TokenParser interface {
	Parse(token string) (*model.AuthContext, error)
}

// RevocationChecker reports revoked token IDs.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger     *slog.Logger
	Tokens     TokenParser
	Revocation RevocationChecker
}

// Auth returns a middleware that authenticates requests with a session token
// and injects the auth context into the request.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token := ExtractToken(r)
			if token == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", requestID),
				)
				writeAuthError(w)
				return
			}

			authCtx, err := cfg.Tokens.Parse(token)
			if err != nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "invalid_token"),
					slog.String("error", err.Error()),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", requestID),
				)
				writeAuthError(w)
				return
			}

			if cfg.Revocation != nil {
				revoked, err := cfg.Revocation.IsTokenRevoked(ctx, authCtx.TokenID)
				if err != nil {
					cfg.Logger.Error("token revocation check failed",
						slog.String("error", err.Error()),
						slog.String("request_id", requestID),
					)
					writeError(w, http.StatusServiceUnavailable, "Service Unavailable")
					return
				}
				if revoked {
					cfg.Logger.Warn("authentication failed",
						slog.String("reason", "revoked_token"),
						slog.String("user_id", authCtx.UserID),
						slog.String("request_id", requestID),
					)
					writeAuthError(w)
					return
				}
			}

			annotateUser(ctx, authCtx.UserID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(ctx, authCtx)))
		})
	}
}

// ExtractToken returns the session token from "Authorization: Bearer <t>" or,
// failing that, the legacy token header.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(LegacyTokenHeader))
}

// writeAuthError uses one message for every failure to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "Not Authorized. Login Again")
}
