// Package auth resolves the owning account of a request from its bearer token.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims the middleware needs from a token.
type JWTClaims struct {
	OwnerID string
	Actor   string
}

// RequireOwner rejects requests without a valid bearer token and stores the
// owner and actor in the request context.
func RequireOwner(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ownerID, err := id.ParseOwnerID(claims.OwnerID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed owner claim",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithOwnerID(ctx, ownerID)
			if claims.Actor != "" {
				ctx = requestcontext.WithActorID(ctx, claims.Actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderOwnerID carries the owner when token checks are disabled.
const HeaderOwnerID = "X-Owner-ID"

// TrustOwnerHeader reads the owner from X-Owner-ID instead of a token. It is
// meant for local development behind a trusted proxy.
func TrustOwnerHeader(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ownerID, err := id.ParseOwnerID(r.Header.Get(HeaderOwnerID))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - missing owner header",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid X-Owner-ID header"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithOwnerID(ctx, ownerID)))
		})
	}
}
