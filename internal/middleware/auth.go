package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/auth"
)

type contextKey string

const (
	claimsKey  contextKey = "claims"
	subjectKey contextKey = "subject"
)

// UserIDParam is the URL parameter naming the account a request acts on
const UserIDParam = "userId"

// Authenticate validates the bearer token and attaches its claims to the context
func Authenticate(tokens *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := auth.ExtractFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				respondWithError(w, err)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				respondWithError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin rejects callers whose token does not carry the admin role.
// It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok {
			respondWithError(w, apperr.Unauthorized("Missing authorization header"))
			return
		}
		if !claims.IsAdmin() {
			respondWithError(w, apperr.Forbidden("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSelfOrAdmin lets a caller act only on their own {userId} unless
// they are an admin. The parsed id is attached to the context.
func RequireSelfOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok {
			respondWithError(w, apperr.Unauthorized("Missing authorization header"))
			return
		}

		subject, err := uuid.Parse(chi.URLParam(r, UserIDParam))
		if err != nil {
			respondWithError(w, apperr.BadRequest("Invalid user ID"))
			return
		}
		if subject != claims.AccountID && !claims.IsAdmin() {
			respondWithError(w, apperr.Forbidden("You can only access your own account"))
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims returns the token claims attached by Authenticate
func GetClaims(ctx context.Context) (*auth.JWTClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.JWTClaims)
	return claims, ok
}

// GetSubjectID returns the {userId} checked by RequireSelfOrAdmin
func GetSubjectID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(subjectKey).(uuid.UUID)
	return id, ok
}

// WithClaims attaches verified claims to ctx
func WithClaims(ctx context.Context, claims *auth.JWTClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = &apperr.Error{Kind: apperr.KindInternal}
	}
	status, code := appErr.Kind.Status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]string{"error": code, "message": apperr.PublicMessage(err)}
	_ = json.NewEncoder(w).Encode(response)
}
