package middleware

import (
	"context"
	"errors"
	"net/http"

	"image_gen/internal/common"
	"image_gen/internal/common/security"
	"image_gen/internal/domain/model"
	"image_gen/internal/domain/repository"

	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/zerolog"
)

type contextKey string

const identityCtxKey contextKey = "identity"

var (
	errUnauthenticated = common.WithMessage(common.ErrUnauthenticated, "Unauthenticated")
	errAdminRequired   = common.WithMessage(common.ErrForbidden, "Admin access required")
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// Authenticator admits requests whose token (already checked by
// jwtauth.Verify) names a user that still exists.
func Authenticator(users repository.UserRepository, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				common.RespondWithDomainError(w, log, errUnauthenticated)
				return
			}

			id, err := security.ClaimsFromMap(claims)
			if err != nil {
				common.RespondWithDomainError(w, log, errUnauthenticated)
				return
			}

			if _, err := users.FindByID(r.Context(), id.UserID); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					err = common.WithMessage(common.ErrUnauthenticated, "User not found")
				}
				common.RespondWithDomainError(w, log, err)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: id.UserID, Role: id.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Authenticator.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || !id.IsAdmin() {
			common.RespondWithDomainError(w, *zerolog.Ctx(r.Context()), errAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey).(Identity)
	return id, ok
}
