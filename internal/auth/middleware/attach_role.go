package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

// UserLookup resolves the stored account behind a token.
type UserLookup interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// AttachRoleFromDB replaces the role carried by the token with the one
// stored for the user, so demotions apply before the token expires. Runs
// after JWTMiddleware. Deleted accounts are rejected.
func AttachRoleFromDB(lookup UserLookup, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := rbac.PrincipalFromContext(ctx)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			u, err := lookup.Get(ctx, p.ID)
			switch {
			case err == nil && u.Role.Valid():
				next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(ctx, u.Principal())))
			case err == nil, apperr.KindOf(err) == apperr.KindNotFound:
				log.Warn("token for unknown account", "user_id", p.ID)
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				log.Error("role lookup failed", "user_id", p.ID, "err", err)
				http.Error(w, "role lookup failed", http.StatusInternalServerError)
			}
		})
	}
}
