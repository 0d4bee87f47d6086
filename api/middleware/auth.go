package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/portal-crm-backend/api/responses"
	pkgAuth "github.com/angelmondragon/portal-crm-backend/pkg/auth"
	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

const bearerPrefix = "bearer "

// SessionChecker reports whether the access session behind a token is still live.
type SessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Auth validates a bearer token and seeds the request context with the
// caller's Principal. A nil checker skips the session lookup.
func Auth(cfg config.JWTConfig, verifier SessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticate(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithActor(ctx, principal.UserID.String(), string(principal.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier SessionChecker) (Principal, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return Principal{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	if verifier != nil {
		if claims.ID == "" {
			return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
		}
		live, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return Principal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}

	return Principal{UserID: claims.UserID, Role: claims.Role, SessionID: claims.ID}, nil
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(header string) string {
	raw := strings.TrimSpace(header)
	if len(raw) >= len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		raw = raw[len(bearerPrefix):]
	}
	return strings.TrimSpace(raw)
}
