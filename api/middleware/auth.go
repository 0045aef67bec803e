package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	pkgAuth "github.com/asbolsyn/mealmarket-backend/pkg/auth"
	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

const authRealm = "mealmarket"

// bearerToken accepts "Bearer <jwt>" in any case, or a bare token.
func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return raw
}

// Auth admits requests carrying a valid access token minted for the chat
// adapter, an operator or a vendor, and seeds the context with that actor.
// Rejections carry an RFC 6750 WWW-Authenticate challenge; an expired token
// is reported separately so the adapter knows to re-mint rather than alert.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+authRealm+`"`)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				reason := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					reason = "token expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+authRealm+`", error="invalid_token", error_description="`+reason+`"`)
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, reason))
				return
			}

			actor := Actor{Subject: claims.Subject, Role: claims.Role}
			fields := map[string]any{"subject": actor.Subject, "actor_role": actor.Role.String()}
			if claims.VendorID != nil {
				actor.VendorID = *claims.VendorID
				fields["vendor_id"] = actor.VendorID.String()
			}
			ctx := WithActorIdentity(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
