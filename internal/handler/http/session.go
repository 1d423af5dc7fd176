package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// SessionCookieName is the cookie carrying the shopper session id.
const SessionCookieName = "sf_session"

const sessionCookieMaxAge = 30 * 24 * time.Hour

type contextKey string

const shopperSessionKey contextKey = "shopper_session"

// ShopperSession reads the sf_session cookie, issuing a fresh one when it is
// missing or not a UUID, and stores the id in the request context.
func ShopperSession(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(sessionCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), shopperSessionKey, id)
			ctx = logger.WithShopperSession(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// shopperFromContext returns the id stored by ShopperSession.
func shopperFromContext(ctx context.Context) string {
	id, _ := ctx.Value(shopperSessionKey).(string)
	return id
}
