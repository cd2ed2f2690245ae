package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"knitkart/internal/credential"
	"knitkart/internal/models"
)

const principalKey = "principal"

type SessionResolver interface {
	ResolvePrincipal(ctx context.Context, rawToken string) (*models.Principal, *credential.Claims)
	MaybeRenew(claims *credential.Claims) (string, error)
}

type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Session resolves the session cookie once per request and stores the
// principal for later handlers. A cookie close to expiry is reissued.
// Requests without a valid session continue unauthenticated.
func Session(resolver SessionResolver, cookie CookieConfig, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(cookie.Name)
		if err != nil || raw == "" {
			c.Next()
			return
		}

		principal, claims := resolver.ResolvePrincipal(c.Request.Context(), raw)
		if principal == nil {
			c.Next()
			return
		}
		c.Set(principalKey, principal)

		renewed, err := resolver.MaybeRenew(claims)
		if err != nil {
			log.Warn().Err(err).Str("user_id", principal.ID).Msg("session renewal failed")
		} else if renewed != "" {
			SetSessionCookie(c, cookie, renewed)
			log.Debug().Str("user_id", principal.ID).Msg("session renewed")
		}

		c.Next()
	}
}

// CurrentPrincipal returns the request principal or nil.
func CurrentPrincipal(c *gin.Context) *models.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}

func SetSessionCookie(c *gin.Context, cookie CookieConfig, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookie.Name, token, int(cookie.TTL.Seconds()), "/", "", cookie.Secure, true)
}

func ClearSessionCookie(c *gin.Context, cookie CookieConfig) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookie.Name, "", -1, "/", "", cookie.Secure, true)
}
