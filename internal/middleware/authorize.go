package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"knitkart/internal/authz"
	"knitkart/internal/models"
)

const apiPrefix = "/api/"

func RequireAuth(gate *authz.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		enforce(c, gate.RequireAuth(CurrentPrincipal(c), c.Request.URL.RequestURI()))
	}
}

func RequireAdmin(gate *authz.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		enforce(c, gate.RequireAdmin(CurrentPrincipal(c), c.Request.URL.RequestURI()))
	}
}

// RequireSeller admits active sellers and sellers awaiting approval. The
// principal stored for the handler carries the seller profile.
func RequireSeller(gate *authz.Gate, log zerolog.Logger) gin.HandlerFunc {
	return requireSeller(gate, log, true)
}

// RequireApprovedSeller is RequireSeller without the pending approval pass.
func RequireApprovedSeller(gate *authz.Gate, log zerolog.Logger) gin.HandlerFunc {
	return requireSeller(gate, log, false)
}

func requireSeller(gate *authz.Gate, log zerolog.Logger, allowPending bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := gate.RequireSeller(c.Request.Context(), CurrentPrincipal(c), c.Request.URL.RequestURI())
		if err != nil {
			log.Error().Err(err).Msg("seller check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_server_error"})
			return
		}
		if decision.Allowed() && decision.Principal.PendingApproval && !allowPending {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "seller_pending_approval"})
			return
		}
		enforce(c, decision)
	}
}

// enforce stops the chain on a redirect decision. API callers get a JSON
// status with the target; page requests are redirected.
func enforce(c *gin.Context, decision authz.Decision) {
	if decision.Allowed() {
		c.Set(principalKey, decision.Principal)
		c.Next()
		return
	}

	if !isAPIRequest(c.Request) {
		c.Redirect(http.StatusSeeOther, decision.Redirect)
		c.Abort()
		return
	}

	status, code := http.StatusForbidden, "forbidden"
	if CurrentPrincipal(c) == nil {
		status, code = http.StatusUnauthorized, "unauthorized"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success":  false,
		"error":    code,
		"redirect": decision.Redirect,
	})
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, apiPrefix)
}

// MustPrincipal is for handlers mounted behind one of the Require
// middlewares.
func MustPrincipal(c *gin.Context) *models.Principal {
	p := CurrentPrincipal(c)
	if p == nil {
		panic("middleware: handler mounted without an authorization middleware")
	}
	return p
}
