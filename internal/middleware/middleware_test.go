package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knitkart/internal/authz"
	"knitkart/internal/credential"
	"knitkart/internal/models"
	"knitkart/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResolver struct {
	principals map[string]*models.Principal
	renewed    string
	calls      int
}

func (r *stubResolver) ResolvePrincipal(_ context.Context, raw string) (*models.Principal, *credential.Claims) {
	r.calls++
	p, ok := r.principals[raw]
	if !ok {
		return nil, nil
	}
	return p, &credential.Claims{UserID: p.ID, Email: p.Email, Role: p.Role}
}

func (r *stubResolver) MaybeRenew(*credential.Claims) (string, error) {
	return r.renewed, nil
}

type stubSellers map[string]models.SellerProfile

func (s stubSellers) GetByUserID(_ context.Context, userID string) (models.SellerProfile, error) {
	profile, ok := s[userID]
	if !ok {
		return models.SellerProfile{}, repository.ErrSellerNotFound
	}
	return profile, nil
}

var testCookie = CookieConfig{Name: "session", TTL: 90 * 24 * time.Hour}

func newTestRouter(resolver *stubResolver, sellers stubSellers) *gin.Engine {
	gate := authz.NewGate(sellers, authz.Paths{Login: "/login", Onboarding: "/seller/onboarding", Home: "/"})

	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()), Session(resolver, testCookie, zerolog.Nop()))

	echo := func(c *gin.Context) {
		p := MustPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID, "pendingApproval": p.PendingApproval})
	}
	r.GET("/account", RequireAuth(gate), echo)
	r.GET("/seller/dashboard", RequireSeller(gate, zerolog.Nop()), echo)
	r.GET("/admin/images", RequireAdmin(gate), echo)
	r.GET("/api/v1/analysis/:id", RequireApprovedSeller(gate, zerolog.Nop()), echo)
	return r
}

func request(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func fixtures() (*stubResolver, stubSellers) {
	resolver := &stubResolver{principals: map[string]*models.Principal{
		"user-token":      {ID: "u1", Email: "u1@example.com", Role: models.UserRoleUser},
		"seller-token":    {ID: "s1", Email: "s1@example.com", Role: models.UserRoleSeller},
		"pending-token":   {ID: "s2", Email: "s2@example.com", Role: models.UserRoleSeller},
		"suspended-token": {ID: "s3", Email: "s3@example.com", Role: models.UserRoleSeller},
		"admin-token":     {ID: "a1", Email: "a1@example.com", Role: models.UserRoleAdmin},
	}}
	sellers := stubSellers{
		"s1": {UserID: "s1", Status: models.SellerStatusActive},
		"s2": {UserID: "s2", Status: models.SellerStatusPending},
		"s3": {UserID: "s3", Status: models.SellerStatusSuspended},
		"a1": {UserID: "a1", Status: models.SellerStatusActive},
	}
	return resolver, sellers
}

func TestPageRedirects(t *testing.T) {
	resolver, sellers := fixtures()
	r := newTestRouter(resolver, sellers)

	cases := []struct {
		name, path, token, location string
	}{
		{"anonymous keeps return path", "/seller/dashboard?tab=orders", "", "/login?redirect=%2Fseller%2Fdashboard%3Ftab%3Dorders"},
		{"bad token is anonymous", "/account", "forged", "/login?redirect=%2Faccount"},
		{"user to onboarding", "/seller/dashboard", "user-token", "/seller/onboarding"},
		{"suspended seller flagged", "/seller/dashboard", "suspended-token", "/seller/onboarding?error=seller_suspended"},
		{"seller in admin area", "/admin/images", "seller-token", "/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := request(r, tc.path, tc.token)
			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tc.location, w.Header().Get("Location"))
		})
	}
}

func TestAllowedRequests(t *testing.T) {
	resolver, sellers := fixtures()
	r := newTestRouter(resolver, sellers)

	w := request(r, "/seller/dashboard", "pending-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"s2","pendingApproval":true}`, w.Body.String())

	w = request(r, "/seller/dashboard", "admin-token")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, "/admin/images", "admin-token")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, "/account", "user-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIDenialsAreJSON(t *testing.T) {
	resolver, sellers := fixtures()
	r := newTestRouter(resolver, sellers)

	w := request(r, "/api/v1/analysis/job-1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"redirect":"/login?redirect=%2Fapi%2Fv1%2Fanalysis%2Fjob-1"`)

	w = request(r, "/api/v1/analysis/job-1", "user-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(r, "/api/v1/analysis/job-1", "pending-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "seller_pending_approval")

	w = request(r, "/api/v1/analysis/job-1", "seller-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionRenewalRewritesCookie(t *testing.T) {
	resolver, sellers := fixtures()
	resolver.renewed = "fresh-token"
	r := newTestRouter(resolver, sellers)

	w := request(r, "/account", "user-token")
	require.Equal(t, http.StatusOK, w.Code)

	setCookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(setCookie, "session=fresh-token"))
	assert.Contains(t, setCookie, "Max-Age=7776000")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Strict")
	assert.Contains(t, setCookie, "Path=/")
	assert.Equal(t, 1, resolver.calls)
}

func TestSessionWithoutRenewalLeavesCookie(t *testing.T) {
	resolver, sellers := fixtures()
	r := newTestRouter(resolver, sellers)

	w := request(r, "/account", "user-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestRequestIDEchoed(t *testing.T) {
	resolver, sellers := fixtures()
	r := newTestRouter(resolver, sellers)

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))

	w = request(r, "/account", "")
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestRecoveryReturnsJSON(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/api/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal_server_error"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://knitkart.example"}))
	r.GET("/api/auth/check", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/check", nil)
	req.Header.Set("Origin", "https://knitkart.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://knitkart.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
