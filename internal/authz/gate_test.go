package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knitkart/internal/models"
	"knitkart/internal/repository"
)

type sellerTable map[string]models.SellerProfile

func (s sellerTable) GetByUserID(_ context.Context, userID string) (models.SellerProfile, error) {
	if userID == "broken" {
		return models.SellerProfile{}, errors.New("connection reset")
	}
	profile, ok := s[userID]
	if !ok {
		return models.SellerProfile{}, repository.ErrSellerNotFound
	}
	return profile, nil
}

var testPaths = Paths{Login: "/login", Onboarding: "/seller/onboarding", Home: "/"}

func newTestGate() *Gate {
	return NewGate(sellerTable{
		"s-active":    {UserID: "s-active", Status: models.SellerStatusActive},
		"s-pending":   {UserID: "s-pending", Status: models.SellerStatusPending},
		"s-suspended": {UserID: "s-suspended", Status: models.SellerStatusSuspended},
		"a-1":         {UserID: "a-1", Status: models.SellerStatusActive},
	}, testPaths)
}

func principal(id string, role models.UserRole) *models.Principal {
	return &models.Principal{ID: id, Email: id + "@example.com", Role: role}
}

func TestNoPrincipalRedirectsToLoginWithReturnPath(t *testing.T) {
	g := newTestGate()

	d := g.RequireAuth(nil, "/account/orders?page=2")
	assert.False(t, d.Allowed())
	assert.Equal(t, "/login?redirect=%2Faccount%2Forders%3Fpage%3D2", d.Redirect)

	d = g.RequireAdmin(nil, "/admin")
	assert.Equal(t, "/login?redirect=%2Fadmin", d.Redirect)

	d, err := g.RequireSeller(context.Background(), nil, "/seller/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "/login?redirect=%2Fseller%2Fdashboard", d.Redirect)
}

func TestRoleRedirects(t *testing.T) {
	g := newTestGate()

	d, err := g.RequireSeller(context.Background(), principal("u-1", models.UserRoleUser), "/seller/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "/seller/onboarding", d.Redirect)

	d = g.RequireAdmin(principal("s-active", models.UserRoleSeller), "/admin")
	assert.Equal(t, "/", d.Redirect)

	d = g.RequireAdmin(principal("a-1", models.UserRoleAdmin), "/admin")
	assert.True(t, d.Allowed())

	d = g.RequireAuth(principal("u-1", models.UserRoleUser), "/account")
	assert.True(t, d.Allowed())
}

func TestRequireSellerProfileStates(t *testing.T) {
	g := newTestGate()
	ctx := context.Background()

	d, err := g.RequireSeller(ctx, principal("s-active", models.UserRoleSeller), "/seller")
	require.NoError(t, err)
	require.True(t, d.Allowed())
	assert.False(t, d.Principal.PendingApproval)
	assert.Equal(t, models.SellerStatusActive, d.Principal.Seller.Status)

	d, err = g.RequireSeller(ctx, principal("s-pending", models.UserRoleSeller), "/seller")
	require.NoError(t, err)
	require.True(t, d.Allowed())
	assert.True(t, d.Principal.PendingApproval)

	d, err = g.RequireSeller(ctx, principal("s-suspended", models.UserRoleSeller), "/seller")
	require.NoError(t, err)
	assert.False(t, d.Allowed())
	assert.Equal(t, "/seller/onboarding?error=seller_suspended", d.Redirect)

	d, err = g.RequireSeller(ctx, principal("s-none", models.UserRoleSeller), "/seller")
	require.NoError(t, err)
	assert.Equal(t, "/seller/onboarding", d.Redirect)

	_, err = g.RequireSeller(ctx, principal("broken", models.UserRoleSeller), "/seller")
	assert.Error(t, err)
}

func TestAdminActsAsSeller(t *testing.T) {
	g := newTestGate()

	d, err := g.RequireSeller(context.Background(), principal("a-1", models.UserRoleAdmin), "/seller")
	require.NoError(t, err)
	assert.True(t, d.Allowed())

	d, err = g.RequireSeller(context.Background(), principal("a-2", models.UserRoleAdmin), "/seller")
	require.NoError(t, err)
	assert.Equal(t, "/seller/onboarding", d.Redirect)
}

func TestRequireSellerDoesNotMutateInput(t *testing.T) {
	g := newTestGate()
	p := principal("s-pending", models.UserRoleSeller)

	d, err := g.RequireSeller(context.Background(), p, "/seller")
	require.NoError(t, err)
	assert.True(t, d.Principal.PendingApproval)
	assert.False(t, p.PendingApproval)
	assert.Nil(t, p.Seller)
}
