// Package authz decides whether a request principal may enter a
// role-restricted area. Decisions are computed per request and never cached.
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"knitkart/internal/models"
	"knitkart/internal/repository"
)

// Query parameters appended to redirect targets.
const (
	ReturnToParam = "redirect"
	ErrorParam    = "error"
)

type SellerStore interface {
	GetByUserID(ctx context.Context, userID string) (models.SellerProfile, error)
}

type Paths struct {
	Login      string
	Onboarding string
	Home       string
}

// Decision is either an allowed principal or a redirect target.
type Decision struct {
	Principal *models.Principal
	Redirect  string
}

func (d Decision) Allowed() bool {
	return d.Redirect == "" && d.Principal != nil
}

func allow(p *models.Principal) Decision {
	return Decision{Principal: p}
}

func redirect(target string) Decision {
	return Decision{Redirect: target}
}

type Gate struct {
	sellers SellerStore
	paths   Paths
}

func NewGate(sellers SellerStore, paths Paths) *Gate {
	return &Gate{sellers: sellers, paths: paths}
}

func (g *Gate) loginRedirect(requestPath string) Decision {
	if requestPath == "" {
		return redirect(g.paths.Login)
	}
	q := url.Values{}
	q.Set(ReturnToParam, requestPath)
	return redirect(g.paths.Login + "?" + q.Encode())
}

func (g *Gate) onboardingRedirect(reason string) Decision {
	if reason == "" {
		return redirect(g.paths.Onboarding)
	}
	q := url.Values{}
	q.Set(ErrorParam, reason)
	return redirect(g.paths.Onboarding + "?" + q.Encode())
}

// RequireAuth admits any authenticated principal.
func (g *Gate) RequireAuth(p *models.Principal, requestPath string) Decision {
	if p == nil {
		return g.loginRedirect(requestPath)
	}
	return allow(p)
}

// RequireRole admits principals holding one of the allowed roles. Admins
// pass wherever sellers do. Everyone else lands on onboarding when the area
// is seller-facing, otherwise on the home page.
func (g *Gate) RequireRole(p *models.Principal, requestPath string, allowed ...models.UserRole) Decision {
	if p == nil {
		return g.loginRedirect(requestPath)
	}

	sellerArea := false
	for _, role := range allowed {
		if role == models.UserRoleSeller {
			sellerArea = true
		}
		if p.Role == role {
			return allow(p)
		}
	}
	if sellerArea {
		if p.Role == models.UserRoleAdmin {
			return allow(p)
		}
		return redirect(g.paths.Onboarding)
	}
	return redirect(g.paths.Home)
}

func (g *Gate) RequireAdmin(p *models.Principal, requestPath string) Decision {
	return g.RequireRole(p, requestPath, models.UserRoleAdmin)
}

// RequireSeller additionally checks the seller profile. A pending profile is
// admitted with PendingApproval set so the caller can render a limited view.
func (g *Gate) RequireSeller(ctx context.Context, p *models.Principal, requestPath string) (Decision, error) {
	decision := g.RequireRole(p, requestPath, models.UserRoleSeller)
	if !decision.Allowed() {
		return decision, nil
	}

	profile, err := g.sellers.GetByUserID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSellerNotFound) {
			return g.onboardingRedirect(""), nil
		}
		return Decision{}, fmt.Errorf("load seller profile: %w", err)
	}

	annotated := *p
	annotated.Seller = &profile
	annotated.PendingApproval = false

	switch profile.Status {
	case models.SellerStatusActive:
		return allow(&annotated), nil
	case models.SellerStatusPending:
		annotated.PendingApproval = true
		return allow(&annotated), nil
	default:
		return g.onboardingRedirect("seller_" + string(profile.Status)), nil
	}
}
