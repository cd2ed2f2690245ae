package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knitkart/internal/middleware"
)

func (h HandlerSet) Account(c *gin.Context) {
	p := middleware.MustPrincipal(c)
	c.JSON(http.StatusOK, gin.H{
		"user":        newUserResponse(p.ID, p.Name, p.Email, p.Role),
		"loginCount":  p.LoginCount,
		"lastLoginAt": p.LastLoginAt,
	})
}

// SellerDashboard renders the limited onboarding view while the seller
// profile awaits approval.
func (h HandlerSet) SellerDashboard(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	body := gin.H{
		"user":            newUserResponse(p.ID, p.Name, p.Email, p.Role),
		"pendingApproval": p.PendingApproval,
	}
	if p.Seller != nil {
		body["seller"] = gin.H{
			"shopName": p.Seller.ShopName,
			"status":   p.Seller.Status,
		}
	}
	if !p.PendingApproval {
		body["analysisPollIntervalMs"] = h.cfg.Analysis.PollInterval.Milliseconds()
	}
	c.JSON(http.StatusOK, body)
}
