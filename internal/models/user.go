package models

import (
	"time"

	"knitkart/internal/credential"
)

type UserRole = credential.Role

const (
	UserRoleUser   = credential.RoleUser
	UserRoleSeller = credential.RoleSeller
	UserRoleAdmin  = credential.RoleAdmin
)

type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	Name         string
	Role         UserRole
	LoginCount   int
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type SellerStatus string

const (
	SellerStatusPending   SellerStatus = "pending"
	SellerStatusActive    SellerStatus = "active"
	SellerStatusSuspended SellerStatus = "suspended"
)

type SellerProfile struct {
	ID        string
	UserID    string
	ShopName  string
	Status    SellerStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash []byte
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Principal is the authenticated identity of a single request. It is
// derived from a verified session token and the stored user record.
type Principal struct {
	ID              string
	Email           string
	Name            string
	Role            UserRole
	Seller          *SellerProfile
	PendingApproval bool
	LoginCount      int
	LastLoginAt     *time.Time
}

func PrincipalFromUser(user User) *Principal {
	return &Principal{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		LoginCount:  user.LoginCount,
		LastLoginAt: user.LastLoginAt,
	}
}
