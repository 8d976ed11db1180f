package auth

import (
	"time"

	"github.com/feedflow/feedflow/internal/shared"
)

// Employee represents an account that can sign in.
type Employee struct {
	ID           int64
	Name         string
	Phone        string
	PasswordHash string
	Role         shared.Role
	WarehouseID  int64
	IsActive     bool
	CreatedAt    time.Time
}

// Actor returns the identity carried by bearer credentials.
func (e Employee) Actor() shared.Actor {
	return shared.Actor{ID: e.ID, Role: e.Role}
}

// Token is a signed bearer credential.
type Token struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Actor       shared.Actor `json:"actor"`
}
