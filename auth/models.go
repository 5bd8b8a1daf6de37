package auth

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleShipper Role = "SHIPPER"
	RoleCarrier Role = "CARRIER"
	RoleAdmin   Role = "ADMIN"
)

// VerificationStatus tracks the admin review of an account's business documents.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Identity is the authenticated caller attached to every request.
type Identity struct {
	UserID string
	Role   Role
}

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	Role               Role
	CompanyName        string
	ContactPerson      string
	Phone              string
	Address            *string
	VerificationStatus VerificationStatus
	TrustScore         decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Identity returns the caller identity for u.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Role: u.Role}
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	Role          Role    `json:"role"`
	CompanyName   string  `json:"companyName"`
	ContactPerson string  `json:"contactPerson"`
	Phone         string  `json:"phone"`
	Address       *string `json:"address,omitempty"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
