package directory

import (
	"time"

	"github.com/shopspring/decimal"

	"freightmatch/auth"
)

// Profile captures the subset of company data exposed via the public API layer.
type Profile struct {
	ID          string
	CompanyName string
	Role        auth.Role
	Verified    bool
	TrustScore  decimal.Decimal
	RatingCount int
	CreatedAt   time.Time
}

// Filter narrows a directory listing.
type Filter struct {
	Role  auth.Role
	Query string
	Limit int
}
