// Package rating records scores that users give each other and keeps each
// user's trust score equal to the rounded mean of the scores they received.
package rating

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTrustScore is the score of a user nobody has rated yet.
var DefaultTrustScore = decimal.RequireFromString("5.0")

type Rating struct {
	ID           string
	RaterID      string
	RaterCompany string
	RatedUserID  string
	ShipmentID   *string
	Score        int
	Comment      *string
	CreatedAt    time.Time
}

type SubmitParams struct {
	RatedUserID string  `json:"ratedUserId" validate:"required,uuid"`
	Score       int     `json:"score" validate:"gte=1,lte=5"`
	Comment     *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
	ShipmentID  *string `json:"shipmentId,omitempty" validate:"omitempty,uuid"`
}

// Summary is the ratings a user received, newest first.
type Summary struct {
	Items   []Rating
	Average decimal.Decimal
	Total   int
}

// TrustScore is the mean of count scores summing to sum, rounded half away
// from zero to one decimal place. No ratings yield DefaultTrustScore.
func TrustScore(sum, count int64) decimal.Decimal {
	if count <= 0 {
		return DefaultTrustScore
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(count)).Round(1)
}
