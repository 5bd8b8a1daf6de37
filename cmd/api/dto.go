package main

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/directory"
	"freightmatch/matching"
	"freightmatch/notification"
	"freightmatch/offer"
	"freightmatch/rating"
	"freightmatch/shipment"
)

const dateLayout = "2006-01-02"

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type userResponse struct {
	ID                 string          `json:"id"`
	Email              string          `json:"email"`
	Role               auth.Role       `json:"role"`
	CompanyName        string          `json:"companyName"`
	ContactPerson      string          `json:"contactPerson"`
	Phone              string          `json:"phone"`
	Address            *string         `json:"address,omitempty"`
	VerificationStatus string          `json:"verificationStatus"`
	TrustScore         decimal.Decimal `json:"trustScore"`
	CreatedAt          string          `json:"createdAt"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               u.Role,
		CompanyName:        u.CompanyName,
		ContactPerson:      u.ContactPerson,
		Phone:              u.Phone,
		Address:            u.Address,
		VerificationStatus: string(u.VerificationStatus),
		TrustScore:         u.TrustScore,
		CreatedAt:          formatTime(u.CreatedAt),
	}
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// stopRequest carries the date as a plain calendar day.
type stopRequest struct {
	Address    string  `json:"address"`
	City       string  `json:"city"`
	Prefecture string  `json:"prefecture"`
	PostalCode string  `json:"postalCode"`
	Date       string  `json:"date"`
	TimeFrom   *string `json:"timeFrom,omitempty"`
	TimeTo     *string `json:"timeTo,omitempty"`
}

func (s stopRequest) toStop(field string) (shipment.Stop, error) {
	stop := shipment.Stop{
		Address:    s.Address,
		City:       s.City,
		Prefecture: s.Prefecture,
		PostalCode: s.PostalCode,
		TimeFrom:   s.TimeFrom,
		TimeTo:     s.TimeTo,
	}
	raw := strings.TrimSpace(s.Date)
	if raw == "" {
		return stop, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		d, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return stop, apperr.Newf(apperr.Validation, "'%s.date': must be a date (YYYY-MM-DD)", field)
		}
	}
	stop.Date = d
	return stop, nil
}

type createShipmentRequest struct {
	CargoName           string               `json:"cargoName"`
	CargoDescription    *string              `json:"cargoDescription,omitempty"`
	CargoWeight         decimal.Decimal      `json:"cargoWeight"`
	CargoVolume         *decimal.Decimal     `json:"cargoVolume,omitempty"`
	CargoValue          *decimal.Decimal     `json:"cargoValue,omitempty"`
	Pickup              stopRequest          `json:"pickup"`
	Delivery            stopRequest          `json:"delivery"`
	RequiredVehicleType shipment.VehicleType `json:"requiredVehicleType"`
	NeedsHelper         bool                 `json:"needsHelper"`
	NeedsLiftGate       bool                 `json:"needsLiftGate"`
	Temperature         *string              `json:"temperature,omitempty"`
	SpecialInstructions *string              `json:"specialInstructions,omitempty"`
	Budget              decimal.Decimal      `json:"budget"`
}

func (req createShipmentRequest) toParams() (shipment.CreateParams, error) {
	pickup, err := req.Pickup.toStop("pickup")
	if err != nil {
		return shipment.CreateParams{}, err
	}
	delivery, err := req.Delivery.toStop("delivery")
	if err != nil {
		return shipment.CreateParams{}, err
	}
	return shipment.CreateParams{
		CargoName:           req.CargoName,
		CargoDescription:    req.CargoDescription,
		CargoWeight:         req.CargoWeight,
		CargoVolume:         req.CargoVolume,
		CargoValue:          req.CargoValue,
		Pickup:              pickup,
		Delivery:            delivery,
		RequiredVehicleType: req.RequiredVehicleType,
		NeedsHelper:         req.NeedsHelper,
		NeedsLiftGate:       req.NeedsLiftGate,
		Temperature:         req.Temperature,
		SpecialInstructions: req.SpecialInstructions,
		Budget:              req.Budget,
	}, nil
}

type updateShipmentRequest struct {
	Status              *shipment.Status `json:"status,omitempty"`
	CargoDescription    *string          `json:"cargoDescription,omitempty"`
	Temperature         *string          `json:"temperature,omitempty"`
	SpecialInstructions *string          `json:"specialInstructions,omitempty"`
}

type stopResponse struct {
	Address    string  `json:"address"`
	City       string  `json:"city"`
	Prefecture string  `json:"prefecture"`
	PostalCode string  `json:"postalCode"`
	Date       string  `json:"date"`
	TimeFrom   *string `json:"timeFrom,omitempty"`
	TimeTo     *string `json:"timeTo,omitempty"`
}

func newStopResponse(s shipment.Stop) stopResponse {
	return stopResponse{
		Address:    s.Address,
		City:       s.City,
		Prefecture: s.Prefecture,
		PostalCode: s.PostalCode,
		Date:       s.Date.Format(dateLayout),
		TimeFrom:   s.TimeFrom,
		TimeTo:     s.TimeTo,
	}
}

type shipmentResponse struct {
	ID                  string               `json:"id"`
	ShipperID           string               `json:"shipperId"`
	CarrierID           *string              `json:"carrierId"`
	Status              shipment.Status      `json:"status"`
	CargoName           string               `json:"cargoName"`
	CargoDescription    *string              `json:"cargoDescription,omitempty"`
	CargoWeight         decimal.Decimal      `json:"cargoWeight"`
	CargoVolume         *decimal.Decimal     `json:"cargoVolume,omitempty"`
	CargoValue          *decimal.Decimal     `json:"cargoValue,omitempty"`
	Pickup              stopResponse         `json:"pickup"`
	Delivery            stopResponse         `json:"delivery"`
	RequiredVehicleType shipment.VehicleType `json:"requiredVehicleType"`
	NeedsHelper         bool                 `json:"needsHelper"`
	NeedsLiftGate       bool                 `json:"needsLiftGate"`
	Temperature         *string              `json:"temperature,omitempty"`
	SpecialInstructions *string              `json:"specialInstructions,omitempty"`
	Budget              decimal.Decimal      `json:"budget"`
	CreatedAt           string               `json:"createdAt"`
	UpdatedAt           string               `json:"updatedAt"`
}

func newShipmentResponse(s shipment.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:                  s.ID,
		ShipperID:           s.ShipperID,
		CarrierID:           s.CarrierID,
		Status:              s.Status,
		CargoName:           s.CargoName,
		CargoDescription:    s.CargoDescription,
		CargoWeight:         s.CargoWeight,
		CargoVolume:         s.CargoVolume,
		CargoValue:          s.CargoValue,
		Pickup:              newStopResponse(s.Pickup),
		Delivery:            newStopResponse(s.Delivery),
		RequiredVehicleType: s.RequiredVehicleType,
		NeedsHelper:         s.NeedsHelper,
		NeedsLiftGate:       s.NeedsLiftGate,
		Temperature:         s.Temperature,
		SpecialInstructions: s.SpecialInstructions,
		Budget:              s.Budget,
		CreatedAt:           formatTime(s.CreatedAt),
		UpdatedAt:           formatTime(s.UpdatedAt),
	}
}

type statsResponse struct {
	Total     int                     `json:"total"`
	ByStatus  map[shipment.Status]int `json:"byStatus"`
	OpenValue decimal.Decimal         `json:"openValue"`
}

type offerResponse struct {
	ID                    string          `json:"id"`
	ShipmentID            string          `json:"shipmentId"`
	CarrierID             string          `json:"carrierId"`
	ProposedPrice         decimal.Decimal `json:"proposedPrice"`
	Message               *string         `json:"message,omitempty"`
	VehicleInfo           *string         `json:"vehicleInfo,omitempty"`
	EstimatedPickupTime   *string         `json:"estimatedPickupTime,omitempty"`
	EstimatedDeliveryTime *string         `json:"estimatedDeliveryTime,omitempty"`
	Status                offer.Status    `json:"status"`
	CreatedAt             string          `json:"createdAt"`
	UpdatedAt             string          `json:"updatedAt"`
}

func newOfferResponse(o offer.Offer) offerResponse {
	return offerResponse{
		ID:                    o.ID,
		ShipmentID:            o.ShipmentID,
		CarrierID:             o.CarrierID,
		ProposedPrice:         o.ProposedPrice,
		Message:               o.Message,
		VehicleInfo:           o.VehicleInfo,
		EstimatedPickupTime:   formatTimePtr(o.EstimatedPickupTime),
		EstimatedDeliveryTime: formatTimePtr(o.EstimatedDeliveryTime),
		Status:                o.Status,
		CreatedAt:             formatTime(o.CreatedAt),
		UpdatedAt:             formatTime(o.UpdatedAt),
	}
}

func newOfferResponses(items []offer.Offer) []offerResponse {
	out := make([]offerResponse, 0, len(items))
	for _, o := range items {
		out = append(out, newOfferResponse(o))
	}
	return out
}

type acceptResponse struct {
	Offer            offerResponse    `json:"offer"`
	Shipment         shipmentResponse `json:"shipment"`
	RejectedOfferIDs []string         `json:"rejectedOfferIds"`
}

func newAcceptResponse(res matching.AcceptResult) acceptResponse {
	ids := res.RejectedIDs()
	if ids == nil {
		ids = []string{}
	}
	return acceptResponse{
		Offer:            newOfferResponse(res.Offer),
		Shipment:         newShipmentResponse(res.Shipment),
		RejectedOfferIDs: ids,
	}
}

type ratingResponse struct {
	ID           string  `json:"id"`
	RaterID      string  `json:"raterId"`
	RaterCompany string  `json:"raterCompany,omitempty"`
	RatedUserID  string  `json:"ratedUserId"`
	ShipmentID   *string `json:"shipmentId,omitempty"`
	Score        int     `json:"score"`
	Comment      *string `json:"comment,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

func newRatingResponse(r rating.Rating) ratingResponse {
	return ratingResponse{
		ID:           r.ID,
		RaterID:      r.RaterID,
		RaterCompany: r.RaterCompany,
		RatedUserID:  r.RatedUserID,
		ShipmentID:   r.ShipmentID,
		Score:        r.Score,
		Comment:      r.Comment,
		CreatedAt:    formatTime(r.CreatedAt),
	}
}

type ratingSummaryResponse struct {
	Items   []ratingResponse `json:"items"`
	Average decimal.Decimal  `json:"average"`
	Total   int              `json:"total"`
}

type companyResponse struct {
	ID          string          `json:"id"`
	CompanyName string          `json:"companyName"`
	Role        auth.Role       `json:"role"`
	Verified    bool            `json:"verified"`
	TrustScore  decimal.Decimal `json:"trustScore"`
	RatingCount int             `json:"ratingCount"`
	CreatedAt   string          `json:"createdAt"`
}

func newCompanyResponse(p directory.Profile) companyResponse {
	return companyResponse{
		ID:          p.ID,
		CompanyName: p.CompanyName,
		Role:        p.Role,
		Verified:    p.Verified,
		TrustScore:  p.TrustScore,
		RatingCount: p.RatingCount,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

type verificationRequest struct {
	Decision auth.VerificationStatus `json:"decision"`
}

type verificationResponse struct {
	UserID             string                  `json:"userId"`
	VerificationStatus auth.VerificationStatus `json:"verificationStatus"`
}

type notificationResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	IsRead    bool           `json:"isRead"`
	ReadAt    *string        `json:"readAt,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

func newNotificationResponse(it notification.Item) notificationResponse {
	return notificationResponse{
		ID:        it.ID,
		Type:      it.Type,
		Title:     it.Title,
		Message:   it.Message,
		Payload:   it.Payload,
		IsRead:    it.IsRead,
		ReadAt:    formatTimePtr(it.ReadAt),
		CreatedAt: formatTime(it.CreatedAt),
	}
}

type broadcastRequest struct {
	Title    string                `json:"title"`
	Message  string                `json:"message"`
	Audience notification.Audience `json:"audience"`
	UserID   string                `json:"userId,omitempty"`
}
