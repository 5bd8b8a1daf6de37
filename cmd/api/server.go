package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"freightmatch/auth"
	"freightmatch/directory"
	"freightmatch/matching"
	"freightmatch/notification"
	"freightmatch/offer"
	"freightmatch/rating"
	"freightmatch/shipment"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyToken(token string) (auth.Identity, error)
}

type shipmentService interface {
	Create(ctx context.Context, caller auth.Identity, params shipment.CreateParams) (shipment.Shipment, error)
	List(ctx context.Context, caller auth.Identity, filters shipment.Filters) (shipment.ListResult, error)
	Get(ctx context.Context, id string) (shipment.Shipment, error)
	Update(ctx context.Context, id string, caller auth.Identity, params shipment.UpdateParams) (shipment.Shipment, error)
	Delete(ctx context.Context, id string, caller auth.Identity) error
	Stats(ctx context.Context) (shipment.Stats, error)
}

type offerService interface {
	Create(ctx context.Context, caller auth.Identity, params offer.CreateParams) (offer.Offer, error)
	List(ctx context.Context, caller auth.Identity, filter offer.Filter) (offer.ListResult, error)
	Get(ctx context.Context, caller auth.Identity, id string) (offer.Offer, error)
}

type matchingEngine interface {
	Accept(ctx context.Context, offerID, callerID string) (matching.AcceptResult, error)
	Reject(ctx context.Context, offerID, callerID string) (offer.Offer, error)
}

type ratingService interface {
	Submit(ctx context.Context, caller auth.Identity, params rating.SubmitParams) (rating.Rating, error)
	ListForUser(ctx context.Context, userID string) (rating.Summary, error)
}

type directoryService interface {
	GetByID(ctx context.Context, id string) (directory.Profile, error)
	List(ctx context.Context, filter directory.Filter) ([]directory.Profile, error)
}

type verificationService interface {
	Review(ctx context.Context, caller auth.Identity, userID string, decision auth.VerificationStatus) error
}

type inboxService interface {
	List(ctx context.Context, userID string) (notification.InboxPage, error)
	MarkRead(ctx context.Context, userID, id string) (notification.Item, error)
	Delete(ctx context.Context, userID, id string) error
	Broadcast(ctx context.Context, caller auth.Identity, params notification.BroadcastParams) (int, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP surface to the domain services.
type Server struct {
	authService         authService
	shipmentService     shipmentService
	offerService        offerService
	matchingEngine      matchingEngine
	ratingService       ratingService
	directoryService    directoryService
	verificationService verificationService
	inboxService        inboxService
	health              pinger

	logger         *slog.Logger
	storageTimeout time.Duration
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// routes builds the router. Public reads sit outside the authenticated group.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withStorageTimeout)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/companies", s.handleCompanies)
		r.Get("/companies/{id}", s.handleCompany)
		r.Get("/ratings", s.handleListRatings)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.handleMe)

			r.Get("/shipments", s.handleListShipments)
			r.Post("/shipments", s.handleCreateShipment)
			r.Get("/shipments/stats", s.handleShipmentStats)
			r.Get("/shipments/{id}", s.handleGetShipment)
			r.Patch("/shipments/{id}", s.handleUpdateShipment)
			r.Delete("/shipments/{id}", s.handleDeleteShipment)

			r.Get("/offers", s.handleListOffers)
			r.Post("/offers", s.handleCreateOffer)
			r.Get("/offers/{id}", s.handleGetOffer)
			r.Post("/offers/{id}/accept", s.handleAcceptOffer)
			r.Post("/offers/{id}/reject", s.handleRejectOffer)

			r.Post("/ratings", s.handleSubmitRating)

			r.Get("/notifications", s.handleListNotifications)
			r.Put("/notifications/{id}", s.handleMarkNotificationRead)
			r.Delete("/notifications/{id}", s.handleDeleteNotification)

			r.Post("/admin/users/{id}/verification", s.handleReviewVerification)
			r.Post("/admin/notifications", s.handleBroadcast)
		})
	})
	return r
}
