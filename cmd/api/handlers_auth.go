package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"freightmatch/auth"
	"freightmatch/directory"
	"freightmatch/rating"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		s.log().Warn("health check failed",
			"event", "health_check_failed",
			"module", "api",
			"layer", "handler",
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    res.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: newUserResponse(&res.User)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	user, err := s.authService.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	profiles, err := s.directoryService.List(r.Context(), directory.Filter{
		Role:  auth.Role(q.Get("role")),
		Query: q.Get("q"),
		Limit: limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]companyResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, newCompanyResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	profile, err := s.directoryService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCompanyResponse(profile))
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ratingService.ListForUser(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]ratingResponse, 0, len(summary.Items))
	for _, rt := range summary.Items {
		items = append(items, newRatingResponse(rt))
	}
	writeJSON(w, http.StatusOK, ratingSummaryResponse{Items: items, Average: summary.Average, Total: summary.Total})
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	var params rating.SubmitParams
	if err := decodeJSON(w, r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.ratingService.Submit(r.Context(), id, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRatingResponse(created))
}

func (s *Server) handleReviewVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	var req verificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "id")
	if err := s.verificationService.Review(r.Context(), id, userID, req.Decision); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verificationResponse{UserID: userID, VerificationStatus: req.Decision})
}
