package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"freightmatch/offer"
)

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.offerService.List(r.Context(), id, offer.Filter{
		ShipmentID: q.Get("shipmentId"),
		Status:     offer.Status(q.Get("status")),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": newOfferResponses(res.Items), "total": res.Total})
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	var params offer.CreateParams
	if err := decodeJSON(w, r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.offerService.Create(r.Context(), id, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfferResponse(created))
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	o, err := s.offerService.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferResponse(o))
}

// handleAcceptOffer is the matching entry point: the caller must own the
// offer's shipment.
func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	res, err := s.matchingEngine.Accept(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAcceptResponse(res))
}

func (s *Server) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	o, err := s.matchingEngine.Reject(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferResponse(o))
}
