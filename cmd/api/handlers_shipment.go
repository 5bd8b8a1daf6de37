package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"freightmatch/shipment"
)

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
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
	res, err := s.shipmentService.List(r.Context(), id, shipment.Filters{
		Status:             shipment.Status(q.Get("status")),
		PickupPrefecture:   q.Get("pickupPrefecture"),
		DeliveryPrefecture: q.Get("deliveryPrefecture"),
		VehicleType:        shipment.VehicleType(q.Get("vehicleType")),
		Keyword:            q.Get("keyword"),
		Page:               page,
		PageSize:           pageSize,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]shipmentResponse, 0, len(res.Items))
	for _, sh := range res.Items {
		items = append(items, newShipmentResponse(sh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": res.Total})
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	var req createShipmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	params, err := req.toParams()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.shipmentService.Create(r.Context(), id, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newShipmentResponse(created))
}

func (s *Server) handleShipmentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.shipmentService.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Total: stats.Total, ByStatus: stats.ByStatus, OpenValue: stats.OpenValue})
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.shipmentService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newShipmentResponse(sh))
}

func (s *Server) handleUpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	var req updateShipmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.shipmentService.Update(r.Context(), chi.URLParam(r, "id"), id, shipment.UpdateParams{
		Status:              req.Status,
		CargoDescription:    req.CargoDescription,
		Temperature:         req.Temperature,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newShipmentResponse(updated))
}

func (s *Server) handleDeleteShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	shipmentID := chi.URLParam(r, "id")
	if err := s.shipmentService.Delete(r.Context(), shipmentID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": shipmentID, "deleted": true})
}
