package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"freightmatch/notification"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	page, err := s.inboxService.List(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]notificationResponse, 0, len(page.Items))
	for _, it := range page.Items {
		items = append(items, newNotificationResponse(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "unreadCount": page.UnreadCount})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	item, err := s.inboxService.MarkRead(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNotificationResponse(item))
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	if err := s.inboxService.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		s.writeError(w, r, errAuthRequired)
		return
	}
	var req broadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.inboxService.Broadcast(r.Context(), id, notification.BroadcastParams{
		Title:    req.Title,
		Message:  req.Message,
		Audience: req.Audience,
		UserID:   req.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"recipients": n})
}
