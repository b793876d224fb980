package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"finwatch/internal/log"
	"finwatch/internal/notify"
)

const (
	maxBodyBytes      = 1 << 10
	maxNotificationID = 256
	readyCheckTimeout = 2 * time.Second
)

// service resolves the caller's notification service, writing the error
// response itself when it cannot.
func (s *Server) service(w http.ResponseWriter, r *http.Request) (*notify.Service, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		UnauthorizedError(r, "authentication required").Write(w)
		return nil, false
	}
	svc, err := s.sessions.Get(r.Context(), userID)
	if err != nil {
		s.events.LogError(r.Context(), "Failed to open session", err, log.ComponentSession, "open", log.NewFields().WithUser(userID))
		ServiceUnavailableError(r, "notifications are temporarily unavailable").Write(w)
		return nil, false
	}
	return svc, true
}

func notificationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := sanitizeInput(chi.URLParam(r, "id"))
	if id == "" || len(id) > maxNotificationID {
		BadRequestError(r, "invalid notification id").Write(w)
		return "", false
	}
	return id, true
}

// handleList handles GET /api/v1/notifications
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(svc.Snapshot()).Write(w)
}

type unreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// handleUnreadCount handles GET /api/v1/notifications/unread-count
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(unreadCountResponse{UnreadCount: svc.UnreadCount()}).Write(w)
}

// handleMarkAsRead handles POST /api/v1/notifications/{id}/read
func (s *Server) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	s.mutateOne(w, r, log.OpMarkRead, (*notify.Service).MarkAsRead)
}

// handleClear handles POST /api/v1/notifications/{id}/clear
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mutateOne(w, r, log.OpClear, (*notify.Service).Clear)
}

func (s *Server) mutateOne(w http.ResponseWriter, r *http.Request, op string, fn func(*notify.Service, context.Context, string) error) {
	id, ok := notificationID(w, r)
	if !ok {
		return
	}
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	if err := fn(svc, r.Context(), id); err != nil {
		if errors.Is(err, notify.ErrUnknownNotification) {
			NotFoundError(r, "notification not found").Write(w)
			return
		}
		s.events.LogError(r.Context(), "Notification mutation failed", err, log.ComponentHTTP, op,
			log.NewFields().WithUser(svc.UserID()).WithNotification(id))
		InternalServerError(r, "failed to update notification").Write(w)
		return
	}
	NewJSONResponse().Body(svc.Snapshot()).Write(w)
}

// handleMarkAllAsRead handles POST /api/v1/notifications/read-all
func (s *Server) handleMarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	svc.MarkAllAsRead()
	NewJSONResponse().Body(svc.Snapshot()).Write(w)
}

// handleClearAll handles POST /api/v1/notifications/clear-all
func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	svc.ClearAll(r.Context())
	NewJSONResponse().Body(svc.Snapshot()).Write(w)
}

// handleToggleUrgentOnly handles POST /api/v1/notifications/urgent-only/toggle
func (s *Server) handleToggleUrgentOnly(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	svc.ToggleUrgentOnly(r.Context())
	NewJSONResponse().Body(svc.Snapshot()).Write(w)
}

type urgentOnlyRequest struct {
	UrgentOnly *bool `json:"urgent_only"`
}

// handleSetUrgentOnly handles PUT /api/v1/notifications/urgent-only
func (s *Server) handleSetUrgentOnly(w http.ResponseWriter, r *http.Request) {
	var req urgentOnlyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.UrgentOnly == nil {
		BadRequestError(r, `body must be {"urgent_only": true|false}`).Write(w)
		return
	}
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	svc.SetUrgentOnly(r.Context(), *req.UrgentOnly)
	NewJSONResponse().Body(svc.Snapshot()).Write(w)
}

type refreshResponse struct {
	notify.Snapshot
	Refreshed bool `json:"refreshed"`
}

// handleRefresh handles POST /api/v1/notifications/refresh. A failed or
// superseded aggregation still answers 200 with the feed currently shown.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.service(w, r)
	if !ok {
		return
	}
	err := svc.Refresh(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, notify.ErrStaleAggregation):
		err = nil
	default:
		log.FromContext(r.Context()).WarnContext(r.Context(), "Manual refresh failed",
			log.FieldOperation, log.OpRefresh, log.FieldError, err)
	}
	NewJSONResponse().Body(refreshResponse{Snapshot: svc.Snapshot(), Refreshed: err == nil}).Write(w)
}

// handleLogout handles DELETE /api/v1/session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		UnauthorizedError(r, "authentication required").Write(w)
		return
	}
	closed := s.sessions.Logout(userID)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Session logout",
		log.FieldUserID, userID, "had_session", closed)
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(healthResponse{Status: "ok"}).Write(w)
}

// handleReady runs every backend check; any failure makes the instance
// unready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unready"
			status = http.StatusServiceUnavailable
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				"check", name, log.FieldError, err)
			continue
		}
		resp.Checks[name] = "ok"
	}
	NewJSONResponse().Status(status).Body(resp).Write(w)
}
