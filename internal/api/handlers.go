package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goodtune/kwell/internal/lifecycle"
	"github.com/goodtune/kwell/internal/platform"
	"github.com/goodtune/kwell/internal/stats"
	"github.com/goodtune/kwell/internal/tracker"
)

type contextKey string

const engineKey contextKey = "engine"

// SessionRequest signs a user in.
type SessionRequest struct {
	UserID string `json:"userId"`
}

// FocusRequest starts a focus session. TargetMinutes > 0 plans a block that
// ends on its own.
type FocusRequest struct {
	Category      string  `json:"category"`
	TargetMinutes float64 `json:"targetMinutes,omitempty"`
}

// FocusResponse describes a completed focus session.
type FocusResponse struct {
	ID              string    `json:"id"`
	Category        string    `json:"category"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes float64   `json:"durationMinutes"`
}

// LifecycleRequest reports an app state transition.
type LifecycleRequest struct {
	State string `json:"state"`
}

// WeeklyResponse wraps the seven-day view.
type WeeklyResponse struct {
	Days []stats.WeeklyEntry `json:"days"`
}

// requestUser picks the acting user from the header or query string.
func requestUser(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

// requireEngine resolves the user's engine. Without an explicit user the
// single signed-in user is assumed.
func (s *Server) requireEngine(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			engine *tracker.Engine
			ok     bool
		)
		if userID := requestUser(r); userID != "" {
			engine, ok = s.manager.Engine(userID)
		} else {
			engine, ok = s.manager.Only()
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "No signed-in user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), engineKey, engine)))
	})
}

func engineFrom(r *http.Request) *tracker.Engine {
	return r.Context().Value(engineKey).(*tracker.Engine)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = requestUser(r)
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	engine, err := s.manager.SignIn(r.Context(), req.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to sign in")
		writeError(w, http.StatusInternalServerError, "Failed to start tracking")
		return
	}

	writeJSON(w, http.StatusCreated, engine.Today())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		if engine, ok := s.manager.Only(); ok {
			userID = engine.UserID()
		}
	}

	if err := s.manager.SignOut(userID); err != nil {
		if errors.Is(err, tracker.ErrNotSignedIn) {
			writeError(w, http.StatusNotFound, "User not signed in")
			return
		}
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Sign-out finished with errors")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engineFrom(r).Today())
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WeeklyResponse{Days: engineFrom(r).Weekly()})
}

func (s *Server) handleStartFocus(w http.ResponseWriter, r *http.Request) {
	var req FocusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TargetMinutes < 0 {
		writeError(w, http.StatusBadRequest, "targetMinutes must not be negative")
		return
	}

	target := time.Duration(req.TargetMinutes * float64(time.Minute))
	snap, err := engineFrom(r).StartFocusSession(strings.TrimSpace(req.Category), target)
	switch {
	case errors.Is(err, tracker.ErrFocusActive):
		writeError(w, http.StatusConflict, "A focus session is already active")
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleEndFocus(w http.ResponseWriter, r *http.Request) {
	res, err := engineFrom(r).EndFocusSession()
	if errors.Is(err, tracker.ErrNoFocus) {
		writeError(w, http.StatusNotFound, "No active focus session")
		return
	}

	writeJSON(w, http.StatusOK, FocusResponse{
		ID:              res.ID,
		Category:        res.Category,
		StartTime:       res.Start,
		EndTime:         res.End,
		DurationMinutes: res.Duration.Minutes(),
	})
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req LifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	event, err := lifecycle.ParseEvent(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := engineFrom(r)
	if err := s.manager.Publish(engine.UserID(), event); err != nil {
		writeError(w, http.StatusNotFound, "User not signed in")
		return
	}
	writeJSON(w, http.StatusOK, engine.Today())
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	granted, err := engineFrom(r).RequestPermissions(r.Context())
	switch {
	case errors.Is(err, platform.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Usage access was not granted")
		return
	case errors.Is(err, platform.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Usage tracking is not available on this device")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}
