package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/tour"
)

// handleConnectionStatus returns the broker connection health snapshot.
func (s *Server) handleConnectionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.robot.Status())
}

// handleRobotState returns the last status string and pose reported by
// the robot.
func (s *Server) handleRobotState(w http.ResponseWriter, _ *http.Request) {
	if s.telemetry == nil {
		writeJSON(w, http.StatusOK, robot.Telemetry{Status: robot.InitialRobotState})
		return
	}
	writeJSON(w, http.StatusOK, s.telemetry.Snapshot())
}

// handleRobotConnect re-runs connect, typically after the reconnect
// supervisor has given up. Authentication continues in the background.
func (s *Server) handleRobotConnect(w http.ResponseWriter, r *http.Request) {
	err := s.robot.Connect(r.Context())
	s.recordAudit(r.Context(), audit.Entry{
		Action:  audit.ActionConnect,
		Source:  audit.SourceAPI,
		Outcome: audit.OutcomeOf(err),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"message": "connected, authenticating",
			"status":  s.robot.Status(),
		})
	case errors.Is(err, robot.ErrAlreadyConnected):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, robot.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, ErrCodeRobotFailed, "robot connection is shutting down")
	default:
		s.logger.Warn("manual robot connect failed", "error", err)
		writeRobotError(w, err, "connect failed")
	}
}

// handleTopics lists the topics known to the robot broker.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.robot.Topics(r.Context())
	if err != nil {
		s.logger.Warn("listing robot topics failed", "error", err)
		writeRobotError(w, err, "failed to fetch topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

// handleClientCount reads the number of clients connected to the broker.
func (s *Server) handleClientCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.robot.ClientCount(r.Context())
	if err != nil {
		s.logger.Warn("reading robot client count failed", "error", err)
		writeRobotError(w, err, "failed to read client count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

// handleSendGeneratedAudio uploads every POI narration of a tour, in POI
// order, without starting the tour.
func (s *Server) handleSendGeneratedAudio(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeRobotFailed, "audio streaming is not configured")
		return
	}
	t, paths, ok := s.tourAudio(w, r)
	if !ok {
		return
	}

	reports, err := s.audio.StreamFiles(r.Context(), paths)
	s.recordAudit(r.Context(), audit.Entry{
		Action:  audit.ActionSendAudio,
		TourID:  t.ID,
		Source:  audit.SourceAPI,
		Outcome: audit.OutcomeOf(err),
		Details: map[string]any{"files": len(paths), "sent": len(reports)},
	})
	if err != nil {
		s.logger.Warn("sending tour audio failed", "tour_id", t.ID, "error", err)
		writeRobotError(w, err, "failed to send audio")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tour_id": t.ID,
		"reports": reports,
	})
}

// handleStartTour streams the tour's narration and asks the robot to start.
func (s *Server) handleStartTour(w http.ResponseWriter, r *http.Request) {
	if s.starter == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeRobotFailed, "tour start is not configured")
		return
	}
	t, paths, ok := s.tourAudio(w, r)
	if !ok {
		return
	}

	s.logger.Info("starting tour", "tour_id", t.ID, "pois", len(paths), "user", claimsFromContext(r.Context()).Subject)
	result, err := s.starter.StartTour(r.Context(), paths)
	entry := audit.Entry{
		Action:  audit.ActionStartTour,
		TourID:  t.ID,
		Source:  audit.SourceAPI,
		Outcome: audit.OutcomeOf(err),
	}
	if result != nil {
		entry.Details = map[string]any{"phase": result.Phase}
	}
	s.recordAudit(r.Context(), entry)
	if err != nil {
		s.logger.Warn("tour start failed", "tour_id", t.ID, "error", err)
		status, code := robotErrorStatus(err)
		body := map[string]any{
			"status":  status,
			"code":    code,
			"message": err.Error(),
			"tour_id": t.ID,
		}
		if result != nil {
			body["phase"] = result.Phase
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tour_id": t.ID,
		"phase":   result.Phase,
		"reports": result.Reports,
	})
}

// tourAudio loads the tour named in the URL and resolves its audio files.
// It writes the error response itself and reports false on failure.
func (s *Server) tourAudio(w http.ResponseWriter, r *http.Request) (*tour.Tour, []string, bool) {
	t, err := s.tours.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, tour.ErrTourNotFound) {
			writeNotFound(w, "tour not found")
			return nil, nil, false
		}
		s.logger.Error("loading tour failed", "error", err)
		writeInternalError(w, "failed to load tour")
		return nil, nil, false
	}
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "audio library is not configured")
		return nil, nil, false
	}

	paths, err := s.library.Paths(t)
	switch {
	case err == nil:
		return t, paths, true
	case errors.Is(err, tour.ErrAudioMissing):
		writeError(w, http.StatusConflict, ErrCodeConflict, "tour audio has not been generated: "+err.Error())
	case errors.Is(err, tour.ErrInvalidAudioPath):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, "failed to resolve tour audio")
	}
	return nil, nil, false
}
