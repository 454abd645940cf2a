package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
)

// recordAudit stores e with the caller's subject. Failures are logged and
// never reach the caller.
func (s *Server) recordAudit(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	if claims := claimsFromContext(ctx); claims != nil && e.UserID == "" {
		e.UserID = claims.Subject
	}
	if err := s.audit.Create(context.WithoutCancel(ctx), &e); err != nil {
		s.logger.Warn("recording audit entry failed", "action", e.Action, "error", err)
	}
}

// moveRobot is the hub's move handler: it publishes the goal and audits it.
func (s *Server) moveRobot(ctx context.Context, goal robot.PoseSample) error {
	err := s.robot.SendMoveCommand(ctx, goal)
	s.recordAudit(ctx, audit.Entry{
		Action:  audit.ActionMove,
		Source:  audit.SourceDashboard,
		Outcome: audit.OutcomeOf(err),
		Details: map[string]any{"x": goal.X, "y": goal.Y, "z": goal.Z, "w": goal.W},
	})
	return err
}

// handleListAudit returns the robot command history, most recent first.
// Query parameters: action, tour_id, user_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "audit trail is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		TourID: q.Get("tour_id"),
		UserID: q.Get("user_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, name+" must be an integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
