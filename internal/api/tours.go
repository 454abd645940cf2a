package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/museum-robotics/tourguide-core/internal/tour"
)

// handleListTours returns every tour ordered by start time.
func (s *Server) handleListTours(w http.ResponseWriter, r *http.Request) {
	tours, err := s.tours.List(r.Context())
	if err != nil {
		s.logger.Error("listing tours failed", "error", err)
		writeInternalError(w, "failed to list tours")
		return
	}
	if tours == nil {
		tours = []tour.Tour{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tours": tours,
		"count": len(tours),
	})
}

// handleGetTour returns one tour with its points of interest.
func (s *Server) handleGetTour(w http.ResponseWriter, r *http.Request) {
	t, err := s.tours.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, tour.ErrTourNotFound) {
			writeNotFound(w, "tour not found")
			return
		}
		s.logger.Error("loading tour failed", "error", err)
		writeInternalError(w, "failed to load tour")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
