package api

import (
	"net/http"

	"github.com/dgallion1/brsrform/internal/stats"
)

type persistenceStatsResponse struct {
	Sessions int                     `json:"sessions"`
	Windows  map[string]stats.Window `json:"windows"`
}

// handlePersistenceStats reports load/save latency over the stats window.
func (s *Server) handlePersistenceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, persistenceStatsResponse{
		Sessions: s.sessions.Len(),
		Windows:  s.latency.Snapshot(),
	})
}
