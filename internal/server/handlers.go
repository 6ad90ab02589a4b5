package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type healthResponse struct {
	Status   string `json:"status"`
	Failures int64  `json:"storage_failures"`
	Servers  int64  `json:"servers"`
	Players  int64  `json:"players"`
}

// handleHealth reports 503 while storage is degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Failures: s.health.Failures()}
	code := http.StatusOK

	if s.health.Degraded() {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		servers, players, err := s.health.Counts(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to count rows for health check")
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		resp.Servers, resp.Players = servers, players
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
