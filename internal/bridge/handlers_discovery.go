package bridge

import "net/http"

func (s *Server) registerDiscoveryRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/discovery/broadcast", s.requireAuth(s.handleDiscoveryBroadcast))
	mux.HandleFunc("GET /api/discovery/peers", s.requireAuth(s.handleDiscoveryPeers))
}

func (s *Server) handleDiscoveryBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}
	var req struct {
		Username       string `json:"username"`
		AdditionalInfo string `json:"additionalInfo"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.discovery.Announce(r.Context(), req.Username, req.AdditionalInfo); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDiscoveryPeers(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeJSON(w, http.StatusOK, []DiscoveredPeer{})
		return
	}
	writeJSON(w, http.StatusOK, s.discovery.Peers())
}
