package bridge

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/voice"
)

func (s *Server) registerVoiceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/voice/initiate", s.requireAuth(s.handleVoiceInitiate))
	mux.HandleFunc("POST /api/voice/accept/{id}", s.requireAuth(s.handleVoiceAccept))
	mux.HandleFunc("POST /api/voice/reject/{id}", s.requireAuth(s.handleVoiceReject))
	mux.HandleFunc("POST /api/voice/terminate/{id}", s.requireAuth(s.handleVoiceTerminate))
	mux.HandleFunc("GET /api/voice/status/{id}", s.requireAuth(s.handleVoiceStatus))
	mux.HandleFunc("GET /api/voice/incoming", s.requireAuth(s.handleVoiceIncoming))
	mux.HandleFunc("GET /api/voice/config", s.handleVoiceConfig)
	mux.HandleFunc("POST /api/voice/sdp/offer/{id}", s.requireAuth(s.handleVoiceSetOffer))
	mux.HandleFunc("GET /api/voice/sdp/offer/{id}", s.requireAuth(s.handleVoiceGetOffer))
	mux.HandleFunc("POST /api/voice/sdp/answer/{id}", s.requireAuth(s.handleVoiceSetAnswer))
	mux.HandleFunc("GET /api/voice/sdp/answer/{id}", s.requireAuth(s.handleVoiceGetAnswer))
}

type sessionDescriptorDTO struct {
	ID            int64  `json:"sessionId"`
	Initiator     string `json:"initiator"`
	Target        string `json:"target"`
	InitiatorIP   string `json:"initiatorIp"`
	InitiatorPort int    `json:"initiatorPort"`
	TargetIP      string `json:"targetIp"`
	TargetPort    int    `json:"targetPort"`
	State         string `json:"state"`
}

func toSessionDescriptorDTO(sess *voice.Session) sessionDescriptorDTO {
	return sessionDescriptorDTO{
		ID: sess.ID, Initiator: sess.Initiator, Target: sess.Target,
		InitiatorIP: sess.InitiatorIP, InitiatorPort: sess.InitiatorPort,
		TargetIP: sess.TargetIP, TargetPort: sess.TargetPort,
		State: sess.State.String(),
	}
}

func parseSessionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(pathValue(r, "id"), 10, 64)
}

func (s *Server) handleVoiceInitiate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Initiator    string `json:"initiator"`
		Target       string `json:"target"`
		LocalUDPPort int    `json:"localUdpPort"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sess, err := s.voice.Initiate(r.Context(), req.Initiator, req.Target, clientIP(r), req.LocalUDPPort)
	if err != nil {
		writeVoiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"targetIp":   sess.TargetIP,
		"targetPort": sess.TargetPort,
		"sessionId":  sess.ID,
	})
}

func (s *Server) handleVoiceAccept(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	var req struct {
		Accepter     string `json:"accepter"`
		LocalUDPPort int    `json:"localUdpPort"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sess, err := s.voice.Accept(r.Context(), id, req.Accepter, req.LocalUDPPort)
	if err != nil {
		writeVoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDescriptorDTO(sess))
}

func (s *Server) handleVoiceReject(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	user := r.URL.Query().Get("user")
	if err := s.voice.Reject(r.Context(), id, user); err != nil {
		writeVoiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoiceTerminate(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	user := usernameFromContext(r.Context())
	if err := s.voice.Terminate(r.Context(), id, user); err != nil {
		writeVoiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	sess, err := s.voice.GetSession(id)
	if err != nil {
		writeVoiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDescriptorDTO(sess))
}

func (s *Server) handleVoiceIncoming(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		user = usernameFromContext(r.Context())
	}
	sessions := s.voice.GetIncoming(user)
	out := make([]sessionDescriptorDTO, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionDescriptorDTO(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVoiceConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sampleRate":       16000,
		"channels":         1,
		"bitsPerSample":    16,
		"packetDurationMs": 20,
	})
}

func (s *Server) handleVoiceSetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	var req struct {
		SDP string `json:"sdp"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.voice.SetInitiatorOffer(id, req.SDP); err != nil {
		writeVoiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoiceGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	sess, err := s.voice.GetSession(id)
	if err != nil {
		writeVoiceError(w, err)
		return
	}
	if sess.InitiatorOffer == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sdp": sess.InitiatorOffer})
}

func (s *Server) handleVoiceSetAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	var req struct {
		SDP string `json:"sdp"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.voice.SetTargetAnswer(id, req.SDP); err != nil {
		writeVoiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoiceGetAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed session id")
		return
	}
	sess, err := s.voice.GetSession(id)
	if err != nil {
		writeVoiceError(w, err)
		return
	}
	if sess.TargetAnswer == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sdp": sess.TargetAnswer})
}

func writeVoiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, voice.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, voice.ErrSameUser), errors.Is(err, voice.ErrTargetOffline), errors.Is(err, voice.ErrNotRinging):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, voice.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, voice.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
