package bridge

import (
	"errors"
	"net/http"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/chatcore"
	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/presence"
)

func (s *Server) registerNioRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/nio/login", s.requireAuth(s.handleNioLogin))
	mux.HandleFunc("POST /api/nio/logout", s.requireAuth(s.handleNioLogout))
	mux.HandleFunc("POST /api/nio/message", s.requireAuth(s.handleNioMessage))
	mux.HandleFunc("GET /api/nio/users", s.requireAuth(s.handleNioUsers))
	mux.HandleFunc("GET /api/nio/messages", s.requireAuth(s.handleNioMessages))
	mux.HandleFunc("GET /api/nio/peer/{user}", s.requireAuth(s.handleNioPeer))
}

type onlineUserDTO struct {
	User     string `json:"user"`
	IP       string `json:"ip"`
	FileTCP  int    `json:"fileTcp"`
	VoiceUDP int    `json:"voiceUdp"`
	ViaNio   bool   `json:"viaNio"`
}

func toOnlineUserDTO(e presence.Entry) onlineUserDTO {
	return onlineUserDTO{User: e.Username, IP: e.IP, FileTCP: e.FileTCP, VoiceUDP: e.VoiceUDP, ViaNio: e.ViaNio}
}

type chatMessageDTO struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func toChatMessageDTO(m chatcore.Message) chatMessageDTO {
	return chatMessageDTO{From: m.From, Text: m.Text, Timestamp: m.Timestamp}
}

func (s *Server) handleNioLogin(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())

	var req struct {
		FileTCP    int    `json:"fileTcp"`
		VoiceUDP   int    `json:"voiceUdp"`
		IPOverride string `json:"ipOverride"`
	}
	_ = readJSON(r, &req)

	ip := clientIP(r)
	if req.IPOverride != "" {
		ip = req.IPOverride
	}
	fileTCP, voiceUDP := -1, -1
	if req.FileTCP > 0 {
		fileTCP = req.FileTCP
	}
	if req.VoiceUDP > 0 {
		voiceUDP = req.VoiceUDP
	}

	prev := s.presence.Login(r.Context(), presence.Entry{
		Username: username,
		IP:       ip,
		FileTCP:  fileTCP,
		VoiceUDP: voiceUDP,
		ViaNio:   false,
		Anchor:   newHTTPAnchor(),
	})
	if prev != nil {
		prev.Anchor.Close()
	}

	if fileTCP > 0 && s.fileXfer != nil {
		if err := s.fileXfer.Start(r.Context(), username, fileTCP); err != nil {
			s.logger.WarnContext(r.Context(), "bridge: failed to start file transfer listener", "user", username, "err", err)
		}
	}

	snapshot := s.presence.Snapshot()
	users := make([]onlineUserDTO, 0, len(snapshot))
	for _, e := range snapshot {
		users = append(users, toOnlineUserDTO(e))
	}
	recent := s.chat.Recent()
	messages := make([]chatMessageDTO, 0, len(recent))
	for _, m := range recent {
		messages = append(messages, toChatMessageDTO(m))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"user":     username,
		"users":    users,
		"messages": messages,
	})
}

func (s *Server) handleNioLogout(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())

	entry, ok := s.presence.FindPeer(username)
	if !ok {
		writeError(w, http.StatusNotFound, "user is not logged in")
		return
	}

	// Read the entry's own anchor and hand it straight back as the expected
	// value (a compare-and-delete), rather than minting a fresh httpAnchor:
	// a freshly-minted one would never equal the one Login actually stored,
	// and reusing the same zero-identity value for every login would let a
	// stale HTTP login's logout evict a newer one for the same user. The
	// type assertion still guards the cross-transport case untouched.
	anchor, isHTTP := entry.Anchor.(httpAnchor)
	if !isHTTP {
		writeError(w, http.StatusConflict, "presence is anchored to a TCP session")
		return
	}
	if s.presence.Logout(r.Context(), username, anchor) && s.fileXfer != nil {
		s.fileXfer.Stop(username)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNioMessage(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())

	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	msg, err := s.chat.Broadcast(r.Context(), username, req.Text)
	if err != nil {
		if errors.Is(err, chatcore.ErrNotLoggedIn) {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"message":  toChatMessageDTO(msg),
	})
}

func (s *Server) handleNioUsers(w http.ResponseWriter, r *http.Request) {
	snapshot := s.presence.Snapshot()
	users := make([]onlineUserDTO, 0, len(snapshot))
	for _, e := range snapshot {
		users = append(users, toOnlineUserDTO(e))
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleNioMessages(w http.ResponseWriter, r *http.Request) {
	recent := s.chat.Recent()
	messages := make([]chatMessageDTO, 0, len(recent))
	for _, m := range recent {
		messages = append(messages, toChatMessageDTO(m))
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleNioPeer(w http.ResponseWriter, r *http.Request) {
	target := pathValue(r, "user")
	entry, ok := s.presence.FindPeer(target)
	if !ok {
		writeError(w, http.StatusNotFound, "user is offline")
		return
	}
	writeJSON(w, http.StatusOK, toOnlineUserDTO(entry))
}
