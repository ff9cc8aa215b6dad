package bridge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/whiteboard"
)

func (s *Server) registerWhiteboardRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/whiteboard/create", s.requireAuth(s.handleWhiteboardCreate))
	mux.HandleFunc("POST /api/whiteboard/draw", s.requireAuth(s.handleWhiteboardDraw))
	mux.HandleFunc("GET /api/whiteboard/session/{id}", s.requireAuth(s.handleWhiteboardSession))
	mux.HandleFunc("POST /api/whiteboard/close", s.requireAuth(s.handleWhiteboardClose))
	mux.HandleFunc("GET /api/whiteboard/pending/{user}", s.requireAuth(s.handleWhiteboardPending))
}

type whiteboardSessionDTO struct {
	SessionID   string `json:"sessionId"`
	Initiator   string `json:"initiator"`
	Participant string `json:"participant"`
}

type commandDTO struct {
	Type      string  `json:"type"`
	User      string  `json:"username"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
	Color     string  `json:"color"`
	Thickness float64 `json:"thickness"`
}

func toCommandDTO(c whiteboard.Command) commandDTO {
	kind := "DRAW"
	if c.Kind == whiteboard.KindClear {
		kind = "CLEAR"
	}
	return commandDTO{Type: kind, User: c.User, X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2, Color: c.Color, Thickness: c.Thickness}
}

func (s *Server) handleWhiteboardCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Initiator   string `json:"initiator"`
		Participant string `json:"participant"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	id, err := s.boards.Create(r.Context(), req.Initiator, req.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, whiteboardSessionDTO{SessionID: id, Initiator: req.Initiator, Participant: req.Participant})
}

func (s *Server) handleWhiteboardDraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string  `json:"sessionId"`
		Username  string  `json:"username"`
		Type      string  `json:"type"`
		X1        float64 `json:"x1"`
		Y1        float64 `json:"y1"`
		X2        float64 `json:"x2"`
		Y2        float64 `json:"y2"`
		Color     string  `json:"color"`
		Thickness float64 `json:"thickness"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var err error
	if strings.EqualFold(req.Type, "CLEAR") {
		_, err = s.boards.Clear(r.Context(), req.SessionID, req.Username)
	} else {
		_, err = s.boards.Draw(r.Context(), req.SessionID, req.Username, req.X1, req.Y1, req.X2, req.Y2, req.Color, req.Thickness)
	}
	if err != nil {
		writeWhiteboardError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWhiteboardSession(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")
	username := r.URL.Query().Get("username")
	cmds, err := s.boards.Commands(r.Context(), id, username)
	if err != nil {
		writeWhiteboardError(w, err)
		return
	}
	out := make([]commandDTO, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, toCommandDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": out, "count": len(out)})
}

func (s *Server) handleWhiteboardClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Username  string `json:"username"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.boards.Close(r.Context(), req.SessionID, req.Username); err != nil {
		writeWhiteboardError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWhiteboardPending(w http.ResponseWriter, r *http.Request) {
	user := pathValue(r, "user")
	sessions := s.boards.SessionsFor(user)
	out := make([]whiteboardSessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, whiteboardSessionDTO{SessionID: sess.ID, Initiator: sess.Initiator, Participant: sess.Participant})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeWhiteboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, whiteboard.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, whiteboard.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, whiteboard.ErrSamePair):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
