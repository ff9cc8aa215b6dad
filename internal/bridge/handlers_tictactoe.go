package bridge

import (
	"errors"
	"net/http"

	"github.com/Lakshan1806/Nexus-Connect-sub000/internal/tictactoe"
)

func (s *Server) registerTicTacToeRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tictactoe/start", s.requireAuth(s.handleTicTacToeStart))
	mux.HandleFunc("POST /api/tictactoe/move/{id}", s.requireAuth(s.handleTicTacToeMove))
	mux.HandleFunc("POST /api/tictactoe/resign/{id}", s.requireAuth(s.handleTicTacToeResign))
	mux.HandleFunc("GET /api/tictactoe/current", s.requireAuth(s.handleTicTacToeCurrent))
}

type gameStateDTO struct {
	ID          string     `json:"id"`
	PlayerX     string     `json:"playerX"`
	PlayerO     string     `json:"playerO"`
	Board       [3][3]byte `json:"board"`
	CurrentTurn string     `json:"currentTurn"`
	Status      string     `json:"status"`
	Winner      string     `json:"winner"`
}

func toGameStateDTO(g *tictactoe.Game) gameStateDTO {
	var board [3][3]byte
	for i := range g.Board {
		for j := range g.Board[i] {
			board[i][j] = byte(g.Board[i][j])
		}
	}
	return gameStateDTO{
		ID: g.ID, PlayerX: g.PlayerX, PlayerO: g.PlayerO, Board: board,
		CurrentTurn: g.CurrentTurn, Status: g.Status.String(), Winner: g.Winner,
	}
}

func (s *Server) handleTicTacToeStart(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())
	var req struct {
		Opponent string `json:"opponent"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	g, err := s.ttt.Start(r.Context(), username, req.Opponent)
	if err != nil {
		writeTicTacToeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGameStateDTO(g))
}

func (s *Server) handleTicTacToeMove(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())
	id := pathValue(r, "id")
	var req struct {
		Row int `json:"row"`
		Col int `json:"col"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	g, err := s.ttt.Move(r.Context(), id, username, req.Row, req.Col)
	if err != nil {
		writeTicTacToeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGameStateDTO(g))
}

func (s *Server) handleTicTacToeResign(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())
	id := pathValue(r, "id")
	g, err := s.ttt.Resign(r.Context(), id, username)
	if err != nil {
		writeTicTacToeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGameStateDTO(g))
}

func (s *Server) handleTicTacToeCurrent(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())
	g, ok := s.ttt.CurrentGame(username)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toGameStateDTO(g))
}

func writeTicTacToeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tictactoe.ErrIllegalArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tictactoe.ErrIllegalState):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
