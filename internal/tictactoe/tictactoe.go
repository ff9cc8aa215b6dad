// Package tictactoe implements turn-based 3x3 games with validation,
// win/draw detection, and resignation. Games are not persisted; once a game
// reaches a terminal status it is removed from the active index.
package tictactoe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrIllegalArgument covers bad positions, non-participants, and off-board
// coordinates.
var ErrIllegalArgument = errors.New("tictactoe: illegal argument")

// ErrIllegalState covers out-of-turn moves, moves on a finished game, and
// starting a game when a player is already in one.
var ErrIllegalState = errors.New("tictactoe: illegal state")

// Mark is a board cell value.
type Mark byte

const (
	Empty Mark = 0
	X     Mark = 'X'
	O     Mark = 'O'
)

// Status is a game's lifecycle status.
type Status int

const (
	InProgress Status = iota
	WonX
	WonO
	Draw
	Resigned
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "IN_PROGRESS"
	case WonX:
		return "WON_X"
	case WonO:
		return "WON_O"
	case Draw:
		return "DRAW"
	case Resigned:
		return "RESIGNED"
	default:
		return "UNKNOWN"
	}
}

// LastMove records the most recent move applied to a game.
type LastMove struct {
	By       string
	Row, Col int
}

// Game is a single tic-tac-toe match. PlayerX is the initiator and always
// moves first.
type Game struct {
	ID          string
	PlayerX     string
	PlayerO     string
	Board       [3][3]Mark
	CurrentTurn string // empty once the game reaches a terminal status
	Status      Status
	Winner      string
	LastMove    *LastMove
}

// Notifier pushes a line to username's live TCP session, if any.
type Notifier func(username, line string)

// Presence reports whether username currently has a live presence entry,
// declared locally so this package never imports internal/presence
// directly. A nil Presence (e.g. in tests) skips the check.
type Presence func(username string) bool

// Engine is the Tic-Tac-Toe Engine. It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	games    map[string]*Game
	inGame   map[string]string // username -> active gameID
	notify   Notifier
	presence Presence
}

// NewEngine constructs an empty Engine. presence may be nil to skip the
// both-players-online check at Start (tests typically do this).
func NewEngine(notify Notifier, presence Presence) *Engine {
	return &Engine{
		games:    make(map[string]*Game),
		inGame:   make(map[string]string),
		notify:   notify,
		presence: presence,
	}
}

// Start creates a new game between initiator (X) and opponent (O).
func (e *Engine) Start(ctx context.Context, initiator, opponent string) (*Game, error) {
	if initiator == opponent {
		return nil, fmt.Errorf("%w: a player cannot play themselves", ErrIllegalArgument)
	}
	if e.presence != nil {
		if !e.presence(initiator) {
			return nil, fmt.Errorf("%w: initiator is not present", ErrIllegalArgument)
		}
		if !e.presence(opponent) {
			return nil, fmt.Errorf("%w: opponent is not present", ErrIllegalArgument)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inGame[initiator]; busy {
		return nil, fmt.Errorf("%w: initiator is already in a game", ErrIllegalState)
	}
	if _, busy := e.inGame[opponent]; busy {
		return nil, fmt.Errorf("%w: opponent is already in a game", ErrIllegalState)
	}

	g := &Game{
		ID:          uuid.NewString(),
		PlayerX:     initiator,
		PlayerO:     opponent,
		CurrentTurn: initiator,
		Status:      InProgress,
	}
	e.games[g.ID] = g
	e.inGame[initiator] = g.ID
	e.inGame[opponent] = g.ID

	e.fire(g, "TICTACTOE_START")
	return g, nil
}

// Move applies a move by player at (row, col).
func (e *Engine) Move(ctx context.Context, gameID, player string, row, col int) (*Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: game not found", ErrIllegalArgument)
	}
	if player != g.PlayerX && player != g.PlayerO {
		return nil, fmt.Errorf("%w: player is not a participant", ErrIllegalArgument)
	}
	if row < 0 || row > 2 || col < 0 || col > 2 {
		return nil, fmt.Errorf("%w: position off board", ErrIllegalArgument)
	}
	if g.Status != InProgress {
		return nil, fmt.Errorf("%w: game already finished", ErrIllegalState)
	}
	if g.CurrentTurn != player {
		return nil, fmt.Errorf("%w: not player's turn", ErrIllegalState)
	}
	if g.Board[row][col] != Empty {
		return nil, fmt.Errorf("%w: cell already occupied", ErrIllegalArgument)
	}

	mark := X
	if player == g.PlayerO {
		mark = O
	}
	g.Board[row][col] = mark
	g.LastMove = &LastMove{By: player, Row: row, Col: col}

	if winner := winningMark(g.Board); winner != Empty {
		g.Status = statusForWinner(winner)
		g.Winner = playerForMark(g, winner)
		e.finish(g)
	} else if boardFull(g.Board) {
		g.Status = Draw
		e.finish(g)
	} else if g.CurrentTurn == g.PlayerX {
		g.CurrentTurn = g.PlayerO
	} else {
		g.CurrentTurn = g.PlayerX
	}

	e.fire(g, "TICTACTOE_UPDATE")
	return g, nil
}

// Resign ends the game with player forfeiting.
func (e *Engine) Resign(ctx context.Context, gameID, player string) (*Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: game not found", ErrIllegalArgument)
	}
	if player != g.PlayerX && player != g.PlayerO {
		return nil, fmt.Errorf("%w: player is not a participant", ErrIllegalArgument)
	}
	if g.Status != InProgress {
		return nil, fmt.Errorf("%w: game already finished", ErrIllegalState)
	}

	g.Status = Resigned
	if player == g.PlayerX {
		g.Winner = g.PlayerO
	} else {
		g.Winner = g.PlayerX
	}
	e.finish(g)

	e.fire(g, "TICTACTOE_RESIGN")
	return g, nil
}

// CurrentGame returns the in-progress game user is a participant in, if
// any.
func (e *Engine) CurrentGame(user string) (*Game, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.inGame[user]
	if !ok {
		return nil, false
	}
	g, ok := e.games[id]
	return g, ok
}

// finish removes the game from the active index (must be called with e.mu
// held). The final Game snapshot remains valid for callers that already
// hold a reference, but new lookups by id fail.
func (e *Engine) finish(g *Game) {
	g.CurrentTurn = ""
	delete(e.games, g.ID)
	delete(e.inGame, g.PlayerX)
	delete(e.inGame, g.PlayerO)
}

func (e *Engine) fire(g *Game, event string) {
	if e.notify == nil {
		return
	}
	line := fmt.Sprintf("%s:%s:%s:%s:%s", event, g.ID, g.Status, g.CurrentTurn, g.Winner)
	e.notify(g.PlayerX, line)
	e.notify(g.PlayerO, line)
}

func playerForMark(g *Game, m Mark) string {
	if m == X {
		return g.PlayerX
	}
	return g.PlayerO
}

func statusForWinner(m Mark) Status {
	if m == X {
		return WonX
	}
	return WonO
}

var lines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{0, 2}, {1, 1}, {2, 0}},
}

func winningMark(board [3][3]Mark) Mark {
	for _, line := range lines {
		a, b, c := board[line[0][0]][line[0][1]], board[line[1][0]][line[1][1]], board[line[2][0]][line[2][1]]
		if a != Empty && a == b && b == c {
			return a
		}
	}
	return Empty
}

func boardFull(board [3][3]Mark) bool {
	for _, row := range board {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}
	return true
}
