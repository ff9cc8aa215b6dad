package tictactoe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsSelfPlayAndBusyPlayers(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	_, err := e.Start(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = e.Start(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = e.Start(ctx, "alice", "carol")
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestMoveValidation(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)
	g, err := e.Start(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = e.Move(ctx, g.ID, "mallory", 0, 0)
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = e.Move(ctx, g.ID, "alice", 5, 0)
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = e.Move(ctx, g.ID, "bob", 0, 0)
	assert.ErrorIs(t, err, ErrIllegalState) // not bob's turn

	got, err := e.Move(ctx, g.ID, "alice", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.CurrentTurn)

	_, err = e.Move(ctx, g.ID, "bob", 0, 0)
	assert.ErrorIs(t, err, ErrIllegalArgument) // occupied cell
}

func TestWinDetection(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)
	g, err := e.Start(ctx, "alice", "bob")
	require.NoError(t, err)

	// alice(X) takes row 0, bob(O) takes row 1, alternating turns.
	moves := []struct {
		player   string
		row, col int
	}{
		{"alice", 0, 0}, {"bob", 1, 0},
		{"alice", 0, 1}, {"bob", 1, 1},
		{"alice", 0, 2}, // alice completes top row
	}
	var last *Game
	for _, m := range moves {
		last, err = e.Move(ctx, g.ID, m.player, m.row, m.col)
		require.NoError(t, err)
	}
	assert.Equal(t, WonX, last.Status)
	assert.Equal(t, "alice", last.Winner)
	assert.Empty(t, last.CurrentTurn)

	_, err = e.Move(ctx, g.ID, "bob", 2, 2)
	assert.ErrorIs(t, err, ErrIllegalArgument) // game no longer tracked
}

func TestResign(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)
	g, err := e.Start(ctx, "alice", "bob")
	require.NoError(t, err)

	got, err := e.Resign(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, Resigned, got.Status)
	assert.Equal(t, "bob", got.Winner)
}

func TestDraw(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)
	g, err := e.Start(ctx, "alice", "bob")
	require.NoError(t, err)

	// X O X
	// X O O
	// O X X   -> full board, no winner
	seq := []struct {
		player   string
		row, col int
	}{
		{"alice", 0, 0}, {"bob", 0, 1},
		{"alice", 0, 2}, {"bob", 1, 1},
		{"alice", 1, 0}, {"bob", 1, 2},
		{"alice", 2, 1}, {"bob", 2, 0},
		{"alice", 2, 2},
	}
	var last *Game
	for _, m := range seq {
		last, err = e.Move(ctx, g.ID, m.player, m.row, m.col)
		require.NoError(t, err)
	}
	assert.Equal(t, Draw, last.Status)
}
