package chatcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresence struct {
	online map[string]bool
}

func (f fakePresence) FindPeer(username string) bool {
	return f.online[username]
}

func TestBroadcastRejectsUnknownSender(t *testing.T) {
	core := NewCore(fakePresence{online: map[string]bool{}}, nil)
	_, err := core.Broadcast(context.Background(), "ghost", "hello")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestBroadcastNormalizesTextAndFansOut(t *testing.T) {
	var delivered []Message
	var excluded []string
	core := NewCore(
		fakePresence{online: map[string]bool{"alice": true}},
		func(ctx context.Context, msg Message, exclude string) {
			delivered = append(delivered, msg)
			excluded = append(excluded, exclude)
		},
	)

	msg, err := core.Broadcast(context.Background(), "alice", "  hello\nworld  \r\n")
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg.Text)
	require.Len(t, delivered, 1)
	assert.Equal(t, "alice", excluded[0])
}

func TestRecentEvictsOldestPastCapacity(t *testing.T) {
	core := NewCore(fakePresence{online: map[string]bool{"alice": true}}, nil)
	for i := 0; i < ringCapacity+10; i++ {
		_, err := core.Broadcast(context.Background(), "alice", "msg")
		require.NoError(t, err)
	}
	recent := core.Recent()
	assert.Len(t, recent, ringCapacity)
}
