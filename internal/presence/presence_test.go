package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnchor struct{ closed bool }

func (f *fakeAnchor) Close() { f.closed = true }

func TestLoginReturnsPreviousEntry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	a1 := &fakeAnchor{}
	prev := reg.Login(ctx, Entry{Username: "alice", IP: "10.0.0.1", FileTCP: -1, VoiceUDP: -1, ViaNio: true, Anchor: a1})
	assert.Nil(t, prev)

	a2 := &fakeAnchor{}
	prev = reg.Login(ctx, Entry{Username: "alice", IP: "10.0.0.2", FileTCP: -1, VoiceUDP: -1, ViaNio: false, Anchor: a2})
	require.NotNil(t, prev)
	assert.Equal(t, a1, prev.Anchor)

	cur, ok := reg.FindPeer("alice")
	require.True(t, ok)
	assert.Equal(t, a2, cur.Anchor)
	assert.False(t, cur.ViaNio)
}

func TestLogoutConditionalRemove(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	a1 := &fakeAnchor{}
	reg.Login(ctx, Entry{Username: "bob", FileTCP: -1, VoiceUDP: -1, Anchor: a1})

	a2 := &fakeAnchor{}
	// A stale anchor (a1) attempting logout after bob already re-logged in
	// under a2 must not remove the current entry.
	reg.Login(ctx, Entry{Username: "bob", FileTCP: -1, VoiceUDP: -1, Anchor: a2})
	removed := reg.Logout(ctx, "bob", a1)
	assert.False(t, removed)

	_, ok := reg.FindPeer("bob")
	assert.True(t, ok)

	removed = reg.Logout(ctx, "bob", a2)
	assert.True(t, removed)
	_, ok = reg.FindPeer("bob")
	assert.False(t, ok)
}

func TestSubscribeFiresOnJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	var events []Event
	reg.Subscribe(func(ctx context.Context, ev Event) {
		events = append(events, ev)
	})

	a1 := &fakeAnchor{}
	reg.Login(ctx, Entry{Username: "carol", FileTCP: -1, VoiceUDP: -1, Anchor: a1})
	reg.Logout(ctx, "carol", a1)

	require.Len(t, events, 2)
	assert.Equal(t, EventJoined, events[0].Kind)
	assert.Equal(t, EventLeft, events[1].Kind)
	assert.Empty(t, events[1].Roster)
}

func TestSnapshotReturnsAllEntries(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Login(ctx, Entry{Username: "a", FileTCP: -1, VoiceUDP: -1, Anchor: &fakeAnchor{}})
	reg.Login(ctx, Entry{Username: "b", FileTCP: -1, VoiceUDP: -1, Anchor: &fakeAnchor{}})

	snap := reg.Snapshot()
	assert.Len(t, snap, 2)
}
