package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLookup(peers map[string][2]any) PeerLookup {
	return func(username string) (string, int, bool) {
		v, ok := peers[username]
		if !ok {
			return "", 0, false
		}
		return v[0].(string), v[1].(int), true
	}
}

func TestInitiateRequiresDistinctUsersAndOnlineTarget(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(fakeLookup(map[string][2]any{"bob": {"10.0.0.2", 5000}}), nil, 30*time.Minute)

	_, err := mgr.Initiate(ctx, "alice", "alice", "10.0.0.1", 4000)
	assert.ErrorIs(t, err, ErrSameUser)

	_, err = mgr.Initiate(ctx, "alice", "ghost", "10.0.0.1", 4000)
	assert.ErrorIs(t, err, ErrTargetOffline)

	sess, err := mgr.Initiate(ctx, "alice", "bob", "10.0.0.1", 4000)
	require.NoError(t, err)
	assert.Equal(t, StateRinging, sess.State)
	assert.Equal(t, "10.0.0.2", sess.TargetIP)
	assert.Equal(t, 5000, sess.TargetPort)
}

func TestAcceptAndSDPExchangeReachesConnected(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(fakeLookup(map[string][2]any{"bob": {"10.0.0.2", 5000}}), nil, 30*time.Minute)
	sess, err := mgr.Initiate(ctx, "alice", "bob", "10.0.0.1", 4000)
	require.NoError(t, err)

	accepted, err := mgr.Accept(ctx, sess.ID, "bob", 6000)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, accepted.State)

	require.NoError(t, mgr.SetInitiatorOffer(sess.ID, "offer-sdp"))
	got, err := mgr.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, got.State)

	require.NoError(t, mgr.SetTargetAnswer(sess.ID, "answer-sdp"))
	got, err = mgr.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, got.State)
}

func TestAcceptRequiresRingingSession(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(fakeLookup(map[string][2]any{"bob": {"10.0.0.2", 5000}}), nil, 30*time.Minute)
	sess, err := mgr.Initiate(ctx, "alice", "bob", "10.0.0.1", 4000)
	require.NoError(t, err)

	_, err = mgr.Accept(ctx, sess.ID, "bob", 6000)
	require.NoError(t, err)

	_, err = mgr.Accept(ctx, sess.ID, "bob", 7000)
	assert.ErrorIs(t, err, ErrNotRinging)

	require.NoError(t, mgr.SetInitiatorOffer(sess.ID, "offer-sdp"))
	require.NoError(t, mgr.SetTargetAnswer(sess.ID, "answer-sdp"))

	// A retried accept must not demote a CONNECTED session.
	_, err = mgr.Accept(ctx, sess.ID, "bob", 7000)
	assert.ErrorIs(t, err, ErrNotRinging)
	got, err := mgr.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, got.State)
	assert.Equal(t, 6000, got.TargetPort)
}

func TestRejectRemovesSession(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(fakeLookup(map[string][2]any{"bob": {"10.0.0.2", 5000}}), nil, 30*time.Minute)
	sess, err := mgr.Initiate(ctx, "alice", "bob", "10.0.0.1", 4000)
	require.NoError(t, err)

	require.NoError(t, mgr.Reject(ctx, sess.ID, "bob"))
	_, err = mgr.GetSession(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnectedPeerResolvesOnlyConnectedSessions(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(fakeLookup(map[string][2]any{"bob": {"10.0.0.2", 5000}}), nil, 30*time.Minute)
	sess, err := mgr.Initiate(ctx, "alice", "bob", "10.0.0.1", 4000)
	require.NoError(t, err)

	_, ok := mgr.ConnectedPeer("alice")
	assert.False(t, ok)

	require.NoError(t, mgr.SetInitiatorOffer(sess.ID, "offer-sdp"))
	require.NoError(t, mgr.SetTargetAnswer(sess.ID, "answer-sdp"))

	peer, ok := mgr.ConnectedPeer("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", peer)

	peer, ok = mgr.ConnectedPeer("bob")
	require.True(t, ok)
	assert.Equal(t, "alice", peer)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(fakeLookup(map[string][2]any{"bob": {"10.0.0.2", 5000}}), nil, time.Millisecond)
	sess, err := mgr.Initiate(ctx, "alice", "bob", "10.0.0.1", 4000)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	mgr.sweep()

	_, err = mgr.GetSession(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
