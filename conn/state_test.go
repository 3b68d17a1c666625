package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connkit/wsconn/transport"
)

func newTestState(status Status) *State {
	s := NewState(transport.Endpoint{Host: "example.com", Port: 443, Path: "/ws"}, transport.Options{})
	s.Status = status
	return s
}

func TestBeginConnectAllocatesGeneration(t *testing.T) {
	s := newTestState(Initialized)

	require.True(t, s.beginConnect())
	assert.Equal(t, Connecting, s.Status)
	assert.Equal(t, uint64(1), s.Generation)

	s.Status = Reconnecting
	require.True(t, s.beginConnect())
	assert.Equal(t, uint64(2), s.Generation)

	s.Status = Disconnected
	require.True(t, s.beginConnect())
	assert.Equal(t, uint64(3), s.Generation)
}

func TestUpgradeResetsAttempts(t *testing.T) {
	s := newTestState(Connected)
	s.ReconnectAttempts = 4

	require.True(t, s.markUpgraded())
	assert.Equal(t, WebSocketConnected, s.Status)
	assert.Equal(t, 0, s.ReconnectAttempts)
}

func TestReconnectAttemptsOnlyGrowWhileReconnecting(t *testing.T) {
	s := newTestState(Disconnected)

	require.True(t, s.markReconnecting())
	assert.Equal(t, 1, s.ReconnectAttempts)

	// Not valid from Reconnecting itself.
	assert.False(t, s.markReconnecting())
	assert.Equal(t, 1, s.ReconnectAttempts)
}

func TestDisconnectClearsTransportAndStreams(t *testing.T) {
	s := newTestState(WebSocketConnected)
	h := newFakeHandle()
	s.Handle = h
	s.ActiveStreams["s1"] = transport.StreamWebSocket

	require.True(t, s.markDisconnected())
	assert.Equal(t, Disconnected, s.Status)
	assert.Nil(t, s.Handle)
	assert.Empty(t, s.ActiveStreams)
}

// Invalid transition attempts must be benign no-ops: applied=false and
// the state left untouched, for every (status, transition) pair off the
// table.
func TestInvalidTransitionsAreNoOps(t *testing.T) {
	type attempt struct {
		name  string
		apply func(*State) bool
	}
	attempts := []attempt{
		{"beginConnect", func(s *State) bool { return s.beginConnect() }},
		{"markConnected", func(s *State) bool { return s.markConnected(newFakeHandle()) }},
		{"markUpgraded", func(s *State) bool { return s.markUpgraded() }},
		{"markDisconnected", func(s *State) bool { return s.markDisconnected() }},
		{"markReconnecting", func(s *State) bool { return s.markReconnecting() }},
		{"openStream", func(s *State) bool { return s.openStream("x", transport.StreamControl) }},
	}
	valid := map[string][]Status{
		"beginConnect":     {Initialized, Reconnecting, Disconnected},
		"markConnected":    {Connecting},
		"markUpgraded":     {Connected},
		"markDisconnected": {Connecting, Connected, WebSocketConnected},
		"markReconnecting": {Disconnected},
		"openStream":       {Connected, WebSocketConnected},
	}
	all := []Status{Initialized, Connecting, Connected, WebSocketConnected, Disconnected, Reconnecting, Closed}

	for _, a := range attempts {
		for _, status := range all {
			isValid := false
			for _, v := range valid[a.name] {
				if v == status {
					isValid = true
				}
			}
			if isValid {
				continue
			}
			t.Run(a.name+"/from_"+status.String(), func(t *testing.T) {
				s := newTestState(status)
				s.Generation = 7
				s.ReconnectAttempts = 2

				applied := a.apply(s)

				assert.False(t, applied)
				assert.Equal(t, status, s.Status, "status must not change")
				assert.Equal(t, uint64(7), s.Generation, "generation must not change")
				assert.Equal(t, 2, s.ReconnectAttempts, "attempts must not change")
				assert.Empty(t, s.ActiveStreams)
			})
		}
	}
}

func TestMarkClosedFromEverywhere(t *testing.T) {
	for _, status := range []Status{Initialized, Connecting, Connected, WebSocketConnected, Disconnected, Reconnecting} {
		s := newTestState(status)
		require.True(t, s.markClosed(), "from %s", status)
		assert.Equal(t, Closed, s.Status)
	}

	s := newTestState(Closed)
	assert.False(t, s.markClosed())
}

func TestCloseStreamUnknownIsNoOp(t *testing.T) {
	s := newTestState(WebSocketConnected)
	s.ActiveStreams["s1"] = transport.StreamWebSocket
	s.closeStream("missing")
	assert.Len(t, s.ActiveStreams, 1)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestState(WebSocketConnected)
	s.ActiveStreams["s1"] = transport.StreamWebSocket

	snap := s.snapshot()
	snap.ActiveStreams["s2"] = transport.StreamControl

	assert.Len(t, s.ActiveStreams, 1, "mutating the snapshot must not touch the source")
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "initialized", Initialized.String())
	assert.Equal(t, "websocket_connected", WebSocketConnected.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", Status(99).String())
}
