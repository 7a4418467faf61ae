package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

func noopSend(protocol.Envelope) error { return nil }

func testMeta(id string) protocol.SessionMeta {
	return protocol.SessionMeta{
		SessionID: id,
		URL:       "https://app.local/dashboard",
		Title:     "Dashboard",
		TopOrigin: "https://app.local",
		UserAgent: "test-agent",
	}
}

func TestRegisterAssignsCodename(t *testing.T) {
	r := NewRegistry()
	name, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	summary, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, name, summary.Codename)
	assert.Equal(t, protocol.SocketOpen, summary.SocketState)
	assert.True(t, summary.Live)
	assert.False(t, summary.LastSeenAt.Before(summary.CreatedAt))
}

func TestRegisterRejectsMissingID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(protocol.SessionMeta{}, noopSend)
	assert.Error(t, err)
}

func TestCodenamesAreUniqueAcrossSessions(t *testing.T) {
	r := NewRegistry()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name, err := r.Register(testMeta(string(rune('a'+i%26))+string(rune('0'+i/26))), noopSend)
		require.NoError(t, err)
		assert.False(t, seen[name], "codename %q reused", name)
		seen[name] = true
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	name, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	ch, err := r.Enqueue("s1", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	require.NoError(t, err)

	// A second registration under the same id is refused outright.
	_, err = r.Register(testMeta("s1"), noopSend)
	assert.ErrorIs(t, err, ErrSessionExists)

	// The original session is untouched: same codename, and its in-flight
	// command still resolves.
	summary, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, name, summary.Codename)
	assert.Equal(t, 1, summary.PendingCommands)

	r.Resolve("s1", &protocol.CommandResult{ID: "c1", OK: true})
	assert.True(t, (<-ch).OK)
}

func TestLivenessUsesHeartbeatTolerance(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.clock = func() time.Time { return now }
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	// Just inside the tolerance.
	now = now.Add(HeartbeatTolerance)
	summary, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.True(t, summary.Live)

	// One tick past it.
	now = now.Add(time.Second)
	summary, err = r.Lookup("s1")
	require.NoError(t, err)
	assert.False(t, summary.Live)

	// A heartbeat revives it.
	r.Touch("s1")
	summary, err = r.Lookup("s1")
	require.NoError(t, err)
	assert.True(t, summary.Live)
}

func TestEnqueueUnknownSession(t *testing.T) {
	r := NewRegistry()
	_, err := r.Enqueue("ghost", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEnqueueNotLiveSession(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.clock = func() time.Time { return now }
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	r.SetState("s1", protocol.SocketClosing)
	_, err = r.Enqueue("s1", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	assert.ErrorIs(t, err, ErrSessionNotLive)

	r.SetState("s1", protocol.SocketOpen)
	now = now.Add(HeartbeatTolerance + time.Second)
	_, err = r.Enqueue("s1", &protocol.Command{ID: "c2", Type: protocol.CommandPing})
	assert.ErrorIs(t, err, ErrSessionNotLive)
}

func TestEnqueueForwardsAndResolves(t *testing.T) {
	r := NewRegistry()
	var forwarded []protocol.Envelope
	send := func(env protocol.Envelope) error {
		forwarded = append(forwarded, env)
		return nil
	}
	_, err := r.Register(testMeta("s1"), send)
	require.NoError(t, err)

	ch, err := r.Enqueue("s1", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	require.NoError(t, err)
	require.Len(t, forwarded, 1)
	assert.Equal(t, protocol.MessageCommand, forwarded[0].Type)
	assert.Equal(t, "c1", forwarded[0].Command.ID)

	r.Resolve("s1", &protocol.CommandResult{ID: "c1", OK: true})
	result := <-ch
	require.NotNil(t, result)
	assert.True(t, result.OK)

	// The channel is closed after the single result.
	_, open := <-ch
	assert.False(t, open)
}

func TestMultipleCommandsInFlight(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	ch1, err := r.Enqueue("s1", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	require.NoError(t, err)
	ch2, err := r.Enqueue("s1", &protocol.Command{ID: "c2", Type: protocol.CommandPing})
	require.NoError(t, err)

	summary, _ := r.Lookup("s1")
	assert.Equal(t, 2, summary.PendingCommands)

	// Results resolve independently, out of order.
	r.Resolve("s1", &protocol.CommandResult{ID: "c2", OK: true})
	r.Resolve("s1", &protocol.CommandResult{ID: "c1", OK: false, Error: "nope"})

	assert.Equal(t, "c2", (<-ch2).ID)
	assert.Equal(t, "c1", (<-ch1).ID)
}

func TestInFlightBoundRejectsFlood(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	for i := 0; i < MaxInFlight; i++ {
		_, err := r.Enqueue("s1", &protocol.Command{ID: protocol.NewCommandID(), Type: protocol.CommandPing})
		require.NoError(t, err, "command %d", i)
	}
	_, err = r.Enqueue("s1", &protocol.Command{ID: "overflow", Type: protocol.CommandPing})
	assert.ErrorIs(t, err, ErrTooManyInFlight)

	// Resolving one frees a slot.
	summary, _ := r.Lookup("s1")
	require.Equal(t, MaxInFlight, summary.PendingCommands)
}

func TestResolveUnknownIDIsDropped(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	// Neither of these may panic or disturb the session.
	r.Resolve("s1", &protocol.CommandResult{ID: "never-sent", OK: true})
	r.Resolve("ghost", &protocol.CommandResult{ID: "c1", OK: true})

	summary, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PendingCommands)
}

func TestResolveTwiceDropsSecond(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	ch, err := r.Enqueue("s1", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	require.NoError(t, err)

	r.Resolve("s1", &protocol.CommandResult{ID: "c1", OK: true})
	r.Resolve("s1", &protocol.CommandResult{ID: "c1", OK: false})

	assert.True(t, (<-ch).OK)
}

func TestCloseAbandonsPending(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	ch, err := r.Enqueue("s1", &protocol.Command{ID: "c1", Type: protocol.CommandPing})
	require.NoError(t, err)

	r.Close("s1")

	// Abandoned: channel closes without a result; callers time out locally.
	result, open := <-ch
	assert.Nil(t, result)
	assert.False(t, open)

	_, err = r.Lookup("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRecordConsoleCounts(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(testMeta("s1"), noopSend)
	require.NoError(t, err)

	r.RecordConsole("s1", []protocol.ConsoleEvent{
		{Level: protocol.ConsoleLog},
		{Level: protocol.ConsoleError},
		{Level: protocol.ConsoleWarn},
	})

	summary, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ConsoleEvents)
	assert.Equal(t, 1, summary.ConsoleErrors)
}
