package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SendWithoutListener(t *testing.T) {
	r := NewRegistry(4)
	assert.False(t, r.Connected("A1"))
	assert.False(t, r.Send("A1", NewMessage(KindAssign, "T1", "title", time.Now())))
	assert.False(t, r.Touch("A1"))
}

func TestRegistry_ConnectSendDisconnect(t *testing.T) {
	r := NewRegistry(4)
	ch, disconnect := r.Connect("A1")
	require.True(t, r.Connected("A1"))

	msg := NewMessage(KindCommit, "T1", "title", time.Now())
	msg.Commit = &CommitOptions{Message: "feat: x"}
	require.True(t, r.Send("A1", msg))
	got := <-ch
	assert.Equal(t, msg, got)

	disconnect()
	disconnect()
	assert.False(t, r.Connected("A1"))
	_, open := <-ch
	assert.False(t, open)
	assert.False(t, r.Send("A1", msg))
}

func TestRegistry_FullBufferRejects(t *testing.T) {
	r := NewRegistry(1)
	_, disconnect := r.Connect("A1")
	defer disconnect()

	assert.True(t, r.Send("A1", NewMessage(KindAssign, "T1", "a", time.Now())))
	assert.False(t, r.Send("A1", NewMessage(KindAssign, "T2", "b", time.Now())))
}

func TestRegistry_ReconnectReplacesListener(t *testing.T) {
	r := NewRegistry(4)
	oldCh, oldDisconnect := r.Connect("A1")
	newCh, newDisconnect := r.Connect("A1")
	defer newDisconnect()

	_, open := <-oldCh
	assert.False(t, open, "previous listener is closed")

	// A stale release must not drop the newer listener.
	oldDisconnect()
	require.True(t, r.Connected("A1"))

	require.True(t, r.Send("A1", NewMessage(KindPush, "T1", "title", time.Now())))
	assert.Equal(t, KindPush, (<-newCh).Kind)
}

func TestRegistry_Touch(t *testing.T) {
	r := NewRegistry(1)
	_, disconnect := r.Connect("A1")
	defer disconnect()

	before, ok := r.LastSeen("A1")
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	require.True(t, r.Touch("A1"))
	after, _ := r.LastSeen("A1")
	assert.True(t, after.After(before))
}
