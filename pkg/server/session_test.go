package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxFIFO(t *testing.T) {
	o := newOutbox(1024)

	require.True(t, o.push([]byte("one")))
	require.True(t, o.push([]byte("two")))
	require.True(t, o.push([]byte("three")))

	for _, want := range []string{"one", "two", "three"} {
		got, ok := o.pop()
		require.True(t, ok)
		assert.Equal(t, want, string(got))
	}

	_, ok := o.pop()
	assert.False(t, ok)
}

func TestOutboxByteCap(t *testing.T) {
	o := newOutbox(10)

	require.True(t, o.push([]byte("12345")))
	require.True(t, o.push([]byte("67890")))
	assert.False(t, o.push([]byte("x")), "push past the cap must fail")

	// Draining frees budget.
	_, ok := o.pop()
	require.True(t, ok)
	assert.True(t, o.push([]byte("x")))
}

func TestOutboxPendingAccounting(t *testing.T) {
	o := newOutbox(100)

	require.True(t, o.push([]byte("abcd")))
	require.True(t, o.push([]byte("ef")))
	assert.Equal(t, 2, o.depth())

	o.pop()
	o.pop()
	assert.Equal(t, 0, o.depth())

	// Budget is fully restored after a drain.
	require.True(t, o.push(make([]byte, 100)))
}

func TestOutboxNotifyCoalesces(t *testing.T) {
	o := newOutbox(1024)

	o.push([]byte("a"))
	o.push([]byte("b"))

	// Multiple pushes leave at most one pending wakeup.
	<-o.notify
	select {
	case <-o.notify:
		t.Fatal("expected a single coalesced wakeup")
	default:
	}
}

func TestOutboxClose(t *testing.T) {
	o := newOutbox(1024)
	o.push([]byte("a"))

	o.close()
	o.close() // idempotent

	// Push after close is a silent no-op so shutdown races are harmless.
	assert.True(t, o.push([]byte("b")))

	// The notify channel is closed so the write pump can exit; the wakeup
	// buffered by the earlier push drains first.
	<-o.notify
	_, open := <-o.notify
	assert.False(t, open)
}
