package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_EqualityDependsOnSessionHistoryAndMessage(t *testing.T) {
	k1 := Key("session-a", 3, "show task count")
	k2 := Key("session-a", 3, "show task count")
	assert.Equal(t, k1, k2)

	// Different turn index (history length) must not collide, even with
	// the same session id and message text.
	k3 := Key("session-a", 4, "show task count")
	assert.NotEqual(t, k1, k3)

	// Different message must not collide.
	k4 := Key("session-a", 3, "show asset count")
	assert.NotEqual(t, k1, k4)

	// Different session must not collide.
	k5 := Key("session-b", 3, "show task count")
	assert.NotEqual(t, k1, k5)
}

func TestKey_HasChatPrefix(t *testing.T) {
	assert.Contains(t, Key("s", 0, "m"), "chat:")
}

func TestCache_NilClientDegradesToMissAndNoop(t *testing.T) {
	c := New(nil, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "chat:anything")
	assert.False(t, ok)

	// Set on a nil-backed cache must not panic.
	c.Set(ctx, "chat:anything", Entry{Message: "hi"})

	_, ok = c.Get(ctx, "chat:anything")
	assert.False(t, ok)
}
