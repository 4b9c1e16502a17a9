package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientRegistry_RegisterAndList(t *testing.T) {
	r := NewClientRegistry()

	r.Register("session-b")
	r.Register("session-a")
	r.Register("session-a")
	assert.Equal(t, []string{"session-a", "session-b"}, r.Clients())
}

func TestClientRegistry_Remove(t *testing.T) {
	r := NewClientRegistry()

	r.Register("session-a")
	r.Remove("session-a")
	r.Remove("unknown")
	assert.Empty(t, r.Clients())
}
