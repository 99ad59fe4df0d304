package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatID(t *testing.T) {
	tests := []struct {
		name  string
		userA string
		userB string
		want  string
	}{
		{"already sorted", "alice", "bob", "alice_bob"},
		{"reversed", "bob", "alice", "alice_bob"},
		{"numeric-ish ids", "user9", "user10", "user10_user9"},
		{"self chat stays deterministic", "alice", "alice", "alice_alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChatID(tt.userA, tt.userB))
		})
	}
}

func TestChatID_OrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"zed", "amy"},
		{"a", "a"},
		{"uid-9f2", "uid-0c1"},
	}
	for _, p := range pairs {
		assert.Equal(t, ChatID(p[0], p[1]), ChatID(p[1], p[0]))
	}
}
