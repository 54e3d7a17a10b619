package rconkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		provided   string
		configured string
		want       bool
	}{
		{"match", "secret", "secret", true},
		{"mismatch", "guess", "secret", false},
		{"empty provided", "", "secret", false},
		{"empty configured", "secret", "", false},
		{"both empty", "", "", false},
		{"prefix", "secre", "secret", false},
		{"case", "Secret", "secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(zaptest.NewLogger(t).Sugar())
			sock := newFakeSocket("127.0.0.1:6000")

			got := r.TryAuthenticate(sock, tt.provided, tt.configured)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, r.IsAuthenticated(sock))

			conn, _ := r.Get(sock)
			if tt.want {
				assert.Equal(t, 0, conn.FailedAttempts())
			} else {
				assert.Equal(t, 1, conn.FailedAttempts())
			}
		})
	}
}

func TestAuthenticatedNeverDowngrades(t *testing.T) {
	r := NewRegistry(nil)
	sock := newFakeSocket("127.0.0.1:6001")

	assert.True(t, r.TryAuthenticate(sock, "secret", "secret"))
	assert.False(t, r.TryAuthenticate(sock, "wrong", "secret"))
	assert.True(t, r.IsAuthenticated(sock))
}

func TestIsAuthenticatedRegistersUnknownSocket(t *testing.T) {
	r := NewRegistry(nil)
	sock := newFakeSocket("127.0.0.1:6002")

	assert.False(t, r.IsAuthenticated(sock))
	assert.Equal(t, 1, r.Len())
}

func TestSessionsAreIndependent(t *testing.T) {
	r := NewRegistry(nil)
	a := newFakeSocket("127.0.0.1:6003")
	b := newFakeSocket("127.0.0.1:6004")

	r.TryAuthenticate(a, "secret", "secret")
	assert.True(t, r.IsAuthenticated(a))
	assert.False(t, r.IsAuthenticated(b))
}
