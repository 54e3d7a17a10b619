package rconkit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func authedSocket(t *testing.T, r *Registry, addr string) *fakeSocket {
	t.Helper()
	sock := newFakeSocket(addr)
	require.True(t, r.TryAuthenticate(sock, "secret", "secret"))
	return sock
}

func TestSendTextReachesOnlyAuthenticated(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil, "", zaptest.NewLogger(t).Sugar())

	a1 := authedSocket(t, r, "127.0.0.1:8000")
	a2 := authedSocket(t, r, "127.0.0.1:8001")
	anon := newFakeSocket("127.0.0.1:8002")
	r.GetOrCreate(anon)
	gone := authedSocket(t, r, "127.0.0.1:8003")
	conn, _ := r.Get(gone)
	conn.Close(CloseNormal, "bye")

	assert.Equal(t, 2, b.SendText("hello"))
	assert.Equal(t, []string{"hello"}, a1.Texts())
	assert.Equal(t, []string{"hello"}, a2.Texts())
	assert.Empty(t, anon.Texts())
	assert.Empty(t, gone.Texts())
}

func TestSendTextSkipsFailingConnection(t *testing.T) {
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil, "", zaptest.NewLogger(t).Sugar())

	ok := authedSocket(t, r, "127.0.0.1:8004")
	bad := authedSocket(t, r, "127.0.0.1:8005")
	bad.failWrite = true

	assert.Equal(t, 1, b.SendText("x"))
	assert.Equal(t, []string{"x"}, ok.Texts())

	closed, _, _ := bad.Closed()
	assert.True(t, closed, "failed writer is closed")
	assert.Len(t, b.Recipients(), 1)
}

func TestSendDataDump(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(nil)

	var calls [][2]string
	gen := DumpGeneratorFunc(func(scope, format string) error {
		calls = append(calls, [2]string{scope, format})
		return os.WriteFile(filepath.Join(dir, DumpFileName(format)), []byte("a,b\r\nc,d\n"), 0644)
	})
	b := NewBroadcaster(r, gen, dir, zaptest.NewLogger(t).Sugar())

	require.NoError(t, b.SendDataDump("all", "csv"))
	assert.Empty(t, calls, "no recipients, nothing generated")

	sock := authedSocket(t, r, "127.0.0.1:8006")
	require.NoError(t, b.SendDataDump("all", "CSV"))

	assert.Equal(t, [][2]string{{"all", "csv"}}, calls)
	msgs := sock.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, websocket.BinaryMessage, msgs[0].Type)
	assert.Equal(t, "a,bc,d\n", msgs[0].Data)
}

func TestSendDataDumpUnknownFormatFallsBackToJSON(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(nil)
	authedSocket(t, r, "127.0.0.1:8007")

	var got string
	gen := DumpGeneratorFunc(func(scope, format string) error {
		got = format
		return os.WriteFile(filepath.Join(dir, "inventory.json"), []byte("[]"), 0644)
	})
	b := NewBroadcaster(r, gen, dir, nil)

	require.NoError(t, b.SendDataDump("all", "../../etc/passwd"))
	assert.Equal(t, "json", got)
}

func TestSendDataDumpMissingArtifact(t *testing.T) {
	r := NewRegistry(nil)
	sock := authedSocket(t, r, "127.0.0.1:8008")
	b := NewBroadcaster(r, nil, t.TempDir(), zaptest.NewLogger(t).Sugar())

	err := b.SendDataDump("all", "json")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindResource))
	assert.Empty(t, sock.Texts())
}

func TestSendDataDumpGeneratorError(t *testing.T) {
	r := NewRegistry(nil)
	authedSocket(t, r, "127.0.0.1:8009")
	boom := errors.New("boom")
	b := NewBroadcaster(r, DumpGeneratorFunc(func(string, string) error { return boom }), t.TempDir(), nil)

	err := b.SendDataDump("all", "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsKind(err, KindResource))
}
