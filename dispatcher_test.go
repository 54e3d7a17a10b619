package rconkit

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type dispatchFixture struct {
	registry   *Registry
	allow      *AllowList
	queue      *WorkQueue
	exec       *recordingExecutor
	dispatcher *Dispatcher
}

func newDispatchFixture(t *testing.T, policy RejectPolicy, patterns ...string) *dispatchFixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	f := &dispatchFixture{
		registry: NewRegistry(log),
		allow:    NewAllowList(log),
		queue:    NewWorkQueue(),
		exec:     &recordingExecutor{},
	}
	require.NoError(t, f.allow.SetPatterns(patterns))
	f.dispatcher = NewDispatcher(DispatcherConfig{
		Registry:    f.registry,
		AllowList:   f.allow,
		Broadcaster: NewBroadcaster(f.registry, nil, "", log),
		Queue:       f.queue,
		Executor:    f.exec,
		Settings:    StaticSettings{Secret: "secret", Log: true},
		Policy:      policy,
		Logger:      log,
	})
	return f
}

func (f *dispatchFixture) send(sock Socket, payload string) {
	f.dispatcher.Handle(sock, websocket.TextMessage, []byte(payload))
}

// connect registers a socket the way the server does on upgrade.
func (f *dispatchFixture) connect(addr string) *fakeSocket {
	sock := newFakeSocket(addr)
	f.registry.GetOrCreate(sock)
	return sock
}

func (f *dispatchFixture) login(t *testing.T, addr string) *fakeSocket {
	t.Helper()
	sock := f.connect(addr)
	f.send(sock, "rcon_password secret")
	require.Equal(t, []string{"authyes"}, sock.Texts())
	sock.mu.Lock()
	sock.messages = nil
	sock.mu.Unlock()
	return sock
}

func TestDispatchAuthFlow(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast, "say")
	sock := f.connect("127.0.0.1:7000")

	f.send(sock, "say hi")
	f.send(sock, "rcon_password wrong")
	f.send(sock, "rcon_password")
	f.send(sock, "rcon_password secret")
	f.send(sock, "say hi")

	assert.Equal(t, []string{"authno", "authno", "authno", "authyes"}, sock.Texts())
	conn, ok := f.registry.Get(sock)
	require.True(t, ok)
	assert.True(t, conn.Authenticated())
	assert.Equal(t, 3, conn.FailedAttempts())

	f.queue.RunPending()
	assert.Equal(t, []string{"say hi"}, f.exec.Lines())
}

func TestDispatchAuthReplyUsesInboundOpcode(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast)
	sock := f.connect("127.0.0.1:7001")

	f.dispatcher.Handle(sock, websocket.BinaryMessage, []byte("rcon_password secret"))
	msgs := sock.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, websocket.BinaryMessage, msgs[0].Type)
	assert.Equal(t, "authyes", msgs[0].Data)
}

func TestDispatchQuotedPassword(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast)
	f.dispatcher = NewDispatcher(DispatcherConfig{
		Registry:    f.registry,
		AllowList:   f.allow,
		Broadcaster: NewBroadcaster(f.registry, nil, "", nil),
		Queue:       f.queue,
		Executor:    f.exec,
		Settings:    StaticSettings{Secret: "two words"},
	})
	sock := f.connect("127.0.0.1:7002")

	f.send(sock, `rcon_password "two words"`)
	assert.Equal(t, []string{"authyes"}, sock.Texts())
}

func TestDispatchAllowedCommandSubmitsRawText(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast, "say")
	sock := f.login(t, "127.0.0.1:7003")

	f.send(sock, `say   "hello world"`)
	assert.Empty(t, f.exec.Lines(), "nothing runs before the host drains its queue")

	assert.Equal(t, 1, f.queue.RunPending())
	assert.Equal(t, []string{`say   "hello world"`}, f.exec.Lines())
	assert.Equal(t, []bool{true}, f.exec.logs)
	assert.Empty(t, sock.Texts())
}

func TestDispatchRejectedCommandBroadcasts(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast, "say")
	offender := f.login(t, "127.0.0.1:7004")
	other := f.login(t, "127.0.0.1:7005")
	anon := f.connect("127.0.0.1:7006")

	f.send(offender, "quit")

	assert.Equal(t, 0, f.queue.RunPending())
	assert.Empty(t, f.exec.Lines())
	assert.Equal(t, []string{ReplyIllegalCommand}, offender.Texts())
	assert.Equal(t, []string{ReplyIllegalCommand}, other.Texts())
	assert.Empty(t, anon.Texts())
}

func TestDispatchRejectedCommandReplyPolicy(t *testing.T) {
	f := newDispatchFixture(t, RejectReply, "say")
	offender := f.login(t, "127.0.0.1:7007")
	other := f.login(t, "127.0.0.1:7008")

	f.send(offender, "quit")

	assert.Equal(t, []string{ReplyIllegalCommand}, offender.Texts())
	assert.Empty(t, other.Texts())

	f.dispatcher.SetRejectPolicy(RejectBroadcast)
	assert.Equal(t, RejectBroadcast, f.dispatcher.RejectPolicy())
}

func TestDispatchMultipleCommandsInOrder(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast, "say", "help")
	sock := f.login(t, "127.0.0.1:7009")

	f.send(sock, "say one; quit; help\nsay \"two; three\"")

	f.queue.RunPending()
	assert.Equal(t, []string{"say one", "help", `say "two; three"`}, f.exec.Lines())
	assert.Equal(t, []string{ReplyIllegalCommand}, sock.Texts())
}

func TestDispatchMalformedMessageIsDiscarded(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast, "say")
	sock := f.connect("127.0.0.1:7010")

	f.send(sock, `rcon_password "secret`)
	assert.Empty(t, sock.Texts())
	conn, _ := f.registry.Get(sock)
	assert.False(t, conn.Authenticated())
	assert.Equal(t, 0, conn.FailedAttempts())

	f.send(sock, "rcon_password secret")
	f.send(sock, `say "unterminated`)
	f.queue.RunPending()
	assert.Empty(t, f.exec.Lines())
	assert.Equal(t, []string{"authyes"}, sock.Texts())
}

func TestParseRejectPolicy(t *testing.T) {
	for in, want := range map[string]RejectPolicy{
		"":          RejectBroadcast,
		"broadcast": RejectBroadcast,
		"reply":     RejectReply,
		"private":   RejectReply,
	} {
		got, err := ParseRejectPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRejectPolicy("loud")
	assert.Error(t, err)
	assert.Equal(t, "reply", RejectReply.String())
}

func TestDispatchDropsUnregisteredSocket(t *testing.T) {
	f := newDispatchFixture(t, RejectBroadcast, "say")
	stranger := newFakeSocket("127.0.0.1:7011")

	f.send(stranger, "rcon_password secret")
	assert.Empty(t, stranger.Texts())
	assert.Equal(t, 0, f.registry.Len())

	sock := f.login(t, "127.0.0.1:7012")
	assert.Equal(t, 1, f.registry.CloseAll(CloseNormal, "bye"))

	f.send(sock, "say late")
	assert.Equal(t, 0, f.registry.Len(), "a drained socket is not registered again")
	assert.Equal(t, 0, f.queue.RunPending())
	assert.Empty(t, f.exec.Lines())
}
