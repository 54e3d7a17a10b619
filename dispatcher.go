package rconkit

import (
	"fmt"
	"sync/atomic"

	"github.com/alexj212/rconkit/parser"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReplyIllegalCommand is sent when a command fails the allow-list.
const ReplyIllegalCommand = "ERR:illegal_command"

// RejectPolicy decides who is told about a rejected command.
type RejectPolicy int

const (
	// RejectBroadcast sends the rejection to every authenticated client.
	RejectBroadcast RejectPolicy = iota
	// RejectReply sends the rejection only to the offending client.
	RejectReply
)

// ParseRejectPolicy maps "broadcast" and "reply" to a policy.
func ParseRejectPolicy(s string) (RejectPolicy, error) {
	switch s {
	case "", "broadcast":
		return RejectBroadcast, nil
	case "reply", "private":
		return RejectReply, nil
	default:
		return RejectBroadcast, fmt.Errorf("unknown reject policy %q", s)
	}
}

func (p RejectPolicy) String() string {
	if p == RejectReply {
		return "reply"
	}
	return "broadcast"
}

// Settings supplies the values the dispatcher reads on every message.
type Settings interface {
	Password() string
	LogCommands() bool
}

// StaticSettings is a fixed Settings value.
type StaticSettings struct {
	Secret string
	Log    bool
}

func (s StaticSettings) Password() string  { return s.Secret }
func (s StaticSettings) LogCommands() bool { return s.Log }

// Dispatcher turns inbound payloads into authentication replies and host
// command submissions.
type Dispatcher struct {
	registry    *Registry
	allow       *AllowList
	broadcaster *Broadcaster
	queue       *WorkQueue
	executor    Executor
	settings    Settings
	policy      atomic.Int32
	log         *zap.SugaredLogger
}

// DispatcherConfig collects the collaborators of a Dispatcher.
type DispatcherConfig struct {
	Registry    *Registry
	AllowList   *AllowList
	Broadcaster *Broadcaster
	Queue       *WorkQueue
	Executor    Executor
	Settings    Settings
	Policy      RejectPolicy
	Logger      *zap.SugaredLogger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		registry:    cfg.Registry,
		allow:       cfg.AllowList,
		broadcaster: cfg.Broadcaster,
		queue:       cfg.Queue,
		executor:    cfg.Executor,
		settings:    cfg.Settings,
		log:         orNop(cfg.Logger),
	}
	d.policy.Store(int32(cfg.Policy))
	return d
}

// SetRejectPolicy changes how rejections are reported.
func (d *Dispatcher) SetRejectPolicy(p RejectPolicy) {
	d.policy.Store(int32(p))
}

// RejectPolicy returns the current rejection policy.
func (d *Dispatcher) RejectPolicy() RejectPolicy {
	return RejectPolicy(d.policy.Load())
}

// Handle processes one inbound message from sock. Replies use messageType,
// the opcode of the inbound frame. Messages from a socket the registry no
// longer holds, e.g. one drained by CloseAll mid-read, are dropped.
func (d *Dispatcher) Handle(sock Socket, messageType int, payload []byte) {
	conn, ok := d.registry.Get(sock)
	if !ok || !conn.IsOpen() {
		d.log.Debugw("dropping message from unregistered connection", "remote", addrString(sock))
		return
	}

	msg, err := parser.Parse(string(payload))
	if err != nil {
		d.log.Warnw("discarding malformed rcon message", "conn", conn.ID,
			"error", NewRconError(KindParse, "parse", "malformed payload", err))
		return
	}

	if !conn.Authenticated() {
		d.authenticate(conn, messageType, msg)
		return
	}

	for _, cmd := range msg {
		if !d.allow.IsAllowed(cmd.Name) {
			d.reject(conn, cmd)
			continue
		}
		d.submit(conn, cmd)
	}
}

func (d *Dispatcher) authenticate(conn *Connection, messageType int, msg parser.Message) {
	reply := replyAuthNo
	first, ok := msg.First()
	if ok && first.Name == AuthCommand && len(first.Args) == 1 {
		if d.registry.authenticate(conn, first.Args[0], d.settings.Password()) {
			reply = replyAuthYes
		}
	} else {
		conn.recordFailure()
		d.log.Warnw("unauthenticated rcon message rejected", "conn", conn.ID, "remote", conn.Remote,
			"attempts", conn.FailedAttempts())
	}

	if err := conn.Send(messageType, []byte(reply)); err != nil {
		d.log.Warnw("auth reply failed", "conn", conn.ID, "error", err)
	}
}

func (d *Dispatcher) submit(conn *Connection, cmd parser.Command) {
	line := cmd.Raw
	logCmd := d.settings.LogCommands()
	if logCmd {
		d.log.Infow("rcon command", "conn", conn.ID, "command", line)
	}

	err := d.queue.Submit(func() {
		d.executor.ExecuteCommand(line, logCmd)
	})
	if err != nil {
		d.log.Errorw("could not hand command to host", "conn", conn.ID, "command", line, "error", err)
	}
}

func (d *Dispatcher) reject(conn *Connection, cmd parser.Command) {
	d.log.Warnw("rcon tried to execute command that is not allowed", "conn", conn.ID,
		"error", NewRconError(KindPolicy, "dispatch", "command not allowed: "+cmd.Name, nil))

	if d.RejectPolicy() == RejectReply {
		if err := conn.Send(websocket.TextMessage, []byte(ReplyIllegalCommand)); err != nil {
			d.log.Warnw("rejection reply failed", "conn", conn.ID, "error", err)
		}
		return
	}
	d.broadcaster.SendText(ReplyIllegalCommand)
}
