package rconkit

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type sentMessage struct {
	Type int
	Data string
}

// fakeSocket records everything written to it.
type fakeSocket struct {
	addr string

	mu        sync.Mutex
	messages  []sentMessage
	closeCode int
	closeText string
	closed    bool
	failWrite bool
	deadline  time.Time
}

func newFakeSocket(addr string) *fakeSocket {
	return &fakeSocket{addr: addr}
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeSocket) WriteDeadline() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deadline
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failWrite {
		return errors.New("write on closed socket")
	}
	f.messages = append(f.messages, sentMessage{Type: messageType, Data: string(data)})
	return nil
}

func (f *fakeSocket) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		f.closeCode = int(data[0])<<8 | int(data[1])
		f.closeText = string(data[2:])
	}
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) RemoteAddr() net.Addr {
	addr, _ := net.ResolveTCPAddr("tcp", f.addr)
	return addr
}

func (f *fakeSocket) Messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

func (f *fakeSocket) Texts() []string {
	var out []string
	for _, m := range f.Messages() {
		out = append(out, m.Data)
	}
	return out
}

func (f *fakeSocket) Closed() (bool, int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode, f.closeText
}

// recordingExecutor captures the lines handed to the host.
type recordingExecutor struct {
	mu    sync.Mutex
	lines []string
	logs  []bool
}

func (r *recordingExecutor) ExecuteCommand(line string, log bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	r.logs = append(r.logs, log)
}

func (r *recordingExecutor) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
