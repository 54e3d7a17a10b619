package rconkit

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// DumpGenerator asks the host to write an export artifact for scope in the
// given format. It runs on the host context.
type DumpGenerator interface {
	GenerateDump(scope, format string) error
}

// DumpGeneratorFunc adapts a function to DumpGenerator.
type DumpGeneratorFunc func(scope, format string) error

func (f DumpGeneratorFunc) GenerateDump(scope, format string) error { return f(scope, format) }

// DumpFormats lists the accepted dump formats; anything else becomes json.
var DumpFormats = []string{"csv", "json"}

// DumpFileName returns the artifact name read back for format.
func DumpFileName(format string) string {
	return "inventory." + NormalizeDumpFormat(format)
}

// NormalizeDumpFormat keeps only known formats so the value never reaches a
// file path unchecked.
func NormalizeDumpFormat(format string) string {
	format = strings.ToLower(format)
	if slices.Contains(DumpFormats, format) {
		return format
	}
	return "json"
}

// Broadcaster pushes messages to every authenticated, open connection.
type Broadcaster struct {
	registry  *Registry
	generator DumpGenerator
	dumpDir   string
	log       *zap.SugaredLogger
}

// NewBroadcaster creates a broadcaster over registry. generator and dumpDir
// are only needed for SendDataDump.
func NewBroadcaster(registry *Registry, generator DumpGenerator, dumpDir string, log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		generator: generator,
		dumpDir:   dumpDir,
		log:       orNop(log),
	}
}

// SendText sends text to all eligible connections and returns how many
// received it.
func (b *Broadcaster) SendText(text string) int {
	return b.send(websocket.TextMessage, []byte(text))
}

// SendBinary sends data as a binary frame to all eligible connections.
func (b *Broadcaster) SendBinary(data []byte) int {
	return b.send(websocket.BinaryMessage, data)
}

// Recipients returns the connections a broadcast would reach right now.
func (b *Broadcaster) Recipients() []*Connection {
	var out []*Connection
	for _, conn := range b.registry.Snapshot() {
		if conn.Authenticated() && conn.IsOpen() {
			out = append(out, conn)
		}
	}
	return out
}

func (b *Broadcaster) send(messageType int, data []byte) int {
	sent := 0
	for _, conn := range b.Recipients() {
		if err := conn.Send(messageType, data); err != nil {
			b.log.Warnw("broadcast failed", "conn", conn.ID, "remote", conn.Remote, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// SendDataDump has the host generate a dump, reads the artifact back, strips
// its line breaks and sends it as one binary message. Nothing is generated
// when no client would receive it.
func (b *Broadcaster) SendDataDump(scope, format string) error {
	format = NormalizeDumpFormat(format)
	if len(b.Recipients()) == 0 {
		b.log.Infow("no authenticated clients, skipping dump", "scope", scope, "format", format)
		return nil
	}

	if b.generator != nil {
		if err := b.generator.GenerateDump(scope, format); err != nil {
			b.log.Errorw("dump generation failed", "scope", scope, "format", format, "error", err)
			return NewRconError(KindResource, "dump", "generation failed", err)
		}
	}

	path := filepath.Join(b.dumpDir, DumpFileName(format))
	content, err := os.ReadFile(path)
	if err != nil {
		b.log.Errorw("could not read dump artifact", "path", path, "error", err)
		return NewRconError(KindResource, "dump", "could not read "+path, err)
	}

	payload := strings.ReplaceAll(string(content), "\r\n", "")
	payload = strings.ReplaceAll(payload, "\n", "")

	sent := b.SendBinary([]byte(payload + "\n"))
	b.log.Infow("sent data dump", "scope", scope, "format", format, "bytes", len(payload), "clients", sent)
	return nil
}
