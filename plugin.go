package rconkit

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cvar names registered by the plugin.
const (
	CvarPassword = "rcon_password"
	CvarPort     = "rcon_port"
	CvarTimeout  = "rcon_timeout"
	CvarLog      = "rcon_log"
	CvarEnabled  = "rcon_enabled"
)

const (
	// DefaultAllowListFile is the allow-list location relative to the data dir.
	DefaultAllowListFile = "rcon_commands.cfg"

	disconnectReason = "User requested disconnect"
)

// CVarStore is the host's configuration-variable store. Change callbacks run
// on the host context after the new value is visible.
type CVarStore interface {
	Register(name, defaultValue, description string)
	GetString(name string) string
	GetInt(name string) int
	GetBool(name string) bool
	OnChange(name string, fn func(oldValue, newValue string))
}

// PluginConfig wires the plugin to its host.
type PluginConfig struct {
	Vars      CVarStore
	Executor  Executor
	Queue     *WorkQueue
	Generator DumpGenerator

	// DataDir holds the allow-list file and dump artifacts.
	DataDir string
	// AllowListFile overrides <DataDir>/rcon_commands.cfg.
	AllowListFile string
	// WatchAllowList reloads the allow-list when its file changes.
	WatchAllowList bool
	RejectPolicy   RejectPolicy
	// WriteWait bounds each message write; zero means DefaultWriteWait.
	WriteWait time.Duration
	Logger    *zap.SugaredLogger
}

// Plugin is the RCON server as seen by the host: it owns the allow-list,
// registry, dispatcher, broadcaster and server, and exposes the admin
// operations the host binds to its console.
type Plugin struct {
	vars        CVarStore
	allowPath   string
	watch       bool
	log         *zap.SugaredLogger
	AllowList   *AllowList
	Registry    *Registry
	Dispatcher  *Dispatcher
	Broadcaster *Broadcaster
	Server      *Server

	transport TransportHandler
	mu        sync.Mutex
	watcher   *AllowListWatcher
}

// NewPlugin builds every component; nothing listens until OnLoad runs and
// rcon_enabled is set.
func NewPlugin(cfg PluginConfig) *Plugin {
	log := orNop(cfg.Logger)
	allowPath := cfg.AllowListFile
	if allowPath == "" {
		allowPath = filepath.Join(cfg.DataDir, DefaultAllowListFile)
	}

	registry := NewRegistry(log.Named("registry"))
	registry.SetWriteWait(cfg.WriteWait)
	allow := NewAllowList(log.Named("allowlist"))
	broadcaster := NewBroadcaster(registry, cfg.Generator, cfg.DataDir, log.Named("broadcast"))
	dispatcher := NewDispatcher(DispatcherConfig{
		Registry:    registry,
		AllowList:   allow,
		Broadcaster: broadcaster,
		Queue:       cfg.Queue,
		Executor:    cfg.Executor,
		Settings:    cvarSettings{cfg.Vars},
		Policy:      cfg.RejectPolicy,
		Logger:      log.Named("dispatch"),
	})

	server := NewServer(registry, dispatcher, log.Named("server"))
	return &Plugin{
		vars:        cfg.Vars,
		allowPath:   allowPath,
		watch:       cfg.WatchAllowList,
		log:         log,
		AllowList:   allow,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Broadcaster: broadcaster,
		Server:      server,
		transport:   server,
	}
}

// OnLoad registers the cvars, binds rcon_enabled to Start/Stop and loads the
// allow-list. If rcon_enabled is already on, the server starts immediately.
func (p *Plugin) OnLoad() error {
	p.vars.Register(CvarPassword, "password", "RCON password")
	p.vars.Register(CvarPort, "9002", "RCON port")
	p.vars.Register(CvarTimeout, "5", "RCON timeout")
	p.vars.Register(CvarLog, "0", "Log all incoming rcon commands")
	p.vars.Register(CvarEnabled, "0", "Enable the RCON plugin")

	p.vars.OnChange(CvarEnabled, func(_, newValue string) {
		if parseBool(newValue) {
			if err := p.Start(); err != nil {
				p.log.Errorw("rcon enable failed", "error", err)
			}
			return
		}
		if err := p.transport.Stop(); err != nil {
			p.log.Warnw("rcon disable", "error", err)
		}
	})

	if err := p.RefreshAllowed(); err != nil {
		p.log.Warnw("initial allow-list load", "error", err)
	}

	if p.watch {
		w, err := WatchAllowList(p.AllowList, p.allowPath, p.log.Named("watcher"), nil)
		if err != nil {
			p.log.Warnw("allow-list watcher disabled", "error", err)
		} else {
			p.mu.Lock()
			p.watcher = w
			p.mu.Unlock()
		}
	}

	if p.vars.GetBool(CvarEnabled) {
		return p.Start()
	}
	return nil
}

// OnUnload stops the server and the allow-list watcher.
func (p *Plugin) OnUnload() error {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	p.mu.Unlock()
	if w != nil {
		w.Close()
	}
	return p.transport.Stop()
}

// Start starts the server on the configured port.
func (p *Plugin) Start() error {
	port := p.vars.GetInt(CvarPort)
	if port < 0 {
		port = DefaultPort
	}
	return p.transport.Start(port)
}

// AllowListPath returns the file RefreshAllowed reads.
func (p *Plugin) AllowListPath() string {
	return p.allowPath
}

// RefreshAllowed reloads the allow-list file.
func (p *Plugin) RefreshAllowed() error {
	return p.AllowList.Refresh(p.allowPath)
}

// TestAllowed reports whether command would pass the allow-list.
func (p *Plugin) TestAllowed(command string) bool {
	return p.AllowList.IsAllowed(command)
}

// DisconnectAll closes every open client connection.
func (p *Plugin) DisconnectAll() int {
	return p.Registry.CloseAll(CloseNormal, disconnectReason)
}

// SendBack broadcasts words joined by spaces to authenticated clients.
func (p *Plugin) SendBack(words []string) int {
	if len(words) == 0 {
		return 0
	}
	return p.Broadcaster.SendText(strings.Join(words, " "))
}

// SendInventory broadcasts a generated dump for scope in format.
func (p *Plugin) SendInventory(scope, format string) error {
	return p.Broadcaster.SendDataDump(scope, format)
}

// Status is a point-in-time view of the plugin.
type Status struct {
	Transport     string
	State         ServerState
	Addr          string
	Uptime        time.Duration
	Connections   int
	Authenticated int
	Patterns      int
	RejectPolicy  RejectPolicy
	Timeout       int
}

func (p *Plugin) Status() Status {
	st := Status{
		Transport:     p.transport.Name(),
		State:         p.Server.State(),
		Uptime:        p.Server.Uptime(),
		Connections:   p.Registry.Len(),
		Authenticated: len(p.Broadcaster.Recipients()),
		Patterns:      p.AllowList.Len(),
		RejectPolicy:  p.Dispatcher.RejectPolicy(),
		Timeout:       p.vars.GetInt(CvarTimeout),
	}
	if addr := p.Server.Addr(); addr != nil {
		st.Addr = addr.String()
	}
	return st
}

type cvarSettings struct {
	vars CVarStore
}

func (s cvarSettings) Password() string  { return s.vars.GetString(CvarPassword) }
func (s cvarSettings) LogCommands() bool { return s.vars.GetBool(CvarLog) }

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
