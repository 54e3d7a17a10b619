package rconkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerState is the lifecycle state of the RCON listener.
type ServerState int32

const (
	NotListening ServerState = iota
	Listening
	Stopping
)

func (s ServerState) String() string {
	switch s {
	case NotListening:
		return "not listening"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	// DefaultPort is the port used when none is configured.
	DefaultPort = 9002

	shutdownReason  = "Shutting down RCON server"
	shutdownTimeout = 5 * time.Second
)

// Server accepts WebSocket clients and hands their messages to a Dispatcher.
// Start and Stop share one mutex, so lifecycle transitions never interleave.
type Server struct {
	registry   *Registry
	dispatcher *Dispatcher
	log        *zap.SugaredLogger

	lifecycle sync.Mutex
	state     atomic.Int32

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	serveDone  chan struct{}
	conns      sync.WaitGroup
	startTime  time.Time
}

// NewServer creates a stopped server.
func NewServer(registry *Registry, dispatcher *Dispatcher, log *zap.SugaredLogger) *Server {
	return &Server{
		registry:   registry,
		dispatcher: dispatcher,
		log:        orNop(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // RCON clients are local tools and overlays with arbitrary origins
			},
		},
	}
}

// Name returns the transport type.
func (s *Server) Name() string {
	return "websocket"
}

// State returns the current lifecycle state.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// IsListening reports whether the server is accepting connections.
func (s *Server) IsListening() bool {
	return s.State() == Listening
}

// Addr returns the bound listener address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Uptime returns how long the server has been listening.
func (s *Server) Uptime() time.Duration {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.State() != Listening {
		return 0
	}
	return time.Since(s.startTime)
}

// Start binds port and serves connections on a separate goroutine.
// Port 0 picks a free port; see Addr.
func (s *Server) Start(port int) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != NotListening {
		return nil
	}
	if s.serveDone != nil {
		// A previous loop died on its own; collect it before starting over.
		s.teardown()
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.log.Errorw("failed to start rcon server", "port", port, "error", err)
		return NewRconError(KindTransport, "start", fmt.Sprintf("failed to listen on port %d", port), err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.serveDone = make(chan struct{})
	s.startTime = time.Now()
	s.state.Store(int32(Listening))

	go s.serve(s.httpServer, listener, s.serveDone)

	s.log.Infow("RCON server started", "addr", listener.Addr().String())
	return nil
}

// Stop closes the listener and every connection, waits for all connection
// goroutines and the serve loop to finish, then resets so Start can run again.
func (s *Server) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(Listening), int32(Stopping)) {
		if s.serveDone != nil {
			s.teardown()
		}
		return nil
	}
	s.log.Infow("stopping RCON server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var shutdownErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		shutdownErr = NewRconError(KindTransport, "stop", "listener shutdown", err)
		s.log.Warnw("rcon listener shutdown", "error", err)
	}

	closed := s.registry.CloseAll(CloseNormal, shutdownReason)
	s.teardown()
	s.log.Infow("RCON server stopped", "closed", closed)
	return shutdownErr
}

// teardown waits for the serve loop and connection goroutines and clears the
// per-run resources. Caller holds lifecycle.
func (s *Server) teardown() {
	if s.serveDone != nil {
		<-s.serveDone
	}
	s.registry.CloseAll(CloseNormal, shutdownReason)
	s.conns.Wait()

	s.httpServer = nil
	s.listener = nil
	s.serveDone = nil
	s.state.Store(int32(NotListening))
}

// serve runs the accept loop. Failures end only this loop, never the host.
func (s *Server) serve(srv *http.Server, listener net.Listener, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("rcon server loop panicked", "error", NewRconError(KindTransport, "serve", fmt.Sprint(r), nil))
		}
		s.state.CompareAndSwap(int32(Listening), int32(NotListening))
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Errorw("rcon server loop failed", "error", NewRconError(KindTransport, "serve", "accept loop", err))
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.PathPrefix("/").HandlerFunc(s.wsHandler)
	return router
}

// wsHandler upgrades one client and reads its messages until it goes away.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	s.conns.Add(1)
	defer s.conns.Done()

	if s.State() != Listening {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := s.registry.GetOrCreate(ws)
	defer s.registry.Remove(ws)
	defer ws.Close()

	// Registered after CloseAll drained the registry: close it ourselves.
	if s.State() != Listening {
		conn.Close(CloseNormal, shutdownReason)
		return
	}
	s.log.Infow("rcon connection opened", "conn", conn.ID, "remote", conn.Remote)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && conn.IsOpen() {
				s.log.Warnw("websocket read error", "conn", conn.ID, "error", err)
			}
			break
		}
		s.dispatcher.Handle(ws, messageType, data)
	}

	s.log.Infow("rcon connection closed", "conn", conn.ID, "remote", conn.Remote)
}
