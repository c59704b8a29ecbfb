package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logtally/internal/wire"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "0.0.0.0:12345"

	// DefaultMaxConnections bounds the number of sessions served at once.
	DefaultMaxConnections = 64
)

// Handler serves one connection. remote is the peer address for logging.
type Handler interface {
	Serve(ctx context.Context, rw io.ReadWriter, remote string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rw io.ReadWriter, remote string) error

func (f HandlerFunc) Serve(ctx context.Context, rw io.ReadWriter, remote string) error {
	return f(ctx, rw, remote)
}

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server accepts logtally connections and runs each one through the handler
// on a bounded pool of goroutines.
type Server struct {
	listener net.Listener
	addr     string
	handler  Handler
	conf     ServerConfig

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	pool   *errgroup.Group
	wg     sync.WaitGroup
}

// NewServer creates a new TCP server. Default addr is DefaultAddr.
func NewServer(addr string, handler Handler, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	c := ServerConfig{MaxConnections: DefaultMaxConnections}
	if len(conf) > 0 {
		if conf[0].MaxConnections > 0 {
			c.MaxConnections = conf[0].MaxConnections
		}
		c.ReadTimeout = conf[0].ReadTimeout
		c.WriteTimeout = conf[0].WriteTimeout
	}
	pool := &errgroup.Group{}
	pool.SetLimit(c.MaxConnections)
	return &Server{
		addr:    addr,
		handler: handler,
		conf:    c,
		conns:   make(map[net.Conn]struct{}),
		pool:    pool,
	}
}

// Start binds the listener and begins accepting connections. Cancelling ctx
// closes the listener and every active connection.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		listener.Close()
		s.closeConns()
	}()
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	log.Info().Str("addr", listener.Addr().String()).Int("max_connections", s.conf.MaxConnections).Msg("server listening")
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		// Blocks while the pool is full; pending clients wait in the backlog.
		s.pool.Go(func() error {
			s.handleConnection(conn)
			return nil
		})
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log.Debug().Str("remote", remote).Msg("client connected")

	c := wire.NewConn(conn, s.conf.ReadTimeout, s.conf.WriteTimeout)
	if err := s.handler.Serve(s.ctx, c, remote); err != nil && s.ctx.Err() == nil {
		log.Warn().Err(err).Str("remote", remote).Msg("connection ended with error")
		return
	}
	log.Debug().Str("remote", remote).Msg("client disconnected")
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// ActiveConnections returns the number of connections currently being served.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes the listener and all connections and waits for handlers to return.
func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	return s.pool.Wait()
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
