package p2p

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Set of default values for the server.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Config represents the configuration required to start a server.
type Config struct {
	Host         string
	Mux          *Mux
	Log          *zap.SugaredLogger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server accepts connections from other miners and wallets.
type Server struct {
	mux          *Mux
	log          *zap.SugaredLogger
	readTimeout  time.Duration
	writeTimeout time.Duration

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen binds the configured host. Call Serve to start accepting.
func Listen(cfg Config) (*Server, error) {
	if cfg.Mux == nil {
		return nil, errors.New("p2p: mux is required")
	}

	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	listener, err := net.Listen("tcp", cfg.Host)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := Server{
		mux:          cfg.Mux,
		log:          log,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		listener:     listener,
		ctx:          ctx,
		cancel:       cancel,
		conns:        make(map[net.Conn]struct{}),
	}

	return &s, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop until Shutdown is called. One goroutine is
// started per accepted connection.
func (s *Server) Serve() error {
	s.log.Infow("p2p", "status", "accepting connections", "host", s.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}

			return err
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}

		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting, closes the open connections and waits for their
// goroutines to finish or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("p2p", "status", "shutdown started", "host", s.Addr())
	defer s.log.Infow("p2p", "status", "shutdown complete", "host", s.Addr())

	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================

// handleConn reads frames until the remote side closes, goes idle or sends
// something malformed.
func (s *Server) handleConn(conn net.Conn) {
	traceID := uuid.NewString()
	remote := conn.RemoteAddr().String()

	reply := func(m wire.Message) error {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		return wire.WriteMessage(conn, m)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		msg, err := wire.ReadMessage(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, os.ErrDeadlineExceeded):
				s.log.Infow("p2p", "traceid", traceID, "remote", remote, "status", "idle connection closed")
			case wire.IsProtocolError(err):
				s.log.Errorw("p2p", "traceid", traceID, "remote", remote, "status", "dropping connection", "ERROR", err)
			default:
				s.log.Errorw("p2p", "traceid", traceID, "remote", remote, "status", "read failed", "ERROR", err)
			}
			return
		}

		s.log.Infow("p2p", "traceid", traceID, "remote", remote, "message", msg.String())

		err = s.mux.Dispatch(s.ctx, msg, reply)
		switch {
		case err == nil:
		case database.IsConsensusError(err):
			s.log.Infow("p2p", "traceid", traceID, "message", msg.Tag.String(), "status", "discarded", "reason", err)
		case wire.IsProtocolError(err):
			s.log.Errorw("p2p", "traceid", traceID, "message", msg.Tag.String(), "status", "dropping connection", "ERROR", err)
			return
		default:
			s.log.Errorw("p2p", "traceid", traceID, "message", msg.Tag.String(), "ERROR", err)
		}
	}
}

// track records an open connection and counts its goroutine. It reports
// false once the server is shutting down.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}

	s.conns[conn] = struct{}{}
	s.wg.Add(1)

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
}
