package ipc

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"slidebridge/internal/config"
)

// Handler answers one request message with one response message.
type Handler interface {
	HandleMessage(msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(msg *Message) (*Message, error) {
	return f(msg)
}

// Server accepts control-socket connections and dispatches framed
// requests to a Handler. One goroutine per connection; the handler may
// block (it waits on the worker), connections are independent.
type Server struct {
	cfg     config.IPCConfig
	handler Handler
	log     *slog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a Server around the handler.
func NewServer(cfg config.IPCConfig, handler Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		handler:      handler,
		log:          log,
		readTimeout:  30 * time.Second,
		writeTimeout: 10 * time.Second,
		conns:        make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and begins accepting.
func (s *Server) Start() error {
	ln, err := listen(s.cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.running.Store(true)

	s.log.Info("control socket listening", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and all open connections.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.mu.Lock()
	ln := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.running.Load() {
				s.log.Warn("accept failed", "error", err)
			}
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.running.Load() {
				if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
					s.log.Debug("connection read failed", "error", err)
				}
			}
			return
		}

		resp, err := s.handler.HandleMessage(msg)
		if err != nil {
			resp, _ = Marshal(MsgError, msg.Header.RequestID, ErrorPayload{
				Kind:    "internal",
				Message: err.Error(),
			})
		}
		if resp == nil {
			continue
		}
		resp.Header.RequestID = msg.Header.RequestID

		if s.writeTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if err := resp.Write(conn); err != nil {
			s.log.Debug("connection write failed", "error", err)
			return
		}
	}
}
