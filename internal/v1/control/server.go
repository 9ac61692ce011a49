// Package control implements the chat-room control-plane server: the
// well-known TCP listener that accepts client connections and services the
// CREATE, DELETE, JOIN and LIST commands against the room registry.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/metrics"
	"github.com/chatnetlabs/chatnet/internal/v1/room"
	"github.com/chatnetlabs/chatnet/internal/v1/wire"
)

// Server accepts control connections and runs one handler goroutine per
// client. Command frames mutate the registry; every command is answered with
// a RESPONSE frame.
type Server struct {
	registry *room.Registry

	mu     sync.Mutex
	ln     net.Listener
	closed bool

	wg sync.WaitGroup
}

// NewServer returns a control server over the given registry.
func NewServer(registry *room.Registry) *Server {
	return &Server{registry: registry}
}

// ListenAndServe binds the well-known control port and serves until Shutdown.
func (s *Server) ListenAndServe(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("control: bind port %d: %w", port, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the listener is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	logging.Info(context.Background(), "control server listening",
		zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting connections, tears down every room (members get
// the teardown frame), and waits for in-flight handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Unlock()

	s.registry.Close()

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

// handleConn services one client's command stream. The handler terminates
// after answering a JOIN (the client reconnects to the room port), on any
// read error, or when the connection closes.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ctx := context.WithValue(context.Background(), logging.ConnIDKey, uuid.NewString())
	logging.Info(ctx, "control connection opened",
		zap.String("remote", conn.RemoteAddr().String()))

	br := bufio.NewReader(conn)
	for {
		cmd, arg, err := wire.ReadCommand(br)
		if err != nil {
			logging.Info(ctx, "control connection closed")
			return
		}

		resp := s.execute(ctx, cmd, arg)
		metrics.ControlCommands.WithLabelValues(cmd.String(), resp.Status.String()).Inc()

		if err := wire.WriteResponse(conn, cmd, resp); err != nil {
			logging.Warn(ctx, "failed to write response", zap.Error(err))
			return
		}

		if cmd == wire.MsgJoin {
			// The client moves on to the room port; this handler is done.
			return
		}
	}
}

// execute dispatches a single command against the registry.
func (s *Server) execute(ctx context.Context, cmd wire.MessageType, arg string) wire.Response {
	switch cmd {
	case wire.MsgCreate:
		if arg == "" {
			return wire.Response{Status: wire.StatusInvalidUsername}
		}
		return wire.Response{Status: statusFromErr(s.registry.Create(arg))}

	case wire.MsgDelete:
		if arg == "" {
			return wire.Response{Status: wire.StatusInvalidUsername}
		}
		return wire.Response{Status: statusFromErr(s.registry.Delete(arg))}

	case wire.MsgJoin:
		port, members, err := s.registry.Join(arg)
		if err != nil {
			return wire.Response{Status: statusFromErr(err)}
		}
		return wire.Response{
			Status:  wire.StatusSuccess,
			Port:    uint32(port),
			Members: uint32(members),
		}

	case wire.MsgList:
		return wire.Response{Status: wire.StatusSuccess, List: joinNames(s.registry.List())}

	default:
		logging.Warn(ctx, "unknown control command", zap.Uint32("tag", uint32(cmd)))
		return wire.Response{Status: wire.StatusInvalid}
	}
}

// joinNames renders the LIST tail: comma-separated names with a trailing
// comma, or the empty string when there are no rooms.
func joinNames(names []string) string {
	var out string
	for _, name := range names {
		out += name + ","
	}
	return out
}

func statusFromErr(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, room.ErrAlreadyExists):
		return wire.StatusAlreadyExists
	case errors.Is(err, room.ErrNotExists):
		return wire.StatusNotExists
	case errors.Is(err, room.ErrPortSpaceExhausted):
		return wire.StatusUnknown
	default:
		return wire.StatusUnknown
	}
}
