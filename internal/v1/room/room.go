// Package room implements chat rooms and the process-wide room registry.
//
// Each room owns one TCP listener on a dynamically allocated port plus the
// set of connected member sockets. A dispatcher accepts new members and runs
// one reader goroutine per member; bytes read from one member are fanned out
// verbatim to every other member. The registry serializes room create/delete
// and port allocation behind a single lock.
package room

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/metrics"
	"github.com/chatnetlabs/chatnet/internal/v1/wire"
)

const readBufferSize = 4096

// Room is a named multicast group of TCP member connections managed by one
// listener. All mutation of the member list happens under the room mutex;
// fan-out also runs under it so the list stays stable while writing and
// concurrent senders are serialized per room.
type Room struct {
	name string
	port int

	ln net.Listener

	mu      sync.Mutex
	members []net.Conn
	closed  bool

	wg sync.WaitGroup
}

func newRoom(name string, ln net.Listener, port int) *Room {
	return &Room{
		name: name,
		port: port,
		ln:   ln,
	}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Port returns the TCP port the room listener is bound to.
func (r *Room) Port() int { return r.port }

// MemberCount returns the current number of connected members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// run is the dispatcher loop. It accepts new members until the listener is
// closed and spawns one reader goroutine per member.
func (r *Room) run() {
	ctx := context.WithValue(context.Background(), logging.RoomKey, r.name)

	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn(ctx, "room accept failed", zap.Error(err))
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			// Interactive traffic; don't let Nagle batch keystrokes.
			_ = tcp.SetNoDelay(true)
		}

		if !r.addMember(conn) {
			// Lost the race with room deletion.
			conn.Close()
			continue
		}

		logging.Info(ctx, "member joined room", zap.Int("members", r.MemberCount()))

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.serveMember(ctx, conn)
		}()
	}
}

// addMember registers a member socket, refusing if the room is already closed.
func (r *Room) addMember(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.members = append(r.members, conn)
	metrics.RoomMembers.WithLabelValues(r.name).Set(float64(len(r.members)))
	return true
}

// serveMember reads from one member socket and fans each read out to the
// other members. Any read error removes the member.
func (r *Room) serveMember(ctx context.Context, conn net.Conn) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			r.fanout(conn, buf[:n])
		}
		if err != nil {
			r.removeMember(conn)
			logging.Info(ctx, "member left room", zap.Int("members", r.MemberCount()))
			return
		}
	}
}

// fanout delivers data from the sender to every other member, preserving the
// byte sequence as received. A member whose socket errors on write is dropped.
func (r *Room) fanout(sender net.Conn, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	survivors := r.members[:0]
	for _, peer := range r.members {
		if peer == sender {
			survivors = append(survivors, peer)
			continue
		}
		if _, err := peer.Write(data); err != nil {
			// Peer is gone; close and drop it.
			peer.Close()
			continue
		}
		survivors = append(survivors, peer)
	}
	r.members = survivors

	metrics.RoomMembers.WithLabelValues(r.name).Set(float64(len(r.members)))
	metrics.ChatMessages.Inc()
	metrics.ChatBytes.Add(float64(len(data)))
}

// removeMember drops a single member and closes its socket.
func (r *Room) removeMember(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, peer := range r.members {
		if peer == conn {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	conn.Close()
	metrics.RoomMembers.WithLabelValues(r.name).Set(float64(len(r.members)))
}

// Close tears the room down: the listener stops accepting, every member
// receives a single teardown frame, and all sockets are closed. Close waits
// for the member reader goroutines to drain before returning.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.ln.Close()

	frame := wire.TeardownFrame()
	for _, conn := range r.members {
		// Best effort; the member may already be gone.
		_, _ = conn.Write(frame)
		conn.Close()
	}
	r.members = nil
	r.mu.Unlock()

	r.wg.Wait()
	metrics.RoomMembers.DeleteLabelValues(r.name)
}
