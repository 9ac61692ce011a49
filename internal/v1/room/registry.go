package room

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/metrics"
)

// Port allocation scans upward from this bound; ports below 1024 are
// restricted to the superuser.
const (
	portScanStart = 1024
	portScanEnd   = 65534
)

var (
	ErrAlreadyExists      = errors.New("room: already exists")
	ErrNotExists          = errors.New("room: not exists")
	ErrPortSpaceExhausted = errors.New("room: port space exhausted")
)

// Registry is the process-wide mapping from room name to Room. A single lock
// guards the mapping and the port-allocation cursor; it is released before
// any blocking send to a member socket.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	nextPort int
}

// NewRegistry returns an empty registry. Port allocation starts at 1024.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		nextPort: portScanStart,
	}
}

// Create allocates a listener, registers a new room under name, and starts
// its dispatcher. Returns ErrAlreadyExists if the name is taken.
func (g *Registry) Create(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.rooms[name]; ok {
		return ErrAlreadyExists
	}

	ln, port, err := g.allocateListener()
	if err != nil {
		return err
	}

	r := newRoom(name, ln, port)
	g.rooms[name] = r
	go r.run()

	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "room created",
		zap.String("room", name), zap.Int("port", port))
	return nil
}

// allocateListener binds a fresh TCP listener, scanning upward from the
// cursor and skipping ports that are in use. Caller must hold the lock.
func (g *Registry) allocateListener() (net.Listener, int, error) {
	for port := g.nextPort; port <= portScanEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		g.nextPort = port + 1
		return ln, port, nil
	}
	return nil, 0, ErrPortSpaceExhausted
}

// Delete removes the room and tears it down. The registry lock is released
// before the teardown frames are sent so a slow member cannot stall other
// control commands.
func (g *Registry) Delete(name string) error {
	g.mu.Lock()
	r, ok := g.rooms[name]
	if !ok {
		g.mu.Unlock()
		return ErrNotExists
	}
	delete(g.rooms, name)
	g.mu.Unlock()

	r.Close()
	metrics.ActiveRooms.Dec()
	logging.Info(context.Background(), "room deleted", zap.String("room", name))
	return nil
}

// Join resolves a room to its port and current member count. The caller is
// expected to open a new connection to that port.
func (g *Registry) Join(name string) (port, members int, err error) {
	g.mu.Lock()
	r, ok := g.rooms[name]
	g.mu.Unlock()
	if !ok {
		return 0, 0, ErrNotExists
	}
	return r.Port(), r.MemberCount(), nil
}

// List returns the names of all live rooms in sorted order.
func (g *Registry) List() []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.rooms))
	for name := range g.rooms {
		names = append(names, name)
	}
	g.mu.Unlock()

	sort.Strings(names)
	return names
}

// Close tears down every room. Used on server shutdown.
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, r := range rooms {
		r.Close()
		metrics.ActiveRooms.Dec()
	}
}
