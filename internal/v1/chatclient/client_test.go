package chatclient

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatnetlabs/chatnet/internal/v1/wire"
)

// recordingPrinter captures everything the engine prints.
type recordingPrinter struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (p *recordingPrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(&p.buf, format, args...)
}

func (p *recordingPrinter) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantCmd wire.MessageType
		wantArg string
	}{
		{"create", "CREATE r1", wire.MsgCreate, "r1"},
		{"create lowercase", "create r1", wire.MsgCreate, "r1"},
		{"create mixed case", "CrEaTe r1", wire.MsgCreate, "r1"},
		{"delete", "DELETE r1", wire.MsgDelete, "r1"},
		{"join", "JOIN lounge", wire.MsgJoin, "lounge"},
		{"list", "LIST", wire.MsgList, ""},
		{"list with trailing newline", "list\n", wire.MsgList, ""},
		{"join strips newline", "JOIN r1\n", wire.MsgJoin, "r1"},
		{"unknown command", "SHOUT something", wire.MsgInvalid, ""},
		{"empty", "", wire.MsgInvalid, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, arg := ParseCommand(tt.line)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArg, arg)
		})
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name string
		cmd  wire.MessageType
		resp wire.Response
		want string
	}{
		{"create success", wire.MsgCreate, wire.Response{Status: wire.StatusSuccess}, "success"},
		{"list renders rooms", wire.MsgList, wire.Response{Status: wire.StatusSuccess, List: "r1,"}, "r1,"},
		{"list renders empty", wire.MsgList, wire.Response{Status: wire.StatusSuccess}, "empty"},
		{"join success", wire.MsgJoin, wire.Response{Status: wire.StatusSuccess, Port: 4000, Members: 2}, "port=4000 members=2"},
		{"already exists", wire.MsgCreate, wire.Response{Status: wire.StatusAlreadyExists}, "already exists"},
		{"not exists", wire.MsgJoin, wire.Response{Status: wire.StatusNotExists}, "does not exist"},
		{"invalid", wire.MsgInvalid, wire.Response{Status: wire.StatusInvalid}, "invalid command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &recordingPrinter{}
			c := New("localhost", 0, nil, out)
			c.display(tt.cmd, tt.resp)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

// fakeRoom runs a one-shot room listener: it accepts a single member, sends
// the given payloads, then the teardown frame, then closes.
func fakeRoom(t *testing.T, payloads ...[]byte) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if _, err := conn.Write(p); err != nil {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
		_, _ = conn.Write(wire.TeardownFrame())
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestChatMode_PrintsPayloadsAndReturnsOnTeardown(t *testing.T) {
	port := fakeRoom(t, []byte("hello\x00"), []byte("world\x00"))

	out := &recordingPrinter{}
	c := New("127.0.0.1", 0, nil, out)

	lines := make(chan string)
	defer close(lines)

	done := make(chan error, 1)
	go func() {
		done <- c.chatMode(context.Background(), port, lines)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("chatMode did not return after teardown")
	}

	got := out.String()
	assert.Contains(t, got, "> hello")
	assert.Contains(t, got, "> world")
	assert.Contains(t, got, "back to command mode")
}

func TestChatMode_SendsUserLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		received <- buf[:n]
		_, _ = conn.Write(wire.TeardownFrame())
	}()

	out := &recordingPrinter{}
	c := New("127.0.0.1", 0, nil, out)

	lines := make(chan string, 1)
	lines <- "hi there\n"

	done := make(chan error, 1)
	go func() {
		done <- c.chatMode(context.Background(), ln.Addr().(*net.TCPAddr).Port, lines)
	}()

	select {
	case got := <-received:
		assert.Equal(t, []byte("hi there\x00"), got)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the chat line")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("chatMode did not return after teardown")
	}
}

func TestExecute_AgainstScriptedServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Answer whatever arrives with a LIST success.
		buf := make([]byte, 256)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		_ = wire.WriteResponse(conn, wire.MsgList, wire.Response{
			Status: wire.StatusSuccess,
			List:   "r1,r2,",
		})
	}()

	out := &recordingPrinter{}
	c := New("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, nil, out)

	resp, err := c.execute("LIST")
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, resp.Status)
	assert.Equal(t, "r1,r2,", resp.List)
}

func TestExecute_ConnectFailure(t *testing.T) {
	out := &recordingPrinter{}
	// Port 1 on loopback is almost certainly closed.
	c := New("127.0.0.1", 1, nil, out)

	_, err := c.execute("LIST")
	assert.Error(t, err)
}
