// Package snsclient implements the interactive social-network client engine.
//
// Connecting performs the Login RPC; a duplicate session is fatal. The
// command loop then issues one RPC per input line until the TIMELINE
// command switches to stream mode: a websocket carries the user's posts up
// and every followed user's posts down, and the engine stays in stream mode
// until the connection or the context ends.
package snsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/transport"
)

// LineReader yields one line of user input at a time.
type LineReader interface {
	ReadLine() (string, error)
}

// Printer emits output for the user.
type Printer interface {
	Printf(format string, args ...any)
}

// Client is the social-network client engine.
type Client struct {
	baseURL  string
	username string
	in       LineReader
	out      Printer
	httpc    *http.Client
}

// New returns a client for the server at baseURL (e.g. http://host:port)
// acting as username.
func New(baseURL, username string, in LineReader, out Printer) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		in:       in,
		out:      out,
		httpc:    http.DefaultClient,
	}
}

// Run logs in and drives the command loop. A duplicate session or an
// unreachable server is fatal; everything after that is reported and the
// loop continues.
func (c *Client) Run(ctx context.Context) error {
	reply, err := c.rpc("login", nil)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if reply.Msg != transport.MsgOK {
		return fmt.Errorf("login rejected: %s", reply.Msg)
	}
	c.out.Printf("logged in as %s\n", c.username)
	c.out.Printf("commands: FOLLOW <user>, UNFOLLOW <user>, LIST, TIMELINE\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := c.in.ReadLine()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		c.out.Printf("cmd> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		cmd, arg := parseCommand(line)
		switch cmd {
		case "":
			continue
		case "FOLLOW", "UNFOLLOW":
			if arg == "" {
				c.out.Printf("usage: %s <user>\n", cmd)
				continue
			}
			reply, err := c.rpc(strings.ToLower(cmd), []string{arg})
			if err != nil {
				c.out.Printf("error: %v\n", err)
				continue
			}
			c.out.Printf("%s\n", reply.Msg)
		case "LIST":
			reply, err := c.rpc("list", nil)
			if err != nil {
				c.out.Printf("error: %v\n", err)
				continue
			}
			c.displayList(reply)
		case "TIMELINE":
			return c.timeline(ctx, lines)
		default:
			c.out.Printf("unknown command: %s\n", cmd)
		}
	}
}

// parseCommand splits an input line into an upper-cased command word and
// its argument.
func parseCommand(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", ""
	}
	word := trimmed
	arg := ""
	if idx := strings.IndexByte(trimmed, ' '); idx >= 0 {
		word = trimmed[:idx]
		arg = strings.TrimSpace(trimmed[idx+1:])
	}
	return strings.ToUpper(word), arg
}

// rpc performs one request/reply exchange.
func (c *Client) rpc(method string, args []string) (transport.Reply, error) {
	body, err := json.Marshal(transport.Request{Username: c.username, Arguments: args})
	if err != nil {
		return transport.Reply{}, err
	}

	resp, err := c.httpc.Post(c.baseURL+"/v1/rpc/"+method, "application/json", bytes.NewReader(body))
	if err != nil {
		return transport.Reply{}, fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	var reply transport.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return transport.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

func (c *Client) displayList(reply transport.Reply) {
	c.out.Printf("all users: %s\n", strings.Join(reply.AllUsers, ", "))
	c.out.Printf("followers: %s\n", strings.Join(reply.FollowingUsers, ", "))
	c.out.Printf("following: %s\n", strings.Join(reply.Followees, ", "))
}

// timeline opens the stream, sends the handshake, and relays posts both
// ways. It returns only when the connection or the context ends.
func (c *Client) timeline(ctx context.Context, lines <-chan string) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/v1/timeline?username=" + c.username

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open timeline: %w", err)
	}

	if err := conn.WriteJSON(transport.Frame{Username: c.username, Msg: "0xFEE1DEAD"}); err != nil {
		conn.Close()
		return fmt.Errorf("timeline handshake: %w", err)
	}

	c.out.Printf("timeline mode; type to post\n")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var frame transport.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			c.out.Printf("%s (%s) >> %s\n", frame.Username, frame.Timestamp, frame.Msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-closed
			return ctx.Err()

		case <-closed:
			conn.Close()
			c.out.Printf("timeline closed by server\n")
			return nil

		case line, ok := <-lines:
			if !ok {
				conn.Close()
				<-closed
				return nil
			}
			msg := strings.TrimSpace(line)
			if msg == "" {
				continue
			}
			if err := conn.WriteJSON(transport.Frame{Username: c.username, Msg: msg}); err != nil {
				logging.Warn(ctx, "timeline post failed", zap.Error(err))
				conn.Close()
				<-closed
				return nil
			}
		}
	}
}
