// Package chatclient implements the interactive chat-room client engine.
//
// The engine has two modes. In command mode each input line becomes one
// request/reply exchange with the control server. A successful JOIN switches
// to chat mode on the room's own port, where a reader goroutine prints
// incoming payloads while the input loop sends the user's lines; a teardown
// frame from the server drops the client back into command mode.
//
// Terminal I/O is abstracted behind the LineReader and Printer interfaces so
// the engine can be driven from tests as well as a real console.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/wire"
)

// LineReader yields one line of user input at a time.
type LineReader interface {
	ReadLine() (string, error)
}

// Printer emits output for the user.
type Printer interface {
	Printf(format string, args ...any)
}

// Client is the chat-room client engine.
type Client struct {
	host string
	port int
	in   LineReader
	out  Printer
}

// New returns a client that talks to the control server at host:port.
func New(host string, port int, in LineReader, out Printer) *Client {
	return &Client{host: host, port: port, in: in, out: out}
}

// Run drives the command loop until input is exhausted or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
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

	c.out.Printf("=== chatnet room client ===\n")
	c.out.Printf("commands: CREATE <room>, DELETE <room>, JOIN <room>, LIST\n")

	for {
		c.out.Printf("command> ")

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

		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, _ := ParseCommand(line)
		resp, err := c.execute(line)
		if err != nil {
			c.out.Printf("error: %v\n", err)
			continue
		}
		c.display(cmd, resp)

		if cmd == wire.MsgJoin && resp.Status == wire.StatusSuccess {
			c.out.Printf("now you are in the chat mode\n")
			if err := c.chatMode(ctx, int(resp.Port), lines); err != nil {
				return err
			}
		}
	}
}

// ParseCommand maps an input line to a wire command and its argument.
// Command names are case-insensitive; a single space separates command from
// argument. Unrecognized input maps to the INVALID tag.
func ParseCommand(line string) (wire.MessageType, string) {
	trimmed := strings.TrimRight(line, "\r\n")

	word := trimmed
	arg := ""
	if idx := strings.IndexByte(trimmed, ' '); idx >= 0 {
		word = trimmed[:idx]
		arg = trimmed[idx+1:]
	}

	switch strings.ToUpper(word) {
	case "CREATE":
		return wire.MsgCreate, arg
	case "DELETE":
		return wire.MsgDelete, arg
	case "JOIN":
		return wire.MsgJoin, arg
	case "LIST":
		return wire.MsgList, ""
	default:
		return wire.MsgInvalid, ""
	}
}

// execute performs one request/reply exchange on a fresh control connection.
func (c *Client) execute(line string) (wire.Response, error) {
	cmd, arg := ParseCommand(line)

	conn, err := net.Dial("tcp", net.JoinHostPort(c.host, fmt.Sprint(c.port)))
	if err != nil {
		return wire.Response{}, fmt.Errorf("connect control server: %w", err)
	}
	defer conn.Close()

	if err := wire.WriteCommand(conn, cmd, arg); err != nil {
		return wire.Response{}, fmt.Errorf("send command: %w", err)
	}
	resp, err := wire.ReadResponse(bufio.NewReader(conn), cmd)
	if err != nil {
		return wire.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// display renders a response for the user.
func (c *Client) display(cmd wire.MessageType, resp wire.Response) {
	switch resp.Status {
	case wire.StatusSuccess:
		switch cmd {
		case wire.MsgList:
			list := resp.List
			if list == "" {
				list = "empty"
			}
			c.out.Printf("%s\n", list)
		case wire.MsgJoin:
			c.out.Printf("joined: port=%d members=%d\n", resp.Port, resp.Members)
		default:
			c.out.Printf("success\n")
		}
	case wire.StatusAlreadyExists:
		c.out.Printf("failed: room already exists\n")
	case wire.StatusNotExists:
		c.out.Printf("failed: room does not exist\n")
	case wire.StatusInvalid:
		c.out.Printf("failed: invalid command\n")
	case wire.StatusInvalidUsername:
		c.out.Printf("failed: invalid room name\n")
	default:
		c.out.Printf("failed: unknown error\n")
	}
}

// chatMode relays lines to the room socket and prints everything received
// until the server announces teardown or the socket drops. Returns nil on
// teardown so the caller resumes command mode.
func (c *Client) chatMode(ctx context.Context, port int, lines <-chan string) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(c.host, fmt.Sprint(port)))
	if err != nil {
		c.out.Printf("error: cannot enter chat room: %v\n", err)
		return nil
	}

	teardown := make(chan struct{})
	go func() {
		defer close(teardown)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			data := buf[:n]
			if wire.IsTeardown(data) {
				return
			}
			for _, msg := range bytes.Split(data, []byte{0}) {
				if len(msg) > 0 {
					c.out.Printf("> %s\n", msg)
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-teardown
			return ctx.Err()

		case <-teardown:
			conn.Close()
			c.out.Printf("room closed by server; back to command mode\n")
			return nil

		case line, ok := <-lines:
			if !ok {
				conn.Close()
				<-teardown
				return nil
			}
			msg := strings.TrimRight(line, "\r\n")
			if msg == "" {
				continue
			}
			if _, err := conn.Write(append([]byte(msg), 0)); err != nil {
				logging.Warn(ctx, "chat send failed", zap.Error(err))
				conn.Close()
				<-teardown
				c.out.Printf("connection lost; back to command mode\n")
				return nil
			}
		}
	}
}
