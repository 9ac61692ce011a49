// Package wire implements the binary framing spoken on chat-room control
// connections. Every frame starts with a little-endian 32-bit message tag;
// command frames carry a NUL-terminated argument, response frames carry a
// 32-bit status followed by a command-specific tail.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MessageType tags every frame on a control socket.
type MessageType uint32

const (
	MsgCreate MessageType = iota
	MsgDelete
	MsgJoin
	MsgList
	MsgResponse
	MsgInvalid
)

// Status is the result code carried by RESPONSE frames.
type Status uint32

const (
	StatusSuccess Status = iota
	StatusAlreadyExists
	StatusNotExists
	StatusInvalid
	StatusInvalidUsername
	StatusUnknown
)

// ErrProtocol reports a frame that does not match the expected shape.
var ErrProtocol = errors.New("wire: protocol violation")

// TagSize is the length of the frame tag in bytes.
const TagSize = 4

func (t MessageType) String() string {
	switch t {
	case MsgCreate:
		return "CREATE"
	case MsgDelete:
		return "DELETE"
	case MsgJoin:
		return "JOIN"
	case MsgList:
		return "LIST"
	case MsgResponse:
		return "RESPONSE"
	default:
		return "INVALID"
	}
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusAlreadyExists:
		return "FAILURE_ALREADY_EXISTS"
	case StatusNotExists:
		return "FAILURE_NOT_EXISTS"
	case StatusInvalid:
		return "FAILURE_INVALID"
	case StatusInvalidUsername:
		return "FAILURE_INVALID_USERNAME"
	default:
		return "FAILURE_UNKNOWN"
	}
}

// Response is the decoded form of a RESPONSE frame. Port and Members are only
// meaningful for successful JOIN replies, List only for successful LIST replies.
type Response struct {
	Status  Status
	Port    uint32
	Members uint32
	List    string
}

// WriteCommand writes a command frame: tag, argument bytes, NUL terminator.
// The argument must not contain a NUL byte.
func WriteCommand(w io.Writer, t MessageType, arg string) error {
	if strings.IndexByte(arg, 0) >= 0 {
		return fmt.Errorf("%w: argument contains NUL", ErrProtocol)
	}
	buf := make([]byte, 0, TagSize+len(arg)+1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t))
	buf = append(buf, arg...)
	buf = append(buf, 0)
	_, err := w.Write(buf)
	return err
}

// ReadCommand reads one command frame from a control connection.
func ReadCommand(r *bufio.Reader) (MessageType, string, error) {
	tag, err := readUint32(r)
	if err != nil {
		return MsgInvalid, "", err
	}
	arg, err := readCString(r)
	if err != nil {
		return MsgInvalid, "", err
	}
	return MessageType(tag), arg, nil
}

// WriteResponse writes a RESPONSE frame answering the given command. The tail
// depends on the command: JOIN success carries port and member count, LIST
// success carries the NUL-terminated room list.
func WriteResponse(w io.Writer, cmd MessageType, resp Response) error {
	buf := make([]byte, 0, TagSize+4+len(resp.List)+9)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(MsgResponse))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(resp.Status))

	if resp.Status == StatusSuccess {
		switch cmd {
		case MsgJoin:
			buf = binary.LittleEndian.AppendUint32(buf, resp.Port)
			buf = binary.LittleEndian.AppendUint32(buf, resp.Members)
		case MsgList:
			buf = append(buf, resp.List...)
			buf = append(buf, 0)
		}
	}

	_, err := w.Write(buf)
	return err
}

// ReadResponse reads a RESPONSE frame for the given command. A frame whose tag
// is not RESPONSE is a protocol violation.
func ReadResponse(r *bufio.Reader, cmd MessageType) (Response, error) {
	tag, err := readUint32(r)
	if err != nil {
		return Response{}, err
	}
	if MessageType(tag) != MsgResponse {
		return Response{}, fmt.Errorf("%w: expected RESPONSE tag, got %d", ErrProtocol, tag)
	}

	status, err := readUint32(r)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Status: Status(status)}

	if resp.Status == StatusSuccess {
		switch cmd {
		case MsgJoin:
			if resp.Port, err = readUint32(r); err != nil {
				return Response{}, err
			}
			if resp.Members, err = readUint32(r); err != nil {
				return Response{}, err
			}
		case MsgList:
			if resp.List, err = readCString(r); err != nil {
				return Response{}, err
			}
		}
	}

	return resp, nil
}

// TeardownFrame returns the four-byte frame announcing room destruction to
// chat-mode members. Plain ASCII chat can never start with these bytes.
func TeardownFrame() []byte {
	buf := make([]byte, TagSize)
	binary.LittleEndian.PutUint32(buf, uint32(MsgDelete))
	return buf
}

// IsTeardown reports whether a chat-mode payload starts with the teardown tag.
func IsTeardown(b []byte) bool {
	return len(b) >= TagSize && binary.LittleEndian.Uint32(b) == uint32(MsgDelete)
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}
