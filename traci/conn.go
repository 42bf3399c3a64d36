package traci

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Error is a non-OK status answered by the simulator for a command.
type Error struct {
	Command byte
	Status  byte
	Message string
}

func (e *Error) Error() string {
	kind := "error"
	if e.Status == statusNotImplemented {
		kind = "not implemented"
	}
	return fmt.Sprintf("traci: command 0x%02x: %s: %s", e.Command, kind, e.Message)
}

// encodeCommand frames one command. Commands longer than 255 bytes use the
// extended form: a zero length byte followed by an int32 length.
func encodeCommand(id byte, content []byte) []byte {
	var s storage
	n := 1 + 1 + len(content)
	if n <= 255 {
		s.ubyte(byte(n))
	} else {
		s.ubyte(0)
		s.int32(int32(n + 4))
	}
	s.ubyte(id)
	s.buf.Write(content)
	return s.bytes()
}

// ErrClosed is returned by commands issued after the connection was closed.
var ErrClosed = errors.New("traci: connection closed")

// conn carries one request/response exchange at a time over a TraCI socket.
type conn struct {
	mu     sync.Mutex
	nc     net.Conn
	closed bool
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc}
}

// exchange sends a single command and reads the simulator's answer. The returned
// reader is positioned after the status of the command, at its response (if any).
func (c *conn) exchange(ctx context.Context, id byte, content []byte) (*reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.roundTrip(ctx, id, content)
}

// roundTrip writes one command and reads its answer. Callers hold mu.
func (c *conn) roundTrip(ctx context.Context, id byte, content []byte) (*reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.nc.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "setting deadline")
	}
	defer func() { _ = c.nc.SetDeadline(time.Time{}) }()

	cmd := encodeCommand(id, content)
	var msg storage
	msg.int32(int32(4 + len(cmd)))
	msg.buf.Write(cmd)
	if _, err := c.nc.Write(msg.bytes()); err != nil {
		return nil, errors.Wrapf(err, "sending command 0x%02x", id)
	}

	var header [4]byte
	if _, err := io.ReadFull(c.nc, header[:]); err != nil {
		return nil, errors.Wrapf(err, "reading answer to 0x%02x", id)
	}
	total, _ := newReader(header[:]).int32()
	if total < 4 {
		return nil, errors.Errorf("traci: invalid message length %d", total)
	}
	body := make([]byte, total-4)
	if _, err := io.ReadFull(c.nc, body); err != nil {
		return nil, errors.Wrapf(err, "reading answer to 0x%02x", id)
	}

	r := newReader(body)
	if err := r.status(id); err != nil {
		return nil, err
	}
	return r, nil
}

// status consumes the status command answering command id.
func (r *reader) status(id byte) error {
	start := r.pos
	n, err := r.length()
	if err != nil {
		return errors.Wrap(err, "reading status")
	}
	sid, err := r.ubyte()
	if err != nil {
		return errors.Wrap(err, "reading status")
	}
	result, err := r.ubyte()
	if err != nil {
		return errors.Wrap(err, "reading status")
	}
	desc, err := r.str()
	if err != nil {
		return errors.Wrap(err, "reading status")
	}
	if sid != id {
		return errors.Errorf("traci: status for command 0x%02x, expected 0x%02x", sid, id)
	}
	if result != statusOK {
		return &Error{Command: id, Status: result, Message: desc}
	}
	if end := start + n; end >= r.pos && end <= len(r.data) {
		r.pos = end
	}
	return nil
}

// shutdown sends the close command and closes the socket. first is false when
// the connection had already been shut down, in which case nothing is sent.
func (c *conn) shutdown(ctx context.Context) (first bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, nil
	}
	c.closed = true
	if _, cerr := c.roundTrip(ctx, cmdClose, nil); cerr != nil {
		err = errors.Wrap(cerr, "close")
	}
	if nerr := c.nc.Close(); nerr != nil && err == nil {
		err = nerr
	}
	return true, err
}

// abort closes the socket without the close command.
func (c *conn) abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.nc.Close()
}
