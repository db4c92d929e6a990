// Package conn defines Connection, the unit owned exclusively by either the pool,
// a rented handle, or a Drop-path transfer between the two — never shared.
package conn

import (
	"bufio"
	"net"
	"time"
)

// DefaultBufferSize is the default capacity of a Connection's read and write buffers.
const DefaultBufferSize = 4096

// State is a Connection's disposition. A Connection in state Closed is never re-pooled.
type State int

const (
	// InUse is the initial state on construction, and the state an exchange is left in
	// if the execute engine aborts without explicitly classifying the connection.
	InUse State = iota
	// Recyclable means the last exchange completed cleanly and the connection is safe
	// to hand to a future caller.
	Recyclable
	// Closed means the connection must never be re-pooled; further I/O fails
	// deterministically.
	Closed
)

func (s State) String() string {
	switch s {
	case Recyclable:
		return "recyclable"
	case Closed:
		return "closed"
	default:
		return "in_use"
	}
}

// Connection owns a TCP stream with bounded read/write buffers and a disposition state.
type Connection struct {
	peerAddr net.Addr
	raw      net.Conn
	r        *bufio.Reader
	w        *bufio.Writer
	state    State
}

// New wraps a freshly-dialed net.Conn. Initial state is InUse.
func New(raw net.Conn) *Connection {
	return &Connection{
		peerAddr: raw.RemoteAddr(),
		raw:      raw,
		r:        bufio.NewReaderSize(raw, DefaultBufferSize),
		w:        bufio.NewWriterSize(raw, DefaultBufferSize),
		state:    InUse,
	}
}

// PeerAddr is the TCP endpoint this connection talks to.
func (c *Connection) PeerAddr() net.Addr { return c.peerAddr }

// Reader exposes the buffered read side for the execute engine's decoder feed.
func (c *Connection) Reader() *bufio.Reader { return c.r }

// Writer exposes the buffered write side for the execute engine's encoder drain.
func (c *Connection) Writer() *bufio.Writer { return c.w }

// Raw exposes the underlying net.Conn, e.g. for SetDeadline.
func (c *Connection) Raw() net.Conn { return c.raw }

// State returns the current disposition.
func (c *Connection) State() State { return c.state }

// SetState transitions the disposition. A transition to Closed also closes the
// underlying socket so any further I/O attempt fails deterministically.
func (c *Connection) SetState(s State) {
	c.state = s
	if s == Closed {
		_ = c.raw.Close()
	}
}

// SetDeadline forwards to the underlying connection; httpreq uses it to apply a
// request's overall deadline to the exchange's I/O.
func (c *Connection) SetDeadline(t time.Time) error { return c.raw.SetDeadline(t) }

// Close is idempotent and always transitions to Closed.
func (c *Connection) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed
	return c.raw.Close()
}
