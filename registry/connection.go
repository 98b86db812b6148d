package registry

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/peerwire/peerwire/peerid"
	"github.com/peerwire/peerwire/transport"
)

// Direction says which side initiated a connection.
type Direction uint8

const (
	// Inbound connections were accepted by one of our listeners.
	Inbound Direction = iota
	// Outbound connections were dialed by us.
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// State is the lifecycle state of a connection. A slot is Reserved before
// any socket exists, Handshaking once the raw socket is up and identity
// exchange runs, and Established only after the identity is verified and
// the connection is registered. Reserved and Handshaking are represented by
// an unconsumed Reservation; a Connection object exists from Established
// onward, which is what makes an established connection without a verified
// identity unrepresentable.
type State uint8

const (
	// StateEstablished means identity exchange succeeded and the
	// connection is registered.
	StateEstablished State = iota
	// StateClosing means a close was requested or an I/O error was
	// detected, and socket teardown is in progress.
	StateClosing
	// StateClosed is terminal; the socket is down and the slot released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionID uniquely identifies a connection within this process.
type ConnectionID uint64

// Connection is one established link to a remote peer. It exclusively owns
// the underlying socket; ownership transferred to it at registration.
type Connection struct {
	id            ConnectionID
	kind          transport.Kind
	direction     Direction
	remoteAddress string
	peerID        *peerid.PeerID
	conn          net.Conn
	establishedAt time.Time
	registry      *Registry

	stateMutex sync.Mutex
	state      State
	closeDone  chan struct{}
}

// ID returns the process-unique identifier of the connection.
func (c *Connection) ID() ConnectionID { return c.id }

// Kind returns the transport kind the connection runs over.
func (c *Connection) Kind() transport.Kind { return c.kind }

// Direction returns which side initiated the connection.
func (c *Connection) Direction() Direction { return c.direction }

// RemoteAddress returns the remote endpoint address.
func (c *Connection) RemoteAddress() string { return c.remoteAddress }

// PeerID returns the verified identity of the remote peer. It is set
// exactly once, when the connection is registered, and never mutated.
func (c *Connection) PeerID() *peerid.PeerID { return c.peerID }

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	return c.state
}

// NetConn exposes the underlying socket for the embedding application's
// protocol traffic. The Connection keeps ownership; use Close, not
// NetConn().Close(), to tear the link down.
func (c *Connection) NetConn() net.Conn { return c.conn }

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s connection %d to %s (%s)",
		c.direction, c.kind, c.id, c.remoteAddress, c.peerID)
}

// Close tears the connection down: Closing, socket shutdown, Closed, then
// the registry slot is released. It is idempotent; concurrent and repeated
// closes of the same connection are no-ops after the first.
func (c *Connection) Close() {
	c.stateMutex.Lock()
	if c.state != StateEstablished {
		// Already closing or closed on another path; wait for teardown so
		// callers observe Closed strictly after the socket is down.
		done := c.closeDone
		c.stateMutex.Unlock()
		<-done
		return
	}
	c.state = StateClosing
	c.stateMutex.Unlock()

	err := c.conn.Close()
	if err != nil {
		log.Debugf("Error closing socket of %s: %s", c, err)
	}

	c.stateMutex.Lock()
	c.state = StateClosed
	close(c.closeDone)
	c.stateMutex.Unlock()

	c.registry.Release(c.id)
}

// ConnectionInfo is a point-in-time summary of one connection, as exposed
// to the embedding application.
type ConnectionInfo struct {
	ID            ConnectionID
	Kind          transport.Kind
	Direction     Direction
	RemoteAddress string
	PeerID        *peerid.PeerID
	State         State
	EstablishedAt time.Time
}

// Info returns a point-in-time summary of the connection.
func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:            c.id,
		Kind:          c.kind,
		Direction:     c.direction,
		RemoteAddress: c.remoteAddress,
		PeerID:        c.peerID,
		State:         c.State(),
		EstablishedAt: c.establishedAt,
	}
}
