// Package registry keeps the shared ledger of live connections and the
// per-direction connection counters checked against the configured maxima.
//
// The map and both counters form a single mutual-exclusion domain: every
// reservation, registration, release and abort is one indivisible operation
// under one mutex, so no caller can ever observe the counters and the map
// disagreeing.
package registry

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/peerwire/peerwire/peerid"
	"github.com/peerwire/peerwire/transport"
	"github.com/pkg/errors"
)

// ErrLimitReached is returned by TryReserve when the counter for the
// requested direction is at its configured maximum.
var ErrLimitReached = errors.New("connection limit reached")

// Registry is the thread-safe ledger of all live connections. A single
// Registry is shared by every listener and connector of a Manager and
// outlives all of them.
type Registry struct {
	maxInbound  uint32
	maxOutbound uint32

	mutex         sync.Mutex
	connections   map[ConnectionID]*Connection
	inboundCount  uint32
	outboundCount uint32
	nextID        ConnectionID
	onRelease     func(ConnectionID)
}

// SetOnRelease installs a hook invoked after an entry is removed and its
// counter decremented. Must be set before the registry is shared.
func (r *Registry) SetOnRelease(onRelease func(ConnectionID)) {
	r.onRelease = onRelease
}

// New creates an empty registry enforcing the given per-direction maxima.
// A maximum of zero is legal and means no connections of that direction are
// permitted.
func New(maxInbound, maxOutbound uint32) *Registry {
	return &Registry{
		maxInbound:  maxInbound,
		maxOutbound: maxOutbound,
		connections: make(map[ConnectionID]*Connection),
		nextID:      1,
	}
}

// Reservation is a provisional claim on one connection slot. It is taken
// before any handshake I/O begins, which bounds resource usage even under a
// flood of concurrent attempts, and is settled exactly once: either
// consumed by Register or returned by AbortReservation.
type Reservation struct {
	direction Direction
	settled   bool
}

// Direction returns the direction the slot was reserved for.
func (r *Reservation) Direction() Direction { return r.direction }

// TryReserve atomically checks the counter for direction against its
// maximum and claims a slot. At the limit it fails with ErrLimitReached and
// performs no mutation. This is the sole admission gate: no connection
// attempt may start handshake I/O without holding a Reservation.
func (r *Registry) TryReserve(direction Direction) (*Reservation, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	counter, max := &r.inboundCount, r.maxInbound
	if direction == Outbound {
		counter, max = &r.outboundCount, r.maxOutbound
	}
	if *counter >= max {
		return nil, errors.Wrapf(ErrLimitReached, "%s limit of %d reached", direction, max)
	}
	*counter++
	return &Reservation{direction: direction}, nil
}

// AbortReservation returns a slot that never became a connection, after a
// failed dial or handshake. Aborting an already-settled reservation is a
// no-op, so concurrent failure paths cannot double-decrement.
func (r *Registry) AbortReservation(reservation *Reservation) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if reservation.settled {
		return
	}
	reservation.settled = true
	r.decrement(reservation.direction)
}

// Register consumes the reservation and inserts a new Established
// connection, transferring ownership of the socket to it. It always
// succeeds given an unsettled reservation.
func (r *Registry) Register(reservation *Reservation, kind transport.Kind,
	remoteAddress string, peer *peerid.PeerID, conn net.Conn) *Connection {

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if reservation.settled {
		panic("registering an already-settled reservation")
	}
	reservation.settled = true

	connection := &Connection{
		id:            r.nextID,
		kind:          kind,
		direction:     reservation.direction,
		remoteAddress: remoteAddress,
		peerID:        peer,
		conn:          conn,
		establishedAt: time.Now(),
		registry:      r,
		state:         StateEstablished,
		closeDone:     make(chan struct{}),
	}
	r.nextID++
	r.connections[connection.id] = connection
	return connection
}

// Release removes the entry for id and decrements the matching counter.
// Releasing an already-released or unknown id is a no-op, never an error,
// so concurrent close paths cannot double-fault.
func (r *Registry) Release(id ConnectionID) {
	r.mutex.Lock()
	connection, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
		r.decrement(connection.direction)
	}
	onRelease := r.onRelease
	r.mutex.Unlock()

	if ok {
		log.Debugf("Released %s", connection)
		if onRelease != nil {
			onRelease(id)
		}
	}
}

// decrement is called with the mutex held.
func (r *Registry) decrement(direction Direction) {
	if direction == Inbound {
		if r.inboundCount == 0 {
			panic("inbound counter underflow")
		}
		r.inboundCount--
		return
	}
	if r.outboundCount == 0 {
		panic("outbound counter underflow")
	}
	r.outboundCount--
}

// Lookup returns the connection with the given id, if it is live.
func (r *Registry) Lookup(id ConnectionID) (*Connection, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	connection, ok := r.connections[id]
	return connection, ok
}

// FindByPeer returns a live connection whose verified identity equals peer,
// if one exists. Used for duplicate-connection resolution.
func (r *Registry) FindByPeer(peer *peerid.PeerID) (*Connection, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, connection := range r.connections {
		if connection.peerID.Equal(peer) {
			return connection, true
		}
	}
	return nil, false
}

// Snapshot returns summaries of all live connections, ordered by id.
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mutex.Lock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, connection := range r.connections {
		connections = append(connections, connection)
	}
	r.mutex.Unlock()

	// Connection.State takes the connection's own lock, so build the infos
	// outside the registry's critical section.
	infos := make([]ConnectionInfo, 0, len(connections))
	for _, connection := range connections {
		infos = append(infos, connection.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// InboundCount returns the current number of claimed inbound slots.
func (r *Registry) InboundCount() uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.inboundCount
}

// OutboundCount returns the current number of claimed outbound slots.
func (r *Registry) OutboundCount() uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.outboundCount
}

// CloseAll closes every live connection and blocks until their sockets are
// down and slots released.
func (r *Registry) CloseAll() {
	r.mutex.Lock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, connection := range r.connections {
		connections = append(connections, connection)
	}
	r.mutex.Unlock()

	for _, connection := range connections {
		connection.Close()
	}
}
