package peerwire

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peerwire/peerwire/peerid"
	"github.com/peerwire/peerwire/registry"
	"github.com/peerwire/peerwire/transport"
	"github.com/pkg/errors"
)

var (
	// ErrAlreadyListening is returned by StartListener for a (kind,
	// address) pair this manager already listens on.
	ErrAlreadyListening = errors.New("already listening")

	// ErrListenerNotFound is returned by StopListener for a (kind,
	// address) pair with no active listener. It is reportable, not fatal.
	ErrListenerNotFound = errors.New("listener not found")

	// ErrPeerAlreadyConnected is returned when a freshly handshaked
	// connection loses duplicate resolution against an existing connection
	// to the same peer.
	ErrPeerAlreadyConnected = errors.New("peer already connected")

	// ErrManagerClosed is returned by every operation after Close.
	ErrManagerClosed = errors.New("manager is closed")
)

// Manager establishes, accepts, limits and tears down connections to
// remote peers. It coordinates one listener per (transport kind, bind
// address), a connector for outbound dials, and the shared registry both
// feed into.
type Manager struct {
	cfg      *Config
	keyPair  *peerid.KeyPair
	registry *registry.Registry

	listenersMutex sync.Mutex
	listeners      map[listenerKey]*listener

	// resolveMutex serializes post-handshake duplicate resolution, so two
	// concurrent handshakes with the same peer can't both register.
	resolveMutex sync.Mutex

	closed uint32
}

// New creates a Manager from cfg. No listener is started and no peer is
// dialed yet.
func New(cfg *Config) (*Manager, error) {
	snapshot, err := cfg.normalized()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       snapshot,
		keyPair:   snapshot.KeyPair,
		registry:  registry.New(snapshot.MaxInbound, snapshot.MaxOutbound),
		listeners: make(map[listenerKey]*listener),
	}
	m.registry.SetOnRelease(func(id registry.ConnectionID) {
		if snapshot.OnConnectionRemoved != nil {
			spawn("Manager.onConnectionRemoved", func() {
				snapshot.OnConnectionRemoved(id)
			})
		}
	})

	log.Debugf("Created manager with identity %s (max %d in, %d out)",
		m.keyPair.PeerID(), snapshot.MaxInbound, snapshot.MaxOutbound)
	return m, nil
}

// LocalPeerID returns the identity other peers know this node by.
func (m *Manager) LocalPeerID() *peerid.PeerID {
	return m.keyPair.PeerID()
}

// ConnectionsSnapshot returns summaries of all live connections, ordered
// by connection id.
func (m *Manager) ConnectionsSnapshot() []registry.ConnectionInfo {
	return m.registry.Snapshot()
}

// Connection returns the live connection with the given id.
func (m *Manager) Connection(id registry.ConnectionID) (*registry.Connection, bool) {
	return m.registry.Lookup(id)
}

// InboundCount returns the number of claimed inbound slots, including
// attempts still handshaking.
func (m *Manager) InboundCount() uint32 {
	return m.registry.InboundCount()
}

// OutboundCount returns the number of claimed outbound slots, including
// attempts still handshaking.
func (m *Manager) OutboundCount() uint32 {
	return m.registry.OutboundCount()
}

// CloseConnection closes the connection with the given id and waits for
// its socket teardown. Unknown or already-closed ids are a no-op.
func (m *Manager) CloseConnection(id registry.ConnectionID) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	connection, ok := m.registry.Lookup(id)
	if !ok {
		return nil
	}
	connection.Close()
	return nil
}

// ConnectInitialPeers dials every configured initial peer once, each
// attempt on its own goroutine bounded by the configured dial timeout.
// Failures are logged and not retried; retry policy belongs to the caller.
func (m *Manager) ConnectInitialPeers() error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	for _, peer := range m.cfg.InitialPeers {
		peer := peer
		spawn("Manager.ConnectInitialPeers", func() {
			_, err := m.TryConnect(peer.Kind, peer.Address, m.cfg.DialTimeout)
			if err != nil {
				log.Warnf("Could not connect to initial peer %s/%s: %s",
					peer.Kind, peer.Address, err)
			}
		})
	}
	return nil
}

// Close stops every active listener and closes every live connection, in
// that order. It is idempotent; operations on a closed manager return
// ErrManagerClosed.
func (m *Manager) Close() error {
	if !atomic.CompareAndSwapUint32(&m.closed, 0, 1) {
		return nil
	}

	m.listenersMutex.Lock()
	listeners := make([]*listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listeners = make(map[listenerKey]*listener)
	m.listenersMutex.Unlock()

	for _, l := range listeners {
		l.stop()
	}

	// A handshake that was already in flight when the closed flag flipped
	// may still be inside finishConnection. Taking resolveMutex here waits
	// it out, so its registration either completes before CloseAll or is
	// rejected by the closed check under the same mutex.
	m.resolveMutex.Lock()
	m.resolveMutex.Unlock()

	m.registry.CloseAll()
	log.Debugf("Manager %s closed", m.keyPair.PeerID())
	return nil
}

func (m *Manager) isClosed() bool {
	return atomic.LoadUint32(&m.closed) != 0
}

// finishConnection runs duplicate resolution for a freshly handshaked
// socket and registers it. On rejection the reservation is aborted, the
// socket closed and ErrPeerAlreadyConnected returned.
//
// Both ends resolve a simultaneous-dial duplicate identically without
// coordination: the surviving link is the outbound side owned by the
// lexicographically-smaller peer id.
func (m *Manager) finishConnection(reservation *registry.Reservation,
	kind transport.Kind, remoteAddress string, remoteID *peerid.PeerID,
	conn net.Conn) (*registry.Connection, error) {

	m.resolveMutex.Lock()
	defer m.resolveMutex.Unlock()

	if m.isClosed() {
		m.registry.AbortReservation(reservation)
		_ = conn.Close()
		return nil, errors.Wrapf(ErrManagerClosed,
			"dropping %s connection from %s", reservation.Direction(), remoteAddress)
	}

	existing, ok := m.registry.FindByPeer(remoteID)
	if ok {
		survivor := duplicateSurvivorDirection(m.keyPair.PeerID(), remoteID)
		if reservation.Direction() == survivor && existing.Direction() != survivor {
			log.Debugf("Replacing %s after duplicate resolution", existing)
			existing.Close()
		} else {
			m.registry.AbortReservation(reservation)
			_ = conn.Close()
			return nil, errors.Wrapf(ErrPeerAlreadyConnected,
				"keeping %s, rejecting new %s connection from %s",
				existing, reservation.Direction(), remoteAddress)
		}
	}

	connection := m.registry.Register(reservation, kind, remoteAddress, remoteID, conn)
	log.Infof("Registered %s", connection)
	if m.cfg.OnConnectionAdded != nil {
		info := connection.Info()
		spawn("Manager.onConnectionAdded", func() {
			m.cfg.OnConnectionAdded(info)
		})
	}
	return connection, nil
}

// duplicateSurvivorDirection returns, from the local point of view, the
// direction of the connection that survives when both sides hold a link to
// the same peer. Comparing the same two identities on both ends yields the
// same physical connection.
func duplicateSurvivorDirection(localID, remoteID *peerid.PeerID) registry.Direction {
	if localID.Less(remoteID) {
		return registry.Outbound
	}
	return registry.Inbound
}

// handshakeDeadline bounds an identity exchange that must also respect an
// outer attempt deadline.
func handshakeDeadline(outer time.Time, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if !outer.IsZero() && outer.Before(deadline) {
		return outer
	}
	return deadline
}
