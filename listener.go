package peerwire

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/peerwire/peerwire/handshake"
	"github.com/peerwire/peerwire/registry"
	"github.com/peerwire/peerwire/transport"
	"github.com/pkg/errors"
)

type listenerKey struct {
	kind    transport.Kind
	address string
}

// listener owns one bound acceptor and the goroutine running its accept
// loop. Each accepted socket is handled on its own goroutine, so a slow
// handshake never stalls further accepts.
type listener struct {
	manager  *Manager
	kind     transport.Kind
	address  string // bound address, not necessarily the requested one
	acceptor transport.Acceptor

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}

	failedMutex sync.Mutex
	failedErr   error
}

// ListenerInfo is a point-in-time summary of one listener.
type ListenerInfo struct {
	Kind    transport.Kind
	Address string
	Running bool
	Err     error
}

// StartListener binds address on the given transport kind and starts
// accepting inbound connections on a background goroutine. At most one
// listener per (kind, address) may be active; a duplicate start fails with
// ErrAlreadyListening rather than silently replacing the existing one.
func (m *Manager) StartListener(kind transport.Kind, address string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	trans, err := transport.ForKind(kind)
	if err != nil {
		return err
	}

	m.listenersMutex.Lock()
	defer m.listenersMutex.Unlock()

	if _, ok := m.listeners[listenerKey{kind: kind, address: address}]; ok {
		return errors.Wrapf(ErrAlreadyListening, "%s/%s", kind, address)
	}

	acceptor, err := trans.Bind(address)
	if err != nil {
		return err
	}
	boundAddress := acceptor.Addr().String()
	key := listenerKey{kind: kind, address: boundAddress}
	if _, ok := m.listeners[key]; ok {
		// The bound form of a fresh acceptor collides with an active
		// listener only if the requested address was spelled differently.
		_ = acceptor.Close()
		return errors.Wrapf(ErrAlreadyListening, "%s/%s", kind, boundAddress)
	}

	l := &listener{
		manager:  m,
		kind:     kind,
		address:  boundAddress,
		acceptor: acceptor,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	m.listeners[key] = l

	spawn(fmt.Sprintf("listener.acceptLoop-%s", boundAddress), l.acceptLoop)
	log.Infof("Listening on %s/%s", kind, boundAddress)
	return nil
}

// StopListener signals the listener on (kind, address) to stop, closes its
// acceptor and waits for its accept loop to exit. Connections it already
// established stay up; only the listening socket closes. Stopping an
// unknown listener returns ErrListenerNotFound.
//
// For listeners started on a wildcard port, address is the bound address
// reported by Listeners.
func (m *Manager) StopListener(kind transport.Kind, address string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	m.listenersMutex.Lock()
	key := listenerKey{kind: kind, address: address}
	l, ok := m.listeners[key]
	if ok {
		delete(m.listeners, key)
	}
	m.listenersMutex.Unlock()

	if !ok {
		return errors.Wrapf(ErrListenerNotFound, "%s/%s", kind, address)
	}
	l.stop()
	log.Infof("Stopped listening on %s/%s", kind, address)
	return nil
}

// Listeners returns summaries of all listeners this manager has started
// and not yet stopped, including ones whose accept loop died on a fatal
// acceptor error.
func (m *Manager) Listeners() []ListenerInfo {
	m.listenersMutex.Lock()
	defer m.listenersMutex.Unlock()

	infos := make([]ListenerInfo, 0, len(m.listeners))
	for _, l := range m.listeners {
		running := true
		select {
		case <-l.doneChan:
			running = false
		default:
		}
		infos = append(infos, ListenerInfo{
			Kind:    l.kind,
			Address: l.address,
			Running: running,
			Err:     l.failure(),
		})
	}
	return infos
}

// stop is idempotent and safe to call from multiple goroutines. It returns
// once the accept loop has fully exited.
func (l *listener) stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		err := l.acceptor.Close()
		if err != nil {
			log.Debugf("Error closing acceptor on %s: %s", l.address, err)
		}
	})
	<-l.doneChan
}

func (l *listener) stopped() bool {
	select {
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

func (l *listener) failure() error {
	l.failedMutex.Lock()
	defer l.failedMutex.Unlock()
	return l.failedErr
}

func (l *listener) setFailure(err error) {
	l.failedMutex.Lock()
	defer l.failedMutex.Unlock()
	l.failedErr = err
}

func (l *listener) acceptLoop() {
	defer close(l.doneChan)

	for {
		conn, err := l.acceptor.Accept()
		if err != nil {
			if l.stopped() {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				// One failed accept doesn't invalidate the acceptor.
				log.Warnf("Temporary error accepting on %s: %s", l.address, err)
				continue
			}
			// The listening socket itself became unusable. The handle
			// stays in the manager's map, marked failed, so the state
			// change is observable through Listeners.
			l.setFailure(err)
			log.Errorf("Accept loop on %s/%s terminated: %s", l.kind, l.address, err)
			return
		}

		spawn(fmt.Sprintf("listener.handleInbound-%s", conn.RemoteAddr()), func() {
			l.handleInbound(conn)
		})
	}
}

// handleInbound admits one accepted socket: reserve an inbound slot, run
// the handshake, then register. A reservation failure closes the raw
// socket immediately with no handshake I/O, which keeps cap-exceeding
// floods cheap. Any later failure aborts the reservation and closes the
// socket; nothing leaks.
func (l *listener) handleInbound(conn net.Conn) {
	m := l.manager

	reservation, err := m.registry.TryReserve(registry.Inbound)
	if err != nil {
		log.Debugf("Rejecting connection from %s: %s", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	deadline := handshakeDeadline(time.Time{}, m.cfg.HandshakeTimeout)
	remoteID, err := handshake.Perform(conn, m.keyPair, deadline)
	if err != nil {
		m.registry.AbortReservation(reservation)
		_ = conn.Close()
		log.Debugf("Handshake with %s failed: %s", conn.RemoteAddr(), err)
		return
	}

	_, err = m.finishConnection(reservation, l.kind, conn.RemoteAddr().String(), remoteID, conn)
	if err != nil {
		log.Debugf("Not keeping connection from %s: %s", conn.RemoteAddr(), err)
	}
}
