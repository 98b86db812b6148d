package peerwire

import (
	"time"

	"github.com/peerwire/peerwire/handshake"
	"github.com/peerwire/peerwire/registry"
	"github.com/peerwire/peerwire/transport"
)

// TryConnect attempts one outbound connection to address over the given
// transport kind. The timeout is a hard deadline covering both the
// transport-level connect and the handshake, counted from the call; a
// non-positive timeout uses the configured dial timeout.
//
// The outbound slot is reserved before any I/O and returned on every
// failure path, so an attempt of any outcome leaves the counters exactly
// where a leak-free accounting demands. No retry is attempted; retry
// policy belongs to the caller.
func (m *Manager) TryConnect(kind transport.Kind, address string,
	timeout time.Duration) (registry.ConnectionID, error) {

	if m.isClosed() {
		return 0, ErrManagerClosed
	}
	if timeout <= 0 {
		timeout = m.cfg.DialTimeout
	}
	deadline := time.Now().Add(timeout)

	trans, err := transport.ForKind(kind)
	if err != nil {
		return 0, err
	}

	reservation, err := m.registry.TryReserve(registry.Outbound)
	if err != nil {
		return 0, err
	}

	conn, err := trans.Dial(address, m.cfg.DialConfig, time.Until(deadline))
	if err != nil {
		m.registry.AbortReservation(reservation)
		return 0, err
	}

	remoteID, err := handshake.Perform(conn, m.keyPair, deadline)
	if err != nil {
		m.registry.AbortReservation(reservation)
		_ = conn.Close()
		return 0, err
	}

	connection, err := m.finishConnection(reservation, kind, address, remoteID, conn)
	if err != nil {
		return 0, err
	}
	return connection.ID(), nil
}
