// Package transport abstracts the underlying network protocols used to move
// bytes between peers. Each transport kind knows how to bind a listening
// acceptor and how to dial out, and hands raw sockets to the connection
// manager, which owns their lifecycle from that point on.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Kind designates one supported underlying network protocol. The set of
// kinds is closed and small; new transports are added here, not through
// open-ended dynamic dispatch.
type Kind uint8

const (
	// KindTCP is the TCP transport.
	KindTCP Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

var (
	// ErrBindFailed is returned when a listening address is unavailable:
	// in use, permission denied or invalid.
	ErrBindFailed = errors.New("bind failed")

	// ErrDialFailed is returned when an outbound connection is refused or
	// the remote address is unreachable.
	ErrDialFailed = errors.New("dial failed")

	// ErrDialTimedOut is returned when the timeout elapses before the
	// transport-level connect completes.
	ErrDialTimedOut = errors.New("dial timed out")

	// ErrUnknownKind is returned for a transport kind this build doesn't
	// support.
	ErrUnknownKind = errors.New("unknown transport kind")
)

// Acceptor wraps a bound listening socket. Accept blocks until one inbound
// raw socket arrives; it is used only by a listener's accept loop, which
// owns the Acceptor exclusively.
type Acceptor interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

// Transport is the capability set of one transport kind.
type Transport interface {
	Kind() Kind

	// Bind produces a listening Acceptor on the given address, or fails
	// with ErrBindFailed.
	Bind(address string) (Acceptor, error)

	// Dial produces an established raw socket to the given remote address
	// within timeout. Failures are ErrDialFailed or ErrDialTimedOut.
	Dial(address string, config *DialConfig, timeout time.Duration) (net.Conn, error)
}

// DialConfig carries the per-kind outbound configuration. For TCP it is an
// optional SOCKS5 proxy; a nil DialConfig means a direct dial.
type DialConfig struct {
	Proxy *ProxyConfig
}

// ProxyConfig configures dialing through a SOCKS5 proxy.
type ProxyConfig struct {
	Address  string
	Username string
	Password string
}

// ForKind returns the Transport implementation for the given kind.
func ForKind(kind Kind) (Transport, error) {
	switch kind {
	case KindTCP:
		return &tcpTransport{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind %d", kind)
	}
}
