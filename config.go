package peerwire

import (
	"time"

	"github.com/peerwire/peerwire/peerid"
	"github.com/peerwire/peerwire/registry"
	"github.com/peerwire/peerwire/transport"
	"github.com/pkg/errors"
)

const (
	defaultDialTimeout      = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// NetAddress is one reachable peer endpoint: an address on a specific
// transport kind.
type NetAddress struct {
	Kind    transport.Kind
	Address string
}

// Config holds everything a Manager needs. The Manager takes an immutable
// snapshot of it at construction; later mutation by the caller has no
// effect.
type Config struct {
	// MaxInbound and MaxOutbound cap the number of connections per
	// direction. Zero is legal and means no connections of that direction
	// are permitted.
	MaxInbound  uint32
	MaxOutbound uint32

	// KeyPair is the local peer's identity. When nil, New generates a
	// fresh one.
	KeyPair *peerid.KeyPair

	// InitialPeers are dialed once, in order, by ConnectInitialPeers.
	InitialPeers []NetAddress

	// DialTimeout bounds a whole TryConnect attempt (transport connect
	// plus handshake) when the caller passes no explicit timeout, and is
	// used for initial-peer dials. Defaults to 30s.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the identity exchange on accepted inbound
	// sockets. Defaults to 10s.
	HandshakeTimeout time.Duration

	// DialConfig is the outbound configuration handed to the transport,
	// e.g. a SOCKS5 proxy for TCP. Nil means direct dials.
	DialConfig *transport.DialConfig

	// OnConnectionAdded, when set, is called after a connection reaches
	// Established and is visible in the registry. It runs on its own
	// goroutine and may call back into the Manager.
	OnConnectionAdded func(registry.ConnectionInfo)

	// OnConnectionRemoved, when set, is called after a connection is
	// closed and its slot released. It runs on its own goroutine and may
	// call back into the Manager.
	OnConnectionRemoved func(registry.ConnectionID)
}

// normalized returns a defensive copy of cfg with defaults filled in and a
// keypair generated when none was supplied.
func (cfg *Config) normalized() (*Config, error) {
	snapshot := *cfg
	snapshot.InitialPeers = append([]NetAddress(nil), cfg.InitialPeers...)

	if snapshot.KeyPair == nil {
		keyPair, err := peerid.GenerateKeyPair()
		if err != nil {
			return nil, errors.Wrap(err, "generating identity keypair")
		}
		snapshot.KeyPair = keyPair
	}
	if snapshot.DialTimeout <= 0 {
		snapshot.DialTimeout = defaultDialTimeout
	}
	if snapshot.HandshakeTimeout <= 0 {
		snapshot.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &snapshot, nil
}
