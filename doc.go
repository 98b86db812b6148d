/*
Package peerwire establishes, accepts, limits and tears down
transport-level connections between network peers identified by
cryptographic public keys.

The Manager is the entry point. It starts and stops listeners per
transport kind and bind address, dials out with timeouts, enforces
per-direction connection caps, verifies peer identity during connection
establishment through a signed-nonce handshake, and keeps a consistent,
concurrently-accessed registry of live connections. What application
protocol rides on an established connection is up to the embedding
application, which reads connections from the registry.

	cfg := &peerwire.Config{
		MaxInbound:  32,
		MaxOutbound: 8,
	}
	manager, err := peerwire.New(cfg)
	if err != nil {
		// handle err
	}
	defer manager.Close()

	err = manager.StartListener(transport.KindTCP, ":18333")
	if err != nil {
		// handle err
	}
	id, err := manager.TryConnect(transport.KindTCP, "203.0.113.7:18333", 5*time.Second)

Peer discovery, NAT traversal and message-level semantics are out of
scope; this library stops where a verified, registered connection begins.
*/
package peerwire
