package handshake

import (
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/peerwire/peerwire/peerid"
	"github.com/pkg/errors"
)

// tcpPair returns two ends of a real loopback TCP connection. The exchange
// relies on kernel socket buffering, so an unbuffered in-memory pipe won't
// do.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening on loopback failed: %+v", err)
	}
	defer listener.Close()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptedChan := make(chan acceptResult, 1)
	go func() {
		conn, err := listener.Accept()
		acceptedChan <- acceptResult{conn, err}
	}()

	dialed, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing loopback failed: %+v", err)
	}
	accepted := <-acceptedChan
	if accepted.err != nil {
		t.Fatalf("accepting loopback connection failed: %+v", accepted.err)
	}

	t.Cleanup(func() {
		_ = dialed.Close()
		_ = accepted.conn.Close()
	})
	return dialed, accepted.conn
}

func testKeyPair(t *testing.T) *peerid.KeyPair {
	keyPair, err := peerid.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %+v", err)
	}
	return keyPair
}

type performResult struct {
	remoteID *peerid.PeerID
	err      error
}

func performAsync(conn net.Conn, keyPair *peerid.KeyPair, deadline time.Time) chan performResult {
	resultChan := make(chan performResult, 1)
	go func() {
		remoteID, err := Perform(conn, keyPair, deadline)
		resultChan <- performResult{remoteID, err}
	}()
	return resultChan
}

func TestPerform(t *testing.T) {
	connA, connB := tcpPair(t)
	keyPairA, keyPairB := testKeyPair(t), testKeyPair(t)
	deadline := time.Now().Add(5 * time.Second)

	resultChanA := performAsync(connA, keyPairA, deadline)
	resultChanB := performAsync(connB, keyPairB, deadline)

	resultA, resultB := <-resultChanA, <-resultChanB
	if resultA.err != nil {
		t.Fatalf("side A handshake failed: %+v", resultA.err)
	}
	if resultB.err != nil {
		t.Fatalf("side B handshake failed: %+v", resultB.err)
	}
	if !resultA.remoteID.Equal(keyPairB.PeerID()) {
		t.Fatalf("side A saw peer %s, want %s", resultA.remoteID, keyPairB.PeerID())
	}
	if !resultB.remoteID.Equal(keyPairA.PeerID()) {
		t.Fatalf("side B saw peer %s, want %s", resultB.remoteID, keyPairA.PeerID())
	}
}

func TestPerformRejectsSelfConnection(t *testing.T) {
	connA, connB := tcpPair(t)
	keyPair := testKeyPair(t)
	deadline := time.Now().Add(5 * time.Second)

	resultChanA := performAsync(connA, keyPair, deadline)
	resultChanB := performAsync(connB, keyPair, deadline)

	resultA, resultB := <-resultChanA, <-resultChanB
	if !errors.Is(resultA.err, ErrHandshakeFailed) {
		t.Fatalf("side A accepted a self-connection: %+v", resultA.err)
	}
	if !errors.Is(resultB.err, ErrHandshakeFailed) {
		t.Fatalf("side B accepted a self-connection: %+v", resultB.err)
	}
}

func TestPerformRejectsBadProof(t *testing.T) {
	connA, connB := tcpPair(t)
	keyPairA, keyPairB := testKeyPair(t), testKeyPair(t)
	deadline := time.Now().Add(5 * time.Second)

	resultChanA := performAsync(connA, keyPairA, deadline)

	// Side B plays the protocol by hand: a well-formed hello followed by a
	// garbage proof.
	hello := make([]byte, 0, helloLength)
	hello = append(hello, keyPairB.PeerID().Bytes()...)
	challenge := make([]byte, challengeLength)
	_, err := rand.Read(challenge)
	if err != nil {
		t.Fatalf("generating challenge failed: %+v", err)
	}
	hello = append(hello, challenge...)
	_, err = connB.Write(hello)
	if err != nil {
		t.Fatalf("writing hello failed: %+v", err)
	}
	badProof := make([]byte, peerid.SignatureLength)
	_, err = connB.Write(badProof)
	if err != nil {
		t.Fatalf("writing proof failed: %+v", err)
	}

	resultA := <-resultChanA
	if !errors.Is(resultA.err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed on a bad proof, got: %+v", resultA.err)
	}
}

func TestPerformRejectsMalformedKey(t *testing.T) {
	connA, connB := tcpPair(t)
	keyPairA := testKeyPair(t)
	deadline := time.Now().Add(5 * time.Second)

	resultChanA := performAsync(connA, keyPairA, deadline)

	// All-ones is above the curve's field prime, so it never decodes to a
	// public key.
	hello := make([]byte, helloLength)
	for i := 0; i < peerid.IDLength; i++ {
		hello[i] = 0xff
	}
	_, err := connB.Write(hello)
	if err != nil {
		t.Fatalf("writing hello failed: %+v", err)
	}

	resultA := <-resultChanA
	if !errors.Is(resultA.err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed on a malformed key, got: %+v", resultA.err)
	}
}

func TestPerformDeadline(t *testing.T) {
	connA, _ := tcpPair(t)
	keyPairA := testKeyPair(t)

	// The remote side stays silent, so the exchange must fail once the
	// deadline passes rather than hang.
	startTime := time.Now()
	_, err := Perform(connA, keyPairA, startTime.Add(200*time.Millisecond))
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed on deadline, got: %+v", err)
	}
	if elapsed := time.Since(startTime); elapsed > 5*time.Second {
		t.Fatalf("handshake took %s to give up on a silent peer", elapsed)
	}
}
