// Package handshake implements the identity exchange performed on a raw
// socket before a connection is considered usable.
//
// Both sides send their public key together with a random challenge, then
// prove possession of the matching private key by signing the challenge
// they received. The signed message binds the signer's own public key so a
// signature cannot be replayed by a third party relaying both challenges.
// The whole exchange is bounded by a deadline; there is no retry.
package handshake

import (
	"crypto/rand"
	"io"
	"net"
	"time"

	"github.com/peerwire/peerwire/peerid"
	"github.com/pkg/errors"
)

const challengeLength = 32

// helloLength is the first frame each side sends: its serialized public
// key followed by a random challenge.
const helloLength = peerid.IDLength + challengeLength

// ErrHandshakeFailed is returned when the identity exchange cannot be
// completed or the peer's proof doesn't verify. It is always recoverable:
// the caller closes the socket and aborts the reservation, nothing else.
var ErrHandshakeFailed = errors.New("handshake failed")

// Perform runs the identity exchange on conn as the local peer identified
// by keyPair and returns the verified identity of the remote peer. All
// reads and writes are bounded by deadline. The socket is left open on
// success and untouched on failure; closing it is the caller's job either
// way.
func Perform(conn net.Conn, keyPair *peerid.KeyPair, deadline time.Time) (*peerid.PeerID, error) {
	err := conn.SetDeadline(deadline)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "setting deadline: %s", err)
	}
	defer func() {
		// Clear the handshake deadline so it doesn't fire under the
		// application's own traffic later.
		_ = conn.SetDeadline(time.Time{})
	}()

	localID := keyPair.PeerID()

	ownChallenge := make([]byte, challengeLength)
	_, err = rand.Read(ownChallenge)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "generating challenge: %s", err)
	}

	// Both sides write their hello before reading the peer's. The frame is
	// small enough to never block on a healthy socket.
	hello := make([]byte, 0, helloLength)
	hello = append(hello, localID.Bytes()...)
	hello = append(hello, ownChallenge...)
	_, err = conn.Write(hello)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "sending hello: %s", err)
	}

	remoteHello := make([]byte, helloLength)
	_, err = io.ReadFull(conn, remoteHello)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "reading hello: %s", err)
	}
	remotePublicKey := remoteHello[:peerid.IDLength]
	remoteChallenge := remoteHello[peerid.IDLength:]

	remoteID, err := peerid.FromPublicKey(remotePublicKey)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "deriving peer identity: %s", err)
	}
	if remoteID.Equal(localID) {
		return nil, errors.Wrap(ErrHandshakeFailed, "connected to ourselves")
	}

	proof, err := keyPair.Sign(signedMessage(remoteChallenge, localID))
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "signing challenge: %s", err)
	}
	_, err = conn.Write(proof)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "sending proof: %s", err)
	}

	remoteProof := make([]byte, peerid.SignatureLength)
	_, err = io.ReadFull(conn, remoteProof)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "reading proof: %s", err)
	}
	err = remoteID.Verify(signedMessage(ownChallenge, remoteID), remoteProof)
	if err != nil {
		return nil, errors.Wrapf(ErrHandshakeFailed, "verifying proof: %s", err)
	}

	log.Debugf("Handshake with %s completed on %s", remoteID, conn.RemoteAddr())
	return remoteID, nil
}

// signedMessage is the byte string each side signs: the challenge it
// received concatenated with its own serialized public key.
func signedMessage(challenge []byte, signer *peerid.PeerID) []byte {
	message := make([]byte, 0, challengeLength+peerid.IDLength)
	message = append(message, challenge...)
	message = append(message, signer.Bytes()...)
	return message
}
