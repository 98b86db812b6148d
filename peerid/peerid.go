// Package peerid defines the identity of a network peer, derived from a
// Schnorr public key, and the keypair capability used to prove ownership of
// an identity during connection establishment.
package peerid

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
)

// IDLength is the length in bytes of a serialized peer ID.
const IDLength = secp256k1.SerializedSchnorrPublicKeySize

// SignatureLength is the length in bytes of an identity-proof signature.
const SignatureLength = secp256k1.SerializedSchnorrSignatureSize

// ErrInvalidKey is returned when a peer ID cannot be derived from the given
// public key bytes.
var ErrInvalidKey = errors.New("invalid public key")

// PeerID identifies a network peer. It is the serialized form of the peer's
// public key and is immutable once constructed. PeerIDs compare by their
// raw bytes, which makes them usable as map keys and gives both ends of a
// duplicate connection the same ordering without coordination.
type PeerID struct {
	serialized [IDLength]byte
	publicKey  *secp256k1.SchnorrPublicKey
}

// FromPublicKey derives a PeerID from a serialized public key. Any
// well-formed public key yields an identity; malformed input fails with
// ErrInvalidKey.
func FromPublicKey(serialized []byte) (*PeerID, error) {
	if len(serialized) != IDLength {
		return nil, errors.Wrapf(ErrInvalidKey, "expected %d key bytes, got %d",
			IDLength, len(serialized))
	}
	publicKey, err := secp256k1.DeserializeSchnorrPubKey(serialized)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "deserializing public key: %s", err)
	}
	id := &PeerID{publicKey: publicKey}
	copy(id.serialized[:], serialized)
	return id, nil
}

// Bytes returns a copy of the serialized peer ID.
func (id *PeerID) Bytes() []byte {
	serialized := make([]byte, IDLength)
	copy(serialized, id.serialized[:])
	return serialized
}

func (id *PeerID) String() string {
	return hex.EncodeToString(id.serialized[:])
}

// Equal reports whether both IDs hold the same key bytes.
func (id *PeerID) Equal(other *PeerID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.serialized == other.serialized
}

// Less reports whether id orders before other, comparing raw key bytes
// lexicographically.
func (id *PeerID) Less(other *PeerID) bool {
	return bytes.Compare(id.serialized[:], other.serialized[:]) < 0
}

// Verify checks that signature is a valid signature by this peer over
// message. A failed verification returns an error, so callers can wrap it
// with context.
func (id *PeerID) Verify(message []byte, signature []byte) error {
	sig, err := secp256k1.DeserializeSchnorrSignatureFromSlice(signature)
	if err != nil {
		return errors.Wrapf(err, "deserializing signature from %s", id)
	}
	hash := messageHash(message)
	if !id.publicKey.SchnorrVerify(&hash, sig) {
		return errors.Errorf("signature verification failed for %s", id)
	}
	return nil
}

func messageHash(message []byte) secp256k1.Hash {
	return secp256k1.Hash(sha256.Sum256(message))
}
