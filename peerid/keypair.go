package peerid

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
)

// KeyPair is the local peer's identity keypair. It can sign identity-proof
// challenges and exposes the PeerID other peers know this node by.
type KeyPair struct {
	keyPair *secp256k1.SchnorrKeyPair
	id      *PeerID
}

// GenerateKeyPair generates a fresh identity keypair.
func GenerateKeyPair() (*KeyPair, error) {
	keyPair, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "generating keypair")
	}
	return newKeyPair(keyPair)
}

// DeserializeKeyPair reconstructs an identity keypair from a serialized
// private key, so an embedding application can keep a stable identity
// across restarts.
func DeserializeKeyPair(serializedPrivateKey []byte) (*KeyPair, error) {
	keyPair, err := secp256k1.DeserializeSchnorrPrivateKeyFromSlice(serializedPrivateKey)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "deserializing private key: %s", err)
	}
	return newKeyPair(keyPair)
}

func newKeyPair(keyPair *secp256k1.SchnorrKeyPair) (*KeyPair, error) {
	publicKey, err := keyPair.SchnorrPublicKey()
	if err != nil {
		return nil, errors.Wrap(err, "deriving public key")
	}
	serialized, err := publicKey.Serialize()
	if err != nil {
		return nil, errors.Wrap(err, "serializing public key")
	}
	id, err := FromPublicKey(serialized[:])
	if err != nil {
		return nil, err
	}
	return &KeyPair{keyPair: keyPair, id: id}, nil
}

// PeerID returns the identity derived from this keypair's public key.
func (kp *KeyPair) PeerID() *PeerID {
	return kp.id
}

// Sign signs message with the private key, returning a serialized
// signature that the matching PeerID verifies.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	hash := messageHash(message)
	signature, err := kp.keyPair.SchnorrSign(&hash)
	if err != nil {
		return nil, errors.Wrap(err, "signing message")
	}
	serialized := signature.Serialize()
	return serialized[:], nil
}
