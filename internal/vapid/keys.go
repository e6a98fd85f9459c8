package vapid

import (
	"errors"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
)

// uncompressedPointLen is the size of an uncompressed P-256 public key.
const uncompressedPointLen = 65

var (
	ErrEmptyKey         = errors.New("vapid: key is empty")
	ErrInvalidPublicKey = errors.New("vapid: public key is not an uncompressed P-256 point")
)

// KeyPair is the server's signing identity.
type KeyPair struct {
	PublicKey  string `yaml:"vapid_public_key" json:"publicKey"`
	PrivateKey string `yaml:"vapid_private_key" json:"privateKey"`
}

// ValidatePublicKey checks that key decodes to a 65 byte point starting
// with the 0x04 uncompressed marker.
func ValidatePublicKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := DecodeKey(key)
	if err != nil {
		return err
	}
	if len(raw) != uncompressedPointLen || raw[0] != 0x04 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(raw))
	}
	return nil
}

// ValidatePrivateKey checks that key is non-empty URL-safe base64.
func ValidatePrivateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := DecodeKey(key)
	return err
}

// GenerateKeyPair creates a new VAPID key pair.
func GenerateKeyPair() (KeyPair, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate vapid keys: %w", err)
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}
