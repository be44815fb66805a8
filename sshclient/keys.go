package sshclient

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"

	"golang.org/x/crypto/ssh"
)

// rsaKeyBits is the modulus size GenerateKeyPair uses for KeyRsa.
const rsaKeyBits = 3072

// GenerateKeyPair creates a fresh private key of the requested type
// and returns it OpenSSH-PEM-encoded. KeyEd448 always fails: the Go
// standard library has no Ed448 implementation.
func GenerateKeyPair(keyType KeyType) (string, error) {
	switch keyType {
	case KeyRsa:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return "", newError(ErrKeyParse, "generate rsa key", err)
		}
		return marshalOpenSSH(key)

	case KeyEcdsa:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return "", newError(ErrKeyParse, "generate ecdsa key", err)
		}
		return marshalOpenSSH(key)

	case KeyEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", newError(ErrKeyParse, "generate ed25519 key", err)
		}
		return marshalOpenSSH(priv)

	case KeyEd448:
		return "", newError(ErrUnsupportedKeyType, "ed448", nil)

	default:
		return "", newError(ErrUnsupportedKeyType, "unknown key type", nil)
	}
}

// ValidatePrivateKey parses an OpenSSH-PEM-encoded private key and
// returns it re-serialized in canonical form, confirming it both
// parses and carries a usable signing key.
func ValidatePrivateKey(opensshPEM string) (string, error) {
	raw, err := ssh.ParseRawPrivateKey([]byte(opensshPEM))
	if err != nil {
		return "", newError(ErrKeyParse, "parse private key", err)
	}
	signer, ok := raw.(crypto.Signer)
	if !ok {
		return "", newError(ErrKeyParse, "key type does not support signing", nil)
	}
	return marshalOpenSSH(signer)
}

func marshalOpenSSH(key crypto.Signer) (string, error) {
	block, err := ssh.MarshalPrivateKey(key, "")
	if err != nil {
		return "", newError(ErrKeyParse, "marshal openssh private key", err)
	}
	return string(pem.EncodeToMemory(block)), nil
}
