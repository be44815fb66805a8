package sshclient

import "testing"

func TestGenerateKeyPairRoundTripsThroughValidate(t *testing.T) {
	for _, kt := range []KeyType{KeyRsa, KeyEcdsa, KeyEd25519} {
		kt := kt
		t.Run(kt.String(), func(t *testing.T) {
			pemKey, err := GenerateKeyPair(kt)
			if err != nil {
				t.Fatalf("GenerateKeyPair: %v", err)
			}
			if pemKey == "" {
				t.Fatal("expected a non-empty PEM-encoded key")
			}
			if _, err := ValidatePrivateKey(pemKey); err != nil {
				t.Fatalf("ValidatePrivateKey rejected a freshly generated key: %v", err)
			}
		})
	}
}

func TestGenerateKeyPairRejectsEd448(t *testing.T) {
	_, err := GenerateKeyPair(KeyEd448)
	if err == nil {
		t.Fatal("expected Ed448 generation to fail")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrUnsupportedKeyType {
		t.Fatalf("expected ErrUnsupportedKeyType, got %v", err)
	}
}

func TestValidatePrivateKeyRejectsGarbage(t *testing.T) {
	_, err := ValidatePrivateKey("not a key")
	if err == nil {
		t.Fatal("expected an error for malformed PEM input")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrKeyParse {
		t.Fatalf("expected ErrKeyParse, got %v", err)
	}
}
