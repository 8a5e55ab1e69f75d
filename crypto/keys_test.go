package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}

	addr := MustAddress(raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(EscrowPrefix)) {
		t.Fatalf("encoded address %q lacks prefix %q", encoded, EscrowPrefix)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if decoded.Raw() != raw {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Raw(), raw)
	}
	if decoded.Prefix() != EscrowPrefix {
		t.Fatalf("prefix = %q, want %q", decoded.Prefix(), EscrowPrefix)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-bech32", "esc1qqqq"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("DecodeAddress(%q) must fail", input)
		}
	}
}

func TestGeneratedKeyAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Raw() == ([20]byte{}) {
		t.Fatalf("generated address must be nonzero")
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if !bytes.Equal(restored.Bytes(), key.Bytes()) {
		t.Fatalf("key bytes round trip mismatch")
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatalf("restored key derives a different address")
	}
}
