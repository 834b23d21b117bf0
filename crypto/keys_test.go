package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(GigPrefix)) {
		t.Fatalf("encoded address missing prefix: %s", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != GigPrefix {
		t.Fatalf("prefix: want %s, got %s", GigPrefix, decoded.Prefix())
	}
	if string(decoded.Bytes()) != string(addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestNewAddressRejectsBadLength(t *testing.T) {
	if _, err := NewAddress(GigPrefix, make([]byte, 19)); err == nil {
		t.Fatal("expected error for 19-byte address")
	}
	if _, err := NewAddress(GigPrefix, make([]byte, 21)); err == nil {
		t.Fatal("expected error for 21-byte address")
	}
}

func TestPrivateKeySerialization(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatal("restored key derives a different address")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-a-bech32-address"); err == nil {
		t.Fatal("expected decode error")
	}
}
