package dag

import (
	"crypto/ed25519"
	"encoding/base64"
	"path/filepath"
	"testing"
)

// Test vectors generated with the deterministic seed bytes(range(32)).
const (
	testPubkeyB64 = "A6EHv/POEL4dcN0Y50vAmWfk1jCbpQ1fHdyGZBJVMbg="
	testDID       = "did:key:z6MkehRgf7yJbgaGfYsdoAsKdBPE3dj2CYhowQdcjqSJgvVd"
)

func TestEncodeDIDKey_KnownVector(t *testing.T) {
	pub, err := base64.StdEncoding.DecodeString(testPubkeyB64)
	if err != nil {
		t.Fatal(err)
	}
	got := encodeDIDKey(pub)
	if got != testDID {
		t.Errorf("encodeDIDKey mismatch\n  got:  %s\n  want: %s", got, testDID)
	}
}

func TestDecodeDIDKey_KnownVector(t *testing.T) {
	pub, err := DecodeDIDKey(testDID)
	if err != nil {
		t.Fatalf("DecodeDIDKey: %v", err)
	}
	want, _ := base64.StdEncoding.DecodeString(testPubkeyB64)
	if string(pub) != string(want) {
		t.Fatalf("pubkey = %x, want %x", pub, want)
	}
}

func TestDID_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	did := encodeDIDKey([]byte(pub))
	decoded, err := DecodeDIDKey(did)
	if err != nil {
		t.Fatalf("DecodeDIDKey round-trip: %v", err)
	}
	if string(decoded) != string(pub) {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, pub)
	}
}

func TestDecodeDIDKey_Invalid(t *testing.T) {
	for _, did := range []string{"bad:key:z123", "did:key:z", "did:key:z0OIl"} {
		if _, err := DecodeDIDKey(did); err == nil {
			t.Errorf("DecodeDIDKey(%q): expected error", did)
		}
	}
}

func TestLoadIdentity_GeneratesThenReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memex", "identity.json")

	first, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity (generate): %v", err)
	}
	if _, err := DecodeDIDKey(first.DID); err != nil {
		t.Fatalf("generated DID invalid: %v", err)
	}

	second, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity (reload): %v", err)
	}
	if second.DID != first.DID {
		t.Errorf("reloaded DID = %s, want %s", second.DID, first.DID)
	}
}
