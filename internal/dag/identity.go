package dag

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// DefaultIdentityPath is relative to the user's home directory.
const DefaultIdentityPath = ".config/memex/identity.json"

// base58btc alphabet (Bitcoin)
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const didKeyPrefix = "did:key:z"

// ed25519Multicodec is the multicodec prefix for Ed25519 public keys (0xED01).
var ed25519Multicodec = []byte{0xed, 0x01}

// Identity holds an Ed25519 keypair and the derived DID. The DID is what
// commits record as their creator and what perspectives record as owner.
type Identity struct {
	DID        string `json:"did"`
	PublicKey  string `json:"public_key"`  // base64-encoded 32 bytes
	PrivateKey string `json:"private_key"` // base64-encoded 32-byte seed
}

// ResolveIdentityPath expands an empty or home-relative path.
func ResolveIdentityPath(path string) string {
	if path != "" && filepath.IsAbs(path) {
		return path
	}
	if path == "" {
		path = DefaultIdentityPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// LoadIdentity reads the identity file at path, or generates a new one if missing.
func LoadIdentity(path string) (*Identity, error) {
	path = ResolveIdentityPath(path)
	if path == "" {
		return nil, fmt.Errorf("cannot determine home directory")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("parse identity: %w", err)
		}
		if _, err := DecodeDIDKey(id.DID); err != nil {
			return nil, fmt.Errorf("identity %s: %w", path, err)
		}
		return &id, nil
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	return generateIdentity(path)
}

// generateIdentity creates a new Ed25519 keypair and writes it to disk.
func generateIdentity(path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	// ed25519.PrivateKey is 64 bytes (seed+public), we store just the 32-byte seed
	seed := priv.Seed()

	did := encodeDIDKey([]byte(pub))

	id := &Identity{
		DID:        did,
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(seed),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal identity: %w", err)
	}

	if err := SafeWrite(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write identity: %w", err)
	}

	glog.Infof("mxvc: generated new identity %s (stored at %s)", did, path)
	return id, nil
}

// encodeDIDKey encodes a raw Ed25519 public key as did:key:z... using
// multicodec 0xED01 prefix and base58btc encoding.
func encodeDIDKey(publicKey []byte) string {
	prefixed := append(append([]byte{}, ed25519Multicodec...), publicKey...)

	num := new(big.Int).SetBytes(prefixed)
	zero := big.NewInt(0)
	base := big.NewInt(58)
	mod := new(big.Int)

	var encoded []byte
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		encoded = append([]byte{base58Alphabet[mod.Int64()]}, encoded...)
	}

	// Handle leading zero bytes
	for _, b := range prefixed {
		if b == 0 {
			encoded = append([]byte{'1'}, encoded...)
		} else {
			break
		}
	}

	return didKeyPrefix + string(encoded)
}

// DecodeDIDKey returns the raw Ed25519 public key carried by a did:key DID.
func DecodeDIDKey(did string) ([]byte, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, fmt.Errorf("not a did:key: %q", did)
	}
	payload := did[len(didKeyPrefix):]
	if payload == "" {
		return nil, fmt.Errorf("empty did:key payload")
	}

	num := new(big.Int)
	base := big.NewInt(58)
	for _, r := range payload {
		idx := strings.IndexRune(base58Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", r)
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}
	decoded := num.Bytes()
	for _, r := range payload {
		if r != '1' {
			break
		}
		decoded = append([]byte{0}, decoded...)
	}

	if !bytes.HasPrefix(decoded, ed25519Multicodec) {
		return nil, fmt.Errorf("did:key is not an ed25519 key")
	}
	pub := decoded[len(ed25519Multicodec):]
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("did:key public key length %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	return pub, nil
}
