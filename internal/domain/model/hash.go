// Package model contains the sensemaking domain models passed between layers:
// content hashes, ranges, dimensions, methods and assessments.
package model

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// HashSize is the byte length of every hash in the model.
const HashSize = 32

// hashPrefix marks the multibase base64url form used for hash strings.
const hashPrefix = "u"

// Hash is a content-addressed identifier.
type Hash [HashSize]byte

// EntryHash addresses an entry (dimension, resource, method, ...).
type EntryHash = Hash

// ActionHash addresses the write action that created a record.
type ActionHash = Hash

// AgentPubKey identifies an agent. Keys derived from a seed are hashes too.
type AgentPubKey = Hash

// encMode is CBOR Core Deterministic Encoding: the same value always hashes
// to the same bytes regardless of map iteration order.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("model: CBOR encoder initialization failed: " + err.Error())
	}
}

// HashEntry returns the content hash of v under the entry type name kind.
// The kind is part of the hashed payload so two entry types with identical
// fields never collide.
func HashEntry(kind string, v any) (EntryHash, error) {
	payload, err := encMode.Marshal(struct {
		Kind  string `cbor:"k"`
		Entry any    `cbor:"e"`
	}{Kind: kind, Entry: v})
	if err != nil {
		return EntryHash{}, fmt.Errorf("%w: %s: %w", ErrEncode, kind, err)
	}
	return blake3.Sum256(payload), nil
}

// MustHashEntry is HashEntry for values known to encode, such as fixtures.
func MustHashEntry(kind string, v any) EntryHash {
	h, err := HashEntry(kind, v)
	if err != nil {
		panic(err)
	}
	return h
}

// AgentKeyFromSeed derives a stable agent key from a seed string.
func AgentKeyFromSeed(seed string) AgentPubKey {
	return blake3.Sum256([]byte("agent:" + seed))
}

// NewActionHash returns a fresh action hash bound to entry.
func NewActionHash(entry EntryHash) ActionHash {
	nonce := uuid.New()
	buf := make([]byte, 0, HashSize+len(nonce))
	buf = append(buf, entry[:]...)
	buf = append(buf, nonce[:]...)
	return blake3.Sum256(buf)
}

// String returns the base64url form prefixed with "u".
func (h Hash) String() string {
	return hashPrefix + base64.RawURLEncoding.EncodeToString(h[:])
}

// Short returns a truncated form for logs and terminal output.
func (h Hash) Short() string {
	s := h.String()
	if len(s) > 9 {
		return s[:9]
	}
	return s
}

// IsZero reports whether h is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses the String form of a hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, hashPrefix) {
		return h, fmt.Errorf("%w: missing %q prefix in %q", ErrInvalidHash, hashPrefix, s)
	}
	raw, err := base64.RawURLEncoding.DecodeString(s[len(hashPrefix):])
	if err != nil {
		return h, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidHash, HashSize, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
