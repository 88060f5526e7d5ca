// Package githash contains the object-identity primitives: the 160-bit
// Oid and the digest used to derive it from an object's canonical bytes.
//
// Only SHA1 is supported.
package githash

import (
	"crypto/sha1" //nolint:gosec // git's object identity is SHA1, not a security boundary
	"encoding/hex"
	"errors"
)

// OidSize is the length of an Oid, in bytes.
const OidSize = 20

// NullOid is the zero-value Oid, used as a sentinel where no object is
// referenced.
var NullOid = Oid{}

// ErrInvalidOid is returned when a given value isn't a valid Oid.
var ErrInvalidOid = errors.New("invalid oid")

// Oid is a git object id: the SHA1 digest of an object's canonical bytes.
type Oid [OidSize]byte

// Bytes returns the raw 20 bytes of the Oid.
func (o Oid) Bytes() []byte {
	return o[:]
}

// String returns the 40 lowercase hex character representation of the Oid.
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero returns whether the Oid is the null Oid.
func (o Oid) IsZero() bool {
	return o == NullOid
}

// Sum returns the Oid of the given content, i.e. its SHA1 digest.
func Sum(content []byte) Oid {
	return sha1.Sum(content)
}

// NewFromHex builds an Oid from its 20 raw bytes (as opposed to its hex
// string form).
func NewFromHex(raw []byte) (Oid, error) {
	if len(raw) != OidSize {
		return NullOid, ErrInvalidOid
	}
	var oid Oid
	copy(oid[:], raw)
	return oid, nil
}

// NewFromString builds an Oid from its 40 hex character representation.
func NewFromString(s string) (Oid, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return NullOid, ErrInvalidOid
	}
	return NewFromHex(raw)
}

// NewFromChars is the same as NewFromString but takes a byte slice holding
// the hex characters, sparing the caller a string conversion when the
// bytes come straight out of a parser.
func NewFromChars(s []byte) (Oid, error) {
	return NewFromString(string(s))
}

// Hasher is a streamable SHA1 accumulator, used where the input (e.g. a
// pack stream read incrementally from the network) can't be buffered
// fully before its digest is needed.
type Hasher struct {
	w shaWriter
}

type shaWriter interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// NewHasher returns a new, empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{w: sha1.New()} //nolint:gosec // see package doc
}

// Write feeds more bytes into the running digest.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

// Sum returns the Oid of everything written so far without resetting the
// accumulator.
func (h *Hasher) Sum() Oid {
	var oid Oid
	copy(oid[:], h.w.Sum(nil))
	return oid
}
