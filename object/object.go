// Package object represents the four git object kinds and their
// canonical byte encoding.
package object

import (
	"bytes"
	"strconv"
	"sync"

	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/readutil"
)

// ErrInvalidObject is returned when an object's canonical bytes don't
// match the structure the header promises: bad header, unknown kind,
// length mismatch, or a truncated payload.
var ErrInvalidObject = xerrors.New("invalid object")

// Type is the kind of a git object, using the numeric values git assigns
// them inside a packfile (reused here, rather than invented fresh, so
// package pack can share the same enum for loose and packed objects).
type Type int8

// The four object kinds, plus the two pack-only delta kinds.
const (
	TypeCommit Type = 1
	TypeTree   Type = 2
	TypeBlob   Type = 3
	TypeTag    Type = 4
	// TypeOfsDelta and TypeRefDelta never appear on a resolved Object;
	// they're here so package pack can reuse this Type for raw records.
	TypeOfsDelta Type = 6
	TypeRefDelta Type = 7
)

// String returns the lowercase tag used in an object's canonical header.
func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case TypeOfsDelta:
		return "ofs-delta"
	case TypeRefDelta:
		return "ref-delta"
	default:
		return "unknown"
	}
}

// IsValid reports whether t is one of the known object kinds.
func (t Type) IsValid() bool {
	switch t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag, TypeOfsDelta, TypeRefDelta:
		return true
	default:
		return false
	}
}

// NewTypeFromString parses the header tag of a loose object
// ("blob", "tree", "commit", "tag").
func NewTypeFromString(s string) (Type, error) {
	switch s {
	case "commit":
		return TypeCommit, nil
	case "tree":
		return TypeTree, nil
	case "blob":
		return TypeBlob, nil
	case "tag":
		return TypeTag, nil
	default:
		return 0, xerrors.Errorf("unknown object type %q: %w", s, ErrInvalidObject)
	}
}

// Object is a git object: a type tag plus its payload bytes. Its Oid is
// the SHA1 digest of its canonical byte form (header + payload),
// computed lazily and cached.
type Object struct {
	typ     Type
	content []byte

	idOnce sync.Once
	id     githash.Oid
}

// New builds an Object of the given type around content. content is not
// copied; the caller must not mutate it afterwards.
func New(typ Type, content []byte) *Object {
	return &Object{typ: typ, content: content}
}

// NewWithID builds an Object whose Oid is already known (e.g. it was just
// read from the store at that Oid), skipping the ID recomputation on the
// fast path. The id is not verified; callers that need I1's guarantee
// (recomputed id matches requested id) must check separately.
func NewWithID(id githash.Oid, typ Type, content []byte) *Object {
	o := &Object{typ: typ, content: content}
	o.idOnce.Do(func() {})
	o.id = id
	return o
}

// Type returns the object's kind.
func (o *Object) Type() Type { return o.typ }

// Size returns the length of the object's payload (not counting the
// canonical header).
func (o *Object) Size() int { return len(o.content) }

// Bytes returns the object's payload.
func (o *Object) Bytes() []byte { return o.content }

// ID returns the object's identity: the SHA1 digest of CanonicalBytes().
func (o *Object) ID() githash.Oid {
	o.idOnce.Do(func() {
		o.id = githash.Sum(o.CanonicalBytes())
	})
	return o.id
}

// CanonicalBytes returns the full on-disk encoding of the object:
// "<type> <size>\0<payload>". This exact sequence, header included, is
// what gets hashed to produce the object's identity and what gets zlib
// compressed when the object is persisted.
func (o *Object) CanonicalBytes() []byte {
	w := new(bytes.Buffer)
	w.WriteString(o.typ.String())
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(o.Size()))
	w.WriteByte(0)
	w.Write(o.content)
	return w.Bytes()
}

// ParseCanonical parses the canonical encoding of an object (as produced
// by CanonicalBytes, i.e. after zlib decompression of a loose object, or
// the reassembled bytes of a resolved pack record) back into an Object.
func ParseCanonical(data []byte) (*Object, error) {
	typeBytes := readutil.ReadTo(data, ' ')
	if typeBytes == nil {
		return nil, xerrors.Errorf("missing type in header: %w", ErrInvalidObject)
	}
	typ, err := NewTypeFromString(string(typeBytes))
	if err != nil {
		return nil, err
	}
	offset := len(typeBytes) + 1

	sizeBytes := readutil.ReadTo(data[offset:], 0)
	if sizeBytes == nil {
		return nil, xerrors.Errorf("missing size in header: %w", ErrInvalidObject)
	}
	size, err := strconv.Atoi(string(sizeBytes))
	if err != nil || size < 0 {
		return nil, xerrors.Errorf("invalid size %q: %w", sizeBytes, ErrInvalidObject)
	}
	offset += len(sizeBytes) + 1

	payload := data[offset:]
	if len(payload) != size {
		return nil, xerrors.Errorf("header declares %d bytes, got %d: %w", size, len(payload), ErrInvalidObject)
	}

	return New(typ, payload), nil
}
