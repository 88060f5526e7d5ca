package object

import "github.com/mwillock/gogit/githash"

// Blob is an opaque byte sequence with no internal structure.
type Blob struct {
	rawObject *Object
}

// NewBlob wraps content as a blob Object.
func NewBlob(content []byte) *Blob {
	return &Blob{rawObject: New(TypeBlob, content)}
}

// ID returns the blob's identity.
func (b *Blob) ID() githash.Oid {
	return b.rawObject.ID()
}

// Bytes returns the blob's raw content.
func (b *Blob) Bytes() []byte {
	return b.rawObject.Bytes()
}

// ToObject returns the underlying Object.
func (b *Blob) ToObject() *Object {
	return b.rawObject
}
