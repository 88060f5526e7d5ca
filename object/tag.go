package object

import (
	"bytes"

	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/readutil"
)

// ErrTagInvalid is returned when an annotated tag's payload is missing a
// required header line or can't otherwise be parsed.
var ErrTagInvalid = xerrors.New("invalid tag")

// Tag is an annotated tag object: a pointer to another object (usually a
// commit), a name, a tagger signature, and a message. A lightweight tag
// (a bare ref pointing straight at a commit) never produces one of these.
type Tag struct {
	rawObject *Object

	targetID   githash.Oid
	targetType Type
	name       string
	tagger     Signature
	message    string
}

// NewTag builds a Tag from its parts.
func NewTag(targetID githash.Oid, targetType Type, name string, tagger Signature, message string) *Tag {
	t := &Tag{
		targetID:   targetID,
		targetType: targetType,
		name:       name,
		tagger:     tagger,
		message:    message,
	}
	t.rawObject = t.toObject()
	return t
}

// ParseTag decodes a tag object's canonical payload: "object", "type",
// "tag", and "tagger" header lines, a blank line, then the message.
func ParseTag(o *Object) (*Tag, error) {
	if o.Type() != TypeTag {
		return nil, xerrors.Errorf("type %s is not a tag: %w", o.Type(), ErrInvalidObject)
	}
	t := &Tag{rawObject: o}
	data := o.Bytes()
	offset := 0
	for {
		line := readutil.ReadTo(data[offset:], '\n')
		if line == nil {
			return nil, xerrors.Errorf("unterminated header: %w", ErrTagInvalid)
		}
		offset += len(line) + 1

		if len(line) == 0 {
			msg := data[offset:]
			msg = bytes.TrimSuffix(msg, []byte{'\n'})
			t.message = string(msg)
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		if len(kv) != 2 {
			return nil, xerrors.Errorf("malformed header line %q: %w", line, ErrTagInvalid)
		}
		var err error
		switch string(kv[0]) {
		case "object":
			t.targetID, err = githash.NewFromChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("invalid object id %q: %w", kv[1], ErrTagInvalid)
			}
		case "type":
			t.targetType, err = NewTypeFromString(string(kv[1]))
			if err != nil {
				return nil, xerrors.Errorf("invalid target type %q: %w", kv[1], ErrTagInvalid)
			}
		case "tag":
			t.name = string(kv[1])
		case "tagger":
			t.tagger, err = ParseSignature(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("invalid tagger: %w", err)
			}
		}
	}

	if t.targetID.IsZero() {
		return nil, xerrors.Errorf("missing object: %w", ErrTagInvalid)
	}
	if !t.targetType.IsValid() {
		return nil, xerrors.Errorf("missing type: %w", ErrTagInvalid)
	}
	if t.name == "" {
		return nil, xerrors.Errorf("missing tag name: %w", ErrTagInvalid)
	}

	return t, nil
}

// ID returns the tag object's identity.
func (t *Tag) ID() githash.Oid { return t.rawObject.ID() }

// TargetID returns the Oid of the object this tag points at.
func (t *Tag) TargetID() githash.Oid { return t.targetID }

// TargetType returns the kind of object this tag points at.
func (t *Tag) TargetType() Type { return t.targetType }

// Name returns the tag's own name (not the ref name, which carries a
// "refs/tags/" prefix this field doesn't include).
func (t *Tag) Name() string { return t.name }

// Tagger returns the signature of whoever created the tag.
func (t *Tag) Tagger() Signature { return t.tagger }

// Message returns the tag's annotation message.
func (t *Tag) Message() string { return t.message }

// ToObject returns the underlying Object.
func (t *Tag) ToObject() *Object { return t.rawObject }

func (t *Tag) toObject() *Object {
	buf := new(bytes.Buffer)
	buf.WriteString("object ")
	buf.WriteString(t.targetID.String())
	buf.WriteByte('\n')
	buf.WriteString("type ")
	buf.WriteString(t.targetType.String())
	buf.WriteByte('\n')
	buf.WriteString("tag ")
	buf.WriteString(t.name)
	buf.WriteByte('\n')
	buf.WriteString("tagger ")
	buf.WriteString(t.tagger.String())
	buf.WriteByte('\n')
	buf.WriteByte('\n')
	buf.WriteString(t.message)
	buf.WriteByte('\n')
	return New(TypeTag, buf.Bytes())
}
