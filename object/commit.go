package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/readutil"
)

// ErrCommitInvalid is returned when a commit's payload is missing a
// required header line or can't otherwise be parsed.
var ErrCommitInvalid = xerrors.New("invalid commit")

// ErrSignatureInvalid is returned when an author/committer/tagger line
// doesn't match "Name <email> seconds +zzzz".
var ErrSignatureInvalid = xerrors.New("invalid signature")

// Signature is the author/committer (or tagger) line of a commit or tag:
// a display name, an email, and a timestamp with its original offset.
type Signature struct {
	Name  string
	Email string
	Time  time.Time
}

// IsZero reports whether the signature holds no data.
func (s Signature) IsZero() bool {
	return s.Name == "" && s.Email == "" && s.Time.IsZero()
}

// String renders the signature the way it's stored on disk:
// "Name <email> seconds +zzzz".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.Time.Unix(), s.Time.Format("-0700"))
}

// NewSignature builds a signature for name/email stamped with the given
// time, preserving whatever zone offset t carries.
func NewSignature(name, email string, t time.Time) Signature {
	return Signature{Name: name, Email: email, Time: t}
}

// ParseSignature parses a "Name <email> seconds +zzzz" line.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature

	nameBytes := readutil.ReadTo(b, '<')
	if nameBytes == nil {
		return sig, xerrors.Errorf("missing email: %w", ErrSignatureInvalid)
	}
	sig.Name = strings.TrimSpace(string(nameBytes))
	offset := len(nameBytes) + 1
	if offset >= len(b) {
		return sig, xerrors.Errorf("truncated after name: %w", ErrSignatureInvalid)
	}

	emailBytes := readutil.ReadTo(b[offset:], '>')
	if emailBytes == nil {
		return sig, xerrors.Errorf("missing closing '>': %w", ErrSignatureInvalid)
	}
	sig.Email = string(emailBytes)
	offset += len(emailBytes) + 2 // "> "
	if offset >= len(b) {
		return sig, xerrors.Errorf("truncated after email: %w", ErrSignatureInvalid)
	}

	secondsBytes := readutil.ReadTo(b[offset:], ' ')
	if secondsBytes == nil {
		return sig, xerrors.Errorf("missing timestamp: %w", ErrSignatureInvalid)
	}
	offset += len(secondsBytes) + 1
	if offset > len(b) {
		return sig, xerrors.Errorf("truncated after timestamp: %w", ErrSignatureInvalid)
	}
	seconds, err := strconv.ParseInt(string(secondsBytes), 10, 64)
	if err != nil {
		return sig, xerrors.Errorf("invalid timestamp %q: %w", secondsBytes, ErrSignatureInvalid)
	}

	zone := string(b[offset:])
	parsedZone, err := time.Parse("-0700", zone)
	if err != nil {
		return sig, xerrors.Errorf("invalid timezone %q: %w", zone, ErrSignatureInvalid)
	}
	sig.Time = time.Unix(seconds, 0).In(parsedZone.Location())
	return sig, nil
}

// Commit is a (tree, parents, author, committer, message) tuple.
type Commit struct {
	rawObject *Object

	treeID    githash.Oid
	parentIDs []githash.Oid
	author    Signature
	committer Signature
	message   string
}

// NewCommit builds a Commit from its parts. Parent order is preserved.
func NewCommit(treeID githash.Oid, parentIDs []githash.Oid, author, committer Signature, message string) *Commit {
	c := &Commit{
		treeID:    treeID,
		parentIDs: parentIDs,
		author:    author,
		committer: committer,
		message:   message,
	}
	c.rawObject = c.toObject()
	return c
}

// ParseCommit decodes a commit object's canonical payload: a "tree" line,
// zero or more "parent" lines, an "author" line, a "committer" line, a
// blank line, then the message.
func ParseCommit(o *Object) (*Commit, error) {
	if o.Type() != TypeCommit {
		return nil, xerrors.Errorf("type %s is not a commit: %w", o.Type(), ErrInvalidObject)
	}
	c := &Commit{rawObject: o}
	data := o.Bytes()
	offset := 0
	for {
		line := readutil.ReadTo(data[offset:], '\n')
		if line == nil {
			return nil, xerrors.Errorf("unterminated header: %w", ErrCommitInvalid)
		}
		offset += len(line) + 1

		if len(line) == 0 {
			msg := data[offset:]
			msg = bytes.TrimSuffix(msg, []byte{'\n'})
			c.message = string(msg)
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		if len(kv) != 2 {
			return nil, xerrors.Errorf("malformed header line %q: %w", line, ErrCommitInvalid)
		}
		var err error
		switch string(kv[0]) {
		case "tree":
			c.treeID, err = githash.NewFromChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("invalid tree id %q: %w", kv[1], ErrCommitInvalid)
			}
		case "parent":
			var pid githash.Oid
			pid, err = githash.NewFromChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("invalid parent id %q: %w", kv[1], ErrCommitInvalid)
			}
			c.parentIDs = append(c.parentIDs, pid)
		case "author":
			c.author, err = ParseSignature(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("invalid author: %w", err)
			}
		case "committer":
			c.committer, err = ParseSignature(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("invalid committer: %w", err)
			}
		}
	}

	if c.treeID.IsZero() {
		return nil, xerrors.Errorf("missing tree: %w", ErrCommitInvalid)
	}
	if c.author.IsZero() {
		return nil, xerrors.Errorf("missing author: %w", ErrCommitInvalid)
	}
	if c.committer.IsZero() {
		return nil, xerrors.Errorf("missing committer: %w", ErrCommitInvalid)
	}

	return c, nil
}

// ID returns the commit's identity.
func (c *Commit) ID() githash.Oid { return c.rawObject.ID() }

// TreeID returns the Oid of the commit's root tree.
func (c *Commit) TreeID() githash.Oid { return c.treeID }

// ParentIDs returns the commit's parents, in order. Empty for a root
// commit, length 2+ for a merge.
func (c *Commit) ParentIDs() []githash.Oid {
	out := make([]githash.Oid, len(c.parentIDs))
	copy(out, c.parentIDs)
	return out
}

// Author returns the commit's author signature.
func (c *Commit) Author() Signature { return c.author }

// Committer returns the commit's committer signature.
func (c *Commit) Committer() Signature { return c.committer }

// Message returns the commit message.
func (c *Commit) Message() string { return c.message }

// ToObject returns the underlying Object.
func (c *Commit) ToObject() *Object { return c.rawObject }

func (c *Commit) toObject() *Object {
	buf := new(bytes.Buffer)
	buf.WriteString("tree ")
	buf.WriteString(c.treeID.String())
	buf.WriteByte('\n')
	for _, p := range c.parentIDs {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}
	buf.WriteString("author ")
	buf.WriteString(c.author.String())
	buf.WriteByte('\n')
	buf.WriteString("committer ")
	buf.WriteString(c.committer.String())
	buf.WriteByte('\n')
	buf.WriteByte('\n')
	buf.WriteString(c.message)
	buf.WriteByte('\n')
	return New(TypeCommit, buf.Bytes())
}
