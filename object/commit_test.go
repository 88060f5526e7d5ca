package object_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/object"
)

func TestParseSignature(t *testing.T) {
	sig, err := object.ParseSignature([]byte("Jane Doe <jane@example.com> 1257894000 -0700"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", sig.Name)
	assert.Equal(t, "jane@example.com", sig.Email)
	assert.Equal(t, int64(1257894000), sig.Time.Unix())
	_, offset := sig.Time.Zone()
	assert.Equal(t, -7*3600, offset)
}

func TestSignature_String_RoundTrip(t *testing.T) {
	loc := time.FixedZone("", -7*3600)
	sig := object.NewSignature("Jane Doe", "jane@example.com", time.Unix(1257894000, 0).In(loc))
	rendered := sig.String()
	assert.Equal(t, "Jane Doe <jane@example.com> 1257894000 -0700", rendered)

	parsed, err := object.ParseSignature([]byte(rendered))
	require.NoError(t, err)
	assert.Equal(t, sig.Name, parsed.Name)
	assert.Equal(t, sig.Email, parsed.Email)
	assert.True(t, sig.Time.Equal(parsed.Time))
}

func TestParseSignature_Malformed(t *testing.T) {
	_, err := object.ParseSignature([]byte("no angle brackets here"))
	assert.ErrorIs(t, err, object.ErrSignatureInvalid)
}

func newTestSignature() object.Signature {
	loc := time.FixedZone("", -7*3600)
	return object.NewSignature("Jane Doe", "jane@example.com", time.Unix(1257894000, 0).In(loc))
}

func TestNewCommit_RootCommit(t *testing.T) {
	treeID := oidFor(t, "a tree")
	sig := newTestSignature()

	c := object.NewCommit(treeID, nil, sig, sig, "initial commit\n")
	assert.Equal(t, treeID, c.TreeID())
	assert.Empty(t, c.ParentIDs())
	assert.Equal(t, "initial commit\n", c.Message())
	assert.Equal(t, object.TypeCommit, c.ToObject().Type())
}

func TestCommit_ParseCommit_RoundTrip(t *testing.T) {
	treeID := oidFor(t, "a tree")
	parentID := oidFor(t, "a parent tree")
	sig := newTestSignature()

	original := object.NewCommit(treeID, []githash.Oid{parentID}, sig, sig, "fix bug\n")
	parsed, err := object.ParseCommit(original.ToObject())
	require.NoError(t, err)

	assert.Equal(t, original.TreeID(), parsed.TreeID())
	assert.Equal(t, original.ParentIDs(), parsed.ParentIDs())
	assert.Equal(t, original.Message(), parsed.Message())
	assert.Equal(t, original.Author().Name, parsed.Author().Name)
	assert.Equal(t, original.ID(), parsed.ID())
}

func TestCommit_MergeCommit_MultipleParents(t *testing.T) {
	treeID := oidFor(t, "merged tree")
	p1 := oidFor(t, "parent one")
	p2 := oidFor(t, "parent two")
	sig := newTestSignature()

	c := object.NewCommit(treeID, []githash.Oid{p1, p2}, sig, sig, "merge\n")
	parsed, err := object.ParseCommit(c.ToObject())
	require.NoError(t, err)
	assert.Equal(t, []githash.Oid{p1, p2}, parsed.ParentIDs())
}

func TestParseCommit_MissingTree(t *testing.T) {
	sig := newTestSignature()
	raw := object.New(object.TypeCommit, []byte("author "+sig.String()+"\ncommitter "+sig.String()+"\n\nmsg\n"))
	_, err := object.ParseCommit(raw)
	assert.ErrorIs(t, err, object.ErrCommitInvalid)
}

func TestParseCommit_WrongType(t *testing.T) {
	_, err := object.ParseCommit(object.New(object.TypeBlob, []byte("not a commit")))
	assert.ErrorIs(t, err, object.ErrInvalidObject)
}

func TestCommit_MessageWithoutTrailingNewline(t *testing.T) {
	treeID := oidFor(t, "a tree")
	sig := newTestSignature()

	c := object.NewCommit(treeID, nil, sig, sig, "no trailing newline")
	// toObject() always appends one trailing newline after the message.
	assert.Equal(t, byte('\n'), c.ToObject().Bytes()[len(c.ToObject().Bytes())-1])
}
