package object

import (
	"bytes"
	"sort"

	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/readutil"
)

// ErrTreeInvalid is returned when a tree's payload doesn't decode into a
// well-formed sequence of entries.
var ErrTreeInvalid = xerrors.New("invalid tree")

// Mode is the mode string attached to a tree entry. Git stores it as
// ASCII octal digits, not a fixed-width integer, so "40000" (a directory)
// and "100644" (a regular file) are both valid despite differing in
// length.
type Mode string

// The modes the store ever produces. Other modes (symlinks, gitlinks)
// may be read back from a tree parsed off the wire, but this module's
// local write path never emits them.
const (
	ModeFile       Mode = "100644"
	ModeExecutable Mode = "100755"
	ModeDirectory  Mode = "40000"
)

// IsDir reports whether m is the directory mode. Used to apply the
// directory-suffix sort tie-break.
func (m Mode) IsDir() bool {
	return m == ModeDirectory
}

// TreeEntry is one (mode, name, target) triple inside a Tree.
type TreeEntry struct {
	Mode Mode
	Name string
	ID   githash.Oid
}

// Tree is an ordered, name-unique sequence of entries.
type Tree struct {
	rawObject *Object
	entries   []TreeEntry
}

// NewTree builds a Tree from entries, sorting and deduplicating them by
// name first. Where two entries share a name, the later one in the input
// wins.
func NewTree(entries []TreeEntry) *Tree {
	byName := make(map[string]TreeEntry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, seen := byName[e.Name]; !seen {
			order = append(order, e.Name)
		}
		byName[e.Name] = e
	}
	sort.Slice(order, func(i, j int) bool {
		return treeSortKey(byName[order[i]]) < treeSortKey(byName[order[j]])
	})

	out := make([]TreeEntry, len(order))
	for i, name := range order {
		out[i] = byName[name]
	}
	t := &Tree{entries: out}
	t.rawObject = t.toObject()
	return t
}

// treeSortKey returns the string a tree entry is ordered by: the name,
// with a trailing "/" appended for directories. This is git's
// byte-lexicographic order with the usual directory tie-break: entries
// sort as though their name had a trailing "/".
func treeSortKey(e TreeEntry) string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// ParseTree decodes a tree object's canonical payload.
//
// Each entry is: ASCII mode, a space, the name bytes, a NUL, then the 20
// raw bytes of the target Oid, with no separator between entries.
func ParseTree(o *Object) (*Tree, error) {
	if o.Type() != TypeTree {
		return nil, xerrors.Errorf("type %s is not a tree: %w", o.Type(), ErrInvalidObject)
	}

	data := o.Bytes()
	entries := make([]TreeEntry, 0)
	offset := 0
	for i := 1; offset < len(data); i++ {
		modeBytes := readutil.ReadTo(data[offset:], ' ')
		if modeBytes == nil {
			return nil, xerrors.Errorf("entry %d: missing mode: %w", i, ErrTreeInvalid)
		}
		offset += len(modeBytes) + 1

		nameBytes := readutil.ReadTo(data[offset:], 0)
		if nameBytes == nil {
			return nil, xerrors.Errorf("entry %d: missing name: %w", i, ErrTreeInvalid)
		}
		offset += len(nameBytes) + 1

		if offset+githash.OidSize > len(data) {
			return nil, xerrors.Errorf("entry %d: truncated id: %w", i, ErrTreeInvalid)
		}
		id, err := githash.NewFromHex(data[offset : offset+githash.OidSize])
		if err != nil {
			return nil, xerrors.Errorf("entry %d: invalid id: %w", i, ErrTreeInvalid)
		}
		offset += githash.OidSize

		entries = append(entries, TreeEntry{
			Mode: Mode(modeBytes),
			Name: string(nameBytes),
			ID:   id,
		})
	}

	return &Tree{rawObject: o, entries: entries}, nil
}

// Entries returns a copy of the tree's entries, in stored order.
func (t *Tree) Entries() []TreeEntry {
	out := make([]TreeEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ID returns the tree's identity.
func (t *Tree) ID() githash.Oid {
	return t.rawObject.ID()
}

// ToObject returns the underlying Object.
func (t *Tree) ToObject() *Object {
	return t.rawObject
}

func (t *Tree) toObject() *Object {
	buf := new(bytes.Buffer)
	for _, e := range t.entries {
		buf.WriteString(string(e.Mode))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID.Bytes())
	}
	return New(TypeTree, buf.Bytes())
}

// ValidEntryName reports whether a name is a legal tree entry name: a
// non-empty byte string containing no NUL and no '/'.
func ValidEntryName(name string) bool {
	if name == "" {
		return false
	}
	return !bytes.ContainsAny([]byte(name), "\x00/")
}

// ModeForFile returns the canonical mode for a regular file given
// whether its executable bit is set, canonicalizing to 100644/100755
// regardless of the rest of the platform's permission bits, keeping
// object identity stable across systems.
func ModeForFile(executable bool) Mode {
	if executable {
		return ModeExecutable
	}
	return ModeFile
}
