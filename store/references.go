package store

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/errutil"
	"github.com/mwillock/gogit/internal/gitpath"
)

// Well-known reference names.
const (
	Head   = "HEAD"
	Master = "refs/heads/master"
)

// ErrRefNotFound is returned when a named reference has no file (or
// packed-refs entry) on disk.
var ErrRefNotFound = xerrors.New("reference not found")

// ErrRefExists is returned by WriteReferenceSafe when the reference
// already exists.
var ErrRefExists = xerrors.New("reference already exists")

// ErrRefNameInvalid is returned when a reference name fails the
// characters/segments rules git imposes on ref names.
var ErrRefNameInvalid = xerrors.New("reference name is not valid")

// ErrRefInvalid is returned when a reference's on-disk content doesn't
// parse as either a symbolic or an Oid reference.
var ErrRefInvalid = xerrors.New("reference is not valid")

// ErrPackedRefInvalid is returned when the packed-refs file has a
// malformed line.
var ErrPackedRefInvalid = xerrors.New("packed-refs file is invalid")

// ReferenceType distinguishes a reference that names an object directly
// from one that points at another reference.
type ReferenceType int8

const (
	// OidReference targets an object identity directly.
	OidReference ReferenceType = 1
	// SymbolicReference targets another reference by name (e.g. HEAD
	// pointing at refs/heads/master).
	SymbolicReference ReferenceType = 2
)

// Reference is a named, mutable pointer: either straight at an object
// identity, or symbolically at another reference.
type Reference struct {
	name   string
	typ    ReferenceType
	target githash.Oid
	symRef string
}

// NewReference builds a reference that targets an object identity.
func NewReference(name string, target githash.Oid) *Reference {
	return &Reference{name: name, typ: OidReference, target: target}
}

// NewSymbolicReference builds a reference that targets another
// reference by name.
func NewSymbolicReference(name, targetRef string) *Reference {
	return &Reference{name: name, typ: SymbolicReference, symRef: targetRef}
}

// Name returns the reference's own name, e.g. "refs/heads/master".
func (r *Reference) Name() string { return r.name }

// Type reports whether the reference is symbolic or direct.
func (r *Reference) Type() ReferenceType { return r.typ }

// Target returns the object identity a direct reference points to. For a
// resolved symbolic reference (as returned by Store.Reference) this is
// the identity at the end of the symbolic chain.
func (r *Reference) Target() githash.Oid { return r.target }

// SymbolicTarget returns the name a symbolic reference points at.
func (r *Reference) SymbolicTarget() string { return r.symRef }

// refContent reads the raw content stored at a reference's path, falling
// back to packed-refs when no loose file exists.
type refContent func(name string) ([]byte, error)

// Reference reads and, if symbolic, fully resolves the named reference.
// Resolution is protected against reference cycles.
func (s *Store) Reference(name string) (*Reference, error) {
	var packed map[string]string
	finder := refContent(func(name string) ([]byte, error) {
		data, err := afero.ReadFile(s.fs, s.refPath(name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, xerrors.Errorf("could not read reference %s: %w", name, ErrStoreIO)
		}
		if packed == nil {
			var perr error
			packed, perr = s.parsePackedRefs()
			if perr != nil {
				return nil, perr
			}
		}
		sha, ok := packed[name]
		if !ok {
			return nil, xerrors.Errorf("ref %q: %w", name, ErrRefNotFound)
		}
		return []byte(sha), nil
	})
	return resolveReference(name, finder, map[string]struct{}{})
}

func resolveReference(name string, finder refContent, visited map[string]struct{}) (*Reference, error) {
	if _, seen := visited[name]; seen {
		return nil, xerrors.Errorf("circular reference at %q: %w", name, ErrRefInvalid)
	}
	visited[name] = struct{}{}

	if !IsRefNameValid(name) {
		return nil, xerrors.Errorf("ref %q: %w", name, ErrRefNameInvalid)
	}

	data, err := finder(name)
	if err != nil {
		return nil, err
	}
	data = bytes.Trim(data, " \n")

	if len(data) >= 5 && string(data[:5]) == "ref: " {
		target := string(data[5:])
		resolved, err := resolveReference(target, finder, visited)
		if err != nil {
			return nil, err
		}
		return &Reference{typ: SymbolicReference, name: name, symRef: target, target: resolved.target}, nil
	}

	oid, err := githash.NewFromChars(data)
	if err != nil {
		return nil, xerrors.Errorf("ref %q content %q: %w", name, data, ErrRefInvalid)
	}
	return &Reference{typ: OidReference, name: name, target: oid}, nil
}

// refPath maps a reference name (and the bare name "HEAD") to its
// on-disk path under the .git directory.
func (s *Store) refPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// parsePackedRefs reads .git/packed-refs into a name -> hex-oid map.
// https://git-scm.com/docs/git-pack-refs
func (s *Store) parsePackedRefs() (refs map[string]string, err error) {
	refs = map[string]string{}
	p := filepath.Join(s.root, gitpath.PackedRefsPath)
	f, err := s.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return refs, nil
		}
		return nil, xerrors.Errorf("could not open %s: %w", gitpath.PackedRefsPath, ErrStoreIO)
	}
	defer errutil.Close(f, &err)

	sc := bufio.NewScanner(f)
	for i := 1; sc.Scan(); i++ {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			return nil, xerrors.Errorf("packed-refs line %d: %w", i, ErrPackedRefInvalid)
		}
		refs[parts[1]] = parts[0]
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Errorf("could not scan %s: %w", gitpath.PackedRefsPath, ErrStoreIO)
	}
	return refs, nil
}

// WriteReference persists ref at its path, overwriting any existing
// file.
func (s *Store) WriteReference(ref *Reference) error {
	if !IsRefNameValid(ref.Name()) {
		return xerrors.Errorf("ref %q: %w", ref.Name(), ErrRefNameInvalid)
	}

	var content string
	switch ref.Type() {
	case SymbolicReference:
		content = fmt.Sprintf("ref: %s\n", ref.SymbolicTarget())
	case OidReference:
		content = fmt.Sprintf("%s\n", ref.Target().String())
	default:
		return xerrors.Errorf("unknown reference type %d: %w", ref.Type(), ErrRefInvalid)
	}

	p := s.refPath(ref.Name())
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return xerrors.Errorf("could not create directory for reference %s: %w", ref.Name(), ErrStoreIO)
	}
	if err := afero.WriteFile(s.fs, p, []byte(content), 0o644); err != nil {
		return xerrors.Errorf("could not write reference %s: %w", ref.Name(), ErrStoreIO)
	}
	return nil
}

// WriteReferenceSafe persists ref only if nothing is already stored at
// that name, returning ErrRefExists otherwise.
func (s *Store) WriteReferenceSafe(ref *Reference) error {
	if !IsRefNameValid(ref.Name()) {
		return xerrors.Errorf("ref %q: %w", ref.Name(), ErrRefNameInvalid)
	}

	p := s.refPath(ref.Name())
	if _, err := s.fs.Stat(p); !os.IsNotExist(err) {
		if err != nil {
			return xerrors.Errorf("could not check reference %s: %w", ref.Name(), ErrStoreIO)
		}
		return xerrors.Errorf("ref %q: %w", ref.Name(), ErrRefExists)
	}

	packed, err := s.parsePackedRefs()
	if err != nil {
		return err
	}
	if _, ok := packed[ref.Name()]; ok {
		return xerrors.Errorf("ref %q: %w", ref.Name(), ErrRefExists)
	}

	return s.WriteReference(ref)
}

// IsRefNameValid reports whether name could be used as a reference
// name, applying the same character and segment rules the wire protocol
// and on-disk layout both assume.
func IsRefNameValid(name string) bool {
	if name == "" || name == "/" || name[len(name)-1] == '/' || name[len(name)-1] == '.' {
		return false
	}

	for i, c := range name {
		if c < 32 || c == 127 {
			return false
		}
		if c == '*' || c == '?' || c == '!' || c == '^' {
			return false
		}
		if c == ' ' || c == '[' || c == '\\' || c == ':' {
			return false
		}
		if i < len(name)-1 {
			switch name[i : i+2] {
			case "@{", "..":
				return false
			}
		}
	}

	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg[0] == '.' || seg[len(seg)-1] == '.' || strings.HasSuffix(seg, ".lock") {
			return false
		}
	}
	return true
}
