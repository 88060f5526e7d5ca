// Package gogit is the porcelain-level facade over the lower packages:
// it wires together store, pack, and transport into the operations an
// outer CLI layer needs.
package gogit

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/gitpath"
	"github.com/mwillock/gogit/object"
	"github.com/mwillock/gogit/store"
)

// ErrRepositoryNotExist is returned when opening a path that has no
// repository config or no HEAD reference.
var ErrRepositoryNotExist = xerrors.New("repository does not exist")

// Repository is a git repository: a .git object/reference store plus,
// unless bare, a working tree.
type Repository struct {
	root     string
	store    *store.Store
	workTree afero.Fs
}

// InitRepository creates a new repository rooted at path: a .git
// directory with the skeleton store package expects, and HEAD pointing
// at refs/heads/master.
func InitRepository(fs afero.Fs, path string) (*Repository, error) {
	gitDir := filepath.Join(path, gitpath.DotGitPath)
	s, err := store.Init(fs, gitDir)
	if err != nil {
		return nil, err
	}
	if err := s.WriteReference(store.NewSymbolicReference(store.Head, store.Master)); err != nil {
		return nil, err
	}
	return &Repository{root: path, store: s, workTree: fs}, nil
}

// OpenRepository loads an existing repository rooted at path.
func OpenRepository(fs afero.Fs, path string) (*Repository, error) {
	gitDir := filepath.Join(path, gitpath.DotGitPath)
	s, err := store.Open(fs, gitDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, xerrors.Errorf("%s: %w", path, ErrRepositoryNotExist)
		}
		return nil, err
	}
	if _, err := s.Reference(store.Head); err != nil {
		return nil, xerrors.Errorf("%s: %w", path, ErrRepositoryNotExist)
	}
	return &Repository{root: path, store: s, workTree: fs}, nil
}

// Store returns the repository's underlying object/reference store.
func (r *Repository) Store() *store.Store { return r.store }

// HashObject computes the identity a file's content would have as a
// blob, and persists it in the object store.
func (r *Repository) HashObject(path string) (githash.Oid, error) {
	content, err := afero.ReadFile(r.workTree, path)
	if err != nil {
		return githash.NullOid, err
	}
	blob := object.New(object.TypeBlob, content)
	return r.store.Put(blob)
}

// CatObject returns the raw payload bytes of the object at id.
func (r *Repository) CatObject(id githash.Oid) ([]byte, object.Type, error) {
	o, err := r.store.Get(id)
	if err != nil {
		return nil, 0, err
	}
	return o.Bytes(), o.Type(), nil
}

// LsTree returns the entry names of the tree at id.
func (r *Repository) LsTree(id githash.Oid) ([]string, error) {
	o, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	tree, err := object.ParseTree(o)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tree.Entries()))
	for _, e := range tree.Entries() {
		names = append(names, e.Name)
	}
	return names, nil
}

// WriteTree walks the repository's working tree and persists it as a
// tree object, returning its identity.
func (r *Repository) WriteTree() (githash.Oid, error) {
	tree, err := r.store.TreeFromDirectory(r.workTree, r.root)
	if err != nil {
		return githash.NullOid, err
	}
	return tree.ID(), nil
}

// CommitTree persists a commit object over the given tree and parents,
// authored and committed by author, and returns its identity.
func (r *Repository) CommitTree(tree githash.Oid, parents []githash.Oid, author object.Signature, message string) (githash.Oid, error) {
	commit := object.NewCommit(tree, parents, author, author, message)
	return r.store.Put(commit.ToObject())
}
