package gogit

import (
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/gitpath"
	"github.com/mwillock/gogit/object"
	"github.com/mwillock/gogit/store"
	"github.com/mwillock/gogit/transport"
)

// ErrAmbiguousHead is a warning (not a failure, per spec's error
// taxonomy): HEAD's identity matched more than one advertised branch,
// so the choice of which branch HEAD should point to was arbitrary and
// fell back to refs/heads/master.
var ErrAmbiguousHead = xerrors.New("ambiguous HEAD, falling back to refs/heads/master")

// LsRemote performs reference discovery against url without fetching
// any objects.
func LsRemote(url string) ([]transport.Ref, error) {
	c := transport.NewClient(url)
	return c.ListRefs()
}

// CloneResult reports a clone's non-fatal warnings alongside the new
// repository.
type CloneResult struct {
	Repo    *Repository
	Warning error // set to ErrAmbiguousHead when HEAD's branch was guessed
}

// Clone fetches every branch from url and materializes the resulting
// HEAD commit's working tree at destination. Objects are installed
// before references; references (other than HEAD) are installed before
// HEAD; HEAD is installed before the working tree is materialized, per
// the core's ordering guarantees.
func Clone(fs afero.Fs, url, destination string) (*CloneResult, error) {
	gitDir := filepath.Join(destination, gitpath.DotGitPath)
	s, err := store.Init(fs, gitDir)
	if err != nil {
		return nil, err
	}

	c := transport.NewClient(url)
	refs, err := c.ListRefs()
	if err != nil {
		return nil, err
	}
	branches := transport.BranchWants(refs)
	if len(branches) == 0 {
		return nil, xerrors.New("remote advertises no branches")
	}

	wants := make([]githash.Oid, len(branches))
	for i, b := range branches {
		wants[i] = b.ID
	}

	lookup := func(oid githash.Oid) (*object.Object, bool) {
		o, err := s.Get(oid)
		if err != nil {
			return nil, false
		}
		return o, true
	}

	objs, err := c.FetchPack(wants, lookup)
	if err != nil {
		return nil, err
	}
	for id, o := range objs {
		if _, err := s.Put(o); err != nil {
			return nil, xerrors.Errorf("installing object %s: %w", id, err)
		}
	}

	var headID githash.Oid
	for _, ref := range refs {
		if ref.Name == "HEAD" {
			headID = ref.ID
		}
	}

	for _, b := range branches {
		if err := s.WriteReference(store.NewReference(b.Name, b.ID)); err != nil {
			return nil, xerrors.Errorf("writing %s: %w", b.Name, err)
		}
	}

	headBranch, warning := resolveHeadBranch(branches, headID)
	if err := s.WriteReference(store.NewSymbolicReference(store.Head, headBranch)); err != nil {
		return nil, xerrors.Errorf("writing HEAD: %w", err)
	}

	repo := &Repository{root: destination, store: s, workTree: fs}

	headRef, err := s.Reference(store.Head)
	if err != nil {
		return nil, err
	}
	headCommitObj, err := s.Get(headRef.Target())
	if err != nil {
		return nil, xerrors.Errorf("reading HEAD commit: %w", err)
	}
	headCommit, err := object.ParseCommit(headCommitObj)
	if err != nil {
		return nil, xerrors.Errorf("parsing HEAD commit: %w", err)
	}
	if err := s.Materialize(headCommit.TreeID(), fs, destination); err != nil {
		return nil, xerrors.Errorf("materializing working tree: %w", err)
	}

	return &CloneResult{Repo: repo, Warning: warning}, nil
}

// resolveHeadBranch picks the branch HEAD should symbolically point
// at: the one whose identity matches the advertised HEAD, falling back
// to refs/heads/master (with ErrAmbiguousHead) when more than one
// branch shares that identity.
func resolveHeadBranch(branches []transport.Ref, headID githash.Oid) (string, error) {
	var matches []string
	for _, b := range branches {
		if b.ID == headID {
			matches = append(matches, b.Name)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return store.Master, nil
	default:
		return store.Master, ErrAmbiguousHead
	}
}
