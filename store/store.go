// Package store implements the content-addressed loose-object store: a
// fan-out directory of zlib-compressed objects under a repository's
// .git/objects, plus the refs/ and HEAD files that name entry points into
// it. Incoming pack objects are installed as loose objects rather than
// kept as a packfile-on-disk backend; see package transport.
package store

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/config"
	"github.com/mwillock/gogit/internal/cache"
	"github.com/mwillock/gogit/internal/gitpath"
	"github.com/mwillock/gogit/internal/syncutil"
)

// defaultCacheSize bounds how many recently-read objects are kept in
// memory to spare a decompress+parse on repeated Get calls for the same
// identity (e.g. revisiting a tree while materializing many files).
const defaultCacheSize = 256

// namedMutexBuckets is the number of stripes the object-identity lock is
// split across; a prime spreads concurrent identities evenly.
const namedMutexBuckets = 257

// Store is the on-disk object database rooted at a repository's .git
// directory.
type Store struct {
	root string
	fs   afero.Fs

	objectMu *syncutil.NamedMutex
	cache    *cache.LRU
}

// Open returns a Store for an existing repository at gitDir (the .git
// directory, not the working tree root). It validates the repository's
// config carries a supported format version.
func Open(fs afero.Fs, gitDir string) (*Store, error) {
	if _, err := config.ReadFile(fs, filepath.Join(gitDir, gitpath.ConfigPath)); err != nil {
		return nil, xerrors.Errorf("could not open repository at %s: %w", gitDir, err)
	}
	return newStore(fs, gitDir), nil
}

// Init creates the directory skeleton and default config for a new
// repository rooted at gitDir, then returns its Store.
func Init(fs afero.Fs, gitDir string) (*Store, error) {
	dirs := []string{
		gitpath.ObjectsPath,
		gitpath.ObjectsInfoPath,
		gitpath.ObjectsPackPath,
		gitpath.RefsTagsPath,
		gitpath.RefsHeadsPath,
	}
	for _, d := range dirs {
		full := filepath.Join(gitDir, d)
		if err := fs.MkdirAll(full, 0o750); err != nil {
			return nil, xerrors.Errorf("could not create directory %s: %w", d, err)
		}
	}

	descPath := filepath.Join(gitDir, gitpath.DescriptionPath)
	desc := []byte("Unnamed repository; edit this file 'description' to name the repository.\n")
	if err := afero.WriteFile(fs, descPath, desc, 0o644); err != nil {
		return nil, xerrors.Errorf("could not write %s: %w", gitpath.DescriptionPath, err)
	}

	cfgPath := filepath.Join(gitDir, gitpath.ConfigPath)
	if _, err := fs.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.WriteFile(fs, cfgPath, config.Default()); err != nil {
			return nil, xerrors.Errorf("could not write config: %w", err)
		}
	}

	return newStore(fs, gitDir), nil
}

func newStore(fs afero.Fs, gitDir string) *Store {
	return &Store{
		root:     gitDir,
		fs:       fs,
		objectMu: syncutil.NewNamedMutex(namedMutexBuckets),
		cache:    cache.NewLRU(defaultCacheSize),
	}
}

// Root returns the path to the repository's .git directory.
func (s *Store) Root() string { return s.root }
