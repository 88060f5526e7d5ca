package store

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/object"
)

// TreeFromDirectory recursively builds and writes a Tree object
// mirroring the working-tree directory at path, excluding ".git". Files
// become blobs, directories become subtrees; every child object is
// written via Put before the tree that names it, so I3 holds over the
// closure of what's been written at every point during the call.
func (s *Store) TreeFromDirectory(fs afero.Fs, path string) (*object.Tree, error) {
	infos, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, xerrors.Errorf("could not list directory %s: %w", path, ErrStoreIO)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	entries := make([]object.TreeEntry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if name == ".git" {
			continue
		}
		childPath := filepath.Join(path, name)

		var entry object.TreeEntry
		if info.IsDir() {
			childTree, err := s.TreeFromDirectory(fs, childPath)
			if err != nil {
				return nil, err
			}
			entry = object.TreeEntry{Mode: object.ModeDirectory, Name: name, ID: childTree.ID()}
		} else {
			content, err := afero.ReadFile(fs, childPath)
			if err != nil {
				return nil, xerrors.Errorf("could not read file %s: %w", childPath, ErrStoreIO)
			}
			blob := object.NewBlob(content)
			if _, err := s.Put(blob.ToObject()); err != nil {
				return nil, err
			}
			mode := object.ModeForFile(info.Mode()&0o111 != 0)
			entry = object.TreeEntry{Mode: mode, Name: name, ID: blob.ID()}
		}
		entries = append(entries, entry)
	}

	tree := object.NewTree(entries)
	if _, err := s.Put(tree.ToObject()); err != nil {
		return nil, err
	}
	return tree, nil
}

// Materialize recursively writes the tree at treeID into destination,
// creating blobs as regular files and subtrees as directories.
// Pre-existing files are overwritten, pre-existing directories reused.
// Executable entries are written with mode 0755, all other blobs with
// 0644; symlinks and gitlinks are not recreated as such.
func (s *Store) Materialize(treeID githash.Oid, fs afero.Fs, destination string) error {
	if err := fs.MkdirAll(destination, 0o750); err != nil {
		return xerrors.Errorf("could not create directory %s: %w", destination, ErrStoreIO)
	}

	o, err := s.Get(treeID)
	if err != nil {
		return err
	}
	tree, err := object.ParseTree(o)
	if err != nil {
		return err
	}

	for _, entry := range tree.Entries() {
		dest := filepath.Join(destination, entry.Name)
		switch entry.Mode {
		case object.ModeDirectory:
			if err := s.Materialize(entry.ID, fs, dest); err != nil {
				return err
			}
		default:
			blobObj, err := s.Get(entry.ID)
			if err != nil {
				return err
			}
			blob, err := blobToBytes(blobObj)
			if err != nil {
				return err
			}
			perm := os.FileMode(0o644)
			if entry.Mode == object.ModeExecutable {
				perm = 0o755
			}
			if err := afero.WriteFile(fs, dest, blob, perm); err != nil {
				return xerrors.Errorf("could not write file %s: %w", dest, ErrStoreIO)
			}
		}
	}
	return nil
}

func blobToBytes(o *object.Object) ([]byte, error) {
	if o.Type() != object.TypeBlob {
		return nil, xerrors.Errorf("expected blob, got %s: %w", o.Type(), object.ErrInvalidObject)
	}
	return o.Bytes(), nil
}
