package store

import (
	"bytes"
	"compress/zlib"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/internal/errutil"
	"github.com/mwillock/gogit/internal/gitpath"
	"github.com/mwillock/gogit/object"
)

// ErrStoreIO is returned when a filesystem operation (read, write,
// create, mkdir) against the object database fails.
var ErrStoreIO = xerrors.New("object store I/O error")

// ErrMissingObject is returned by Get when no object is stored at the
// requested identity.
var ErrMissingObject = xerrors.New("object not found")

// ErrCorruptObject is returned by Get when a stored object's bytes fail
// to decompress, fail to parse, or hash back to a different identity
// than the one requested.
var ErrCorruptObject = xerrors.New("object is corrupt")

// looseObjectPath returns the fan-out path of an object: objects/<first
// two hex digits>/<remaining 38>.
func (s *Store) looseObjectPath(oid githash.Oid) string {
	hex := oid.String()
	return filepath.Join(s.root, gitpath.ObjectsPath, hex[:2], hex[2:])
}

// HasObject reports whether an object is present in the store.
func (s *Store) HasObject(oid githash.Oid) (bool, error) {
	key := oid.Bytes()
	s.objectMu.RLock(key)
	defer s.objectMu.RUnlock(key)

	_, err := s.fs.Stat(s.looseObjectPath(oid))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, xerrors.Errorf("could not stat object %s: %w", oid, ErrStoreIO)
}

// Put writes obj to the store under its identity. If an object is
// already stored at that identity the call is a no-op (content
// addressing guarantees the bytes would be identical). The write is
// atomic: the compressed bytes land in a temp file first, which is then
// renamed into place, so no half-written loose object is ever observable
// at its final path.
func (s *Store) Put(obj *object.Object) (githash.Oid, error) {
	oid := obj.ID()
	key := oid.Bytes()
	s.objectMu.Lock(key)
	defer s.objectMu.Unlock(key)

	dest := s.looseObjectPath(oid)
	if _, err := s.fs.Stat(dest); err == nil {
		return oid, nil
	} else if !os.IsNotExist(err) {
		return githash.NullOid, xerrors.Errorf("could not check for existing object %s: %w", oid, ErrStoreIO)
	}

	compressed, err := compress(obj.CanonicalBytes())
	if err != nil {
		return githash.NullOid, xerrors.Errorf("could not compress object %s: %w", oid, ErrStoreIO)
	}

	dir := filepath.Dir(dest)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return githash.NullOid, xerrors.Errorf("could not create directory %s: %w", dir, ErrStoreIO)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".tmp-obj-")
	if err != nil {
		return githash.NullOid, xerrors.Errorf("could not create temp file in %s: %w", dir, ErrStoreIO)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return githash.NullOid, xerrors.Errorf("could not write object %s: %w", oid, ErrStoreIO)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return githash.NullOid, xerrors.Errorf("could not close temp file for object %s: %w", oid, ErrStoreIO)
	}
	if err := s.fs.Chmod(tmpPath, 0o444); err != nil {
		_ = s.fs.Remove(tmpPath)
		return githash.NullOid, xerrors.Errorf("could not set permissions on object %s: %w", oid, ErrStoreIO)
	}
	if err := s.fs.Rename(tmpPath, dest); err != nil {
		_ = s.fs.Remove(tmpPath)
		return githash.NullOid, xerrors.Errorf("could not persist object %s: %w", oid, ErrStoreIO)
	}

	s.cache.Add(oid, obj)
	return oid, nil
}

// Get reads and decodes the object stored at oid. It re-verifies that
// the decoded bytes hash back to oid (I1); a disagreement is
// ErrCorruptObject, never silently trusted.
func (s *Store) Get(oid githash.Oid) (o *object.Object, err error) {
	key := oid.Bytes()
	s.objectMu.RLock(key)
	defer s.objectMu.RUnlock(key)

	if cached, found := s.cache.Get(oid); found {
		if cachedObj, ok := cached.(*object.Object); ok {
			return cachedObj, nil
		}
	}

	p := s.looseObjectPath(oid)
	f, err := s.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("oid %s: %w", oid, ErrMissingObject)
		}
		return nil, xerrors.Errorf("could not open object %s: %w", oid, ErrStoreIO)
	}
	defer errutil.Close(f, &err)

	zr, err := zlib.NewReader(f)
	if err != nil {
		return nil, xerrors.Errorf("could not decompress object %s: %w", oid, ErrCorruptObject)
	}
	defer errutil.Close(zr, &err)

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, xerrors.Errorf("could not read object %s: %w", oid, ErrCorruptObject)
	}

	o, err = object.ParseCanonical(raw)
	if err != nil {
		return nil, xerrors.Errorf("could not parse object %s: %w", oid, ErrCorruptObject)
	}
	if o.ID() != oid {
		return nil, xerrors.Errorf("object at %s rehashes to %s: %w", oid, o.ID(), ErrCorruptObject)
	}

	s.cache.Add(oid, o)
	return o, nil
}

// compress returns the zlib-compressed form of content, using the
// standard default compression level (spec requires only that the
// stream decodes correctly, not a specific level).
func compress(content []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := zlib.NewWriter(buf)
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
