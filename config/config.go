// Package config reads and writes the small subset of .git/config this
// module cares about: the [core] section written by Init and checked by
// Open.
package config

import (
	"bytes"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/ini.v1"
)

// ErrUnsupportedFormatVersion is returned when a repository's config
// declares a repositoryformatversion this module doesn't know how to
// read.
var ErrUnsupportedFormatVersion = xerrors.New("unsupported repository format version")

// SupportedFormatVersion is the only repositoryformatversion this module
// understands (the pre-extensions format).
const SupportedFormatVersion = 0

// Core holds the handful of [core] keys this module reads or writes.
type Core struct {
	RepositoryFormatVersion int
	FileMode                bool
	Bare                    bool
}

// Default returns the [core] section written by Init.
func Default() Core {
	return Core{
		RepositoryFormatVersion: SupportedFormatVersion,
		FileMode:                true,
		Bare:                    false,
	}
}

// WriteFile writes a .git/config file at path describing core, through
// fs rather than directly against the OS, so a Store backed by an
// in-memory afero.Fs never touches the real filesystem.
func WriteFile(fs afero.Fs, path string, core Core) error {
	f := ini.Empty()
	sec, err := f.NewSection("core")
	if err != nil {
		return xerrors.Errorf("could not create core section: %w", err)
	}
	if _, err := sec.NewKey("repositoryformatversion", strconv.Itoa(core.RepositoryFormatVersion)); err != nil {
		return xerrors.Errorf("could not set repositoryformatversion: %w", err)
	}
	if _, err := sec.NewKey("filemode", strconv.FormatBool(core.FileMode)); err != nil {
		return xerrors.Errorf("could not set filemode: %w", err)
	}
	if _, err := sec.NewKey("bare", strconv.FormatBool(core.Bare)); err != nil {
		return xerrors.Errorf("could not set bare: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return xerrors.Errorf("could not render config: %w", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return xerrors.Errorf("could not write config to %s: %w", path, err)
	}
	return nil
}

// ReadFile reads the [core] section of the .git/config file at path,
// through fs rather than directly against the OS.
func ReadFile(fs afero.Fs, path string) (Core, error) {
	var core Core
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return core, xerrors.Errorf("no config at %s: %w", path, err)
		}
		return core, xerrors.Errorf("could not read config at %s: %w", path, err)
	}

	f, err := ini.Load(raw)
	if err != nil {
		return core, xerrors.Errorf("could not parse config at %s: %w", path, err)
	}

	sec, err := f.GetSection("core")
	if err != nil {
		return core, xerrors.Errorf("config at %s has no [core] section: %w", path, err)
	}

	core.RepositoryFormatVersion = sec.Key("repositoryformatversion").MustInt(0)
	core.FileMode = sec.Key("filemode").MustBool(true)
	core.Bare = sec.Key("bare").MustBool(false)

	if core.RepositoryFormatVersion != SupportedFormatVersion {
		return core, xerrors.Errorf("repositoryformatversion %d: %w", core.RepositoryFormatVersion, ErrUnsupportedFormatVersion)
	}
	return core, nil
}
