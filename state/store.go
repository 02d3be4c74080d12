// Package state persists the single last-known tracked IP address between
// runs.
package state

import (
	"log/slog"
	"net/netip"
	"path/filepath"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
)

// Store persists the last tracked IP address between runs.
type Store interface {
	Last() (ip netip.Addr, ok bool, err error)
	SetLast(ip netip.Addr) error
}

// FileStore keeps the tracked address in a flat text file: the bare address
// string, no metadata, no versioning. Writes go through a temporary file
// followed by a rename, so a failed write never corrupts a previously valid
// value.
type FileStore struct {
	fs     vfs.FileSystem
	path   string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a new FileStore backed by the given filesystem and
// path.
func NewFileStore(fs vfs.FileSystem, path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		fs:     fs,
		path:   path,
		logger: logger.With("component", "state", "path", path),
	}
}

// Last returns the tracked address from the state file. A missing or empty
// file means no address was tracked yet, which is not an error.
func (s *FileStore) Last() (netip.Addr, bool, error) {
	data, err := vfs.ReadFile(s.fs, s.path)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			s.logger.Debug("no tracked IP state file found")
			return netip.Addr{}, false, nil
		}
		return netip.Addr{}, false, aerrors.Wrap(
			aerrors.KindIO, "failed reading tracked IP state file", err, "path", s.path)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return netip.Addr{}, false, nil
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false, aerrors.Wrap(
			aerrors.KindIO, "tracked IP state file is corrupted", err, "path", s.path, "content", raw)
	}

	s.logger.Debug("read tracked IP state", "address", addr.String())

	return addr, true, nil
}

// SetLast records the given address as the tracked one, atomically replacing
// any previous value.
func (s *FileStore) SetLast(ip netip.Addr) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return aerrors.Wrap(aerrors.KindIO, "failed creating state directory", err, "path", s.path)
	}

	tmp := s.path + ".tmp"
	if err := vfs.WriteFile(s.fs, tmp, []byte(ip.String()+"\n"), 0o600); err != nil {
		return aerrors.Wrap(aerrors.KindIO, "failed writing tracked IP state file", err, "path", tmp)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return aerrors.Wrap(aerrors.KindIO, "failed replacing tracked IP state file", err, "path", s.path)
	}

	s.logger.Debug("wrote tracked IP state", "address", ip.String())

	return nil
}
