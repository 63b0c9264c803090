// Package secretstore persists MCP server credentials as one owner-only
// file per (server-id, variable-name) pair under a base directory.
package secretstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/viant/afs"

	"github.com/lucidloop/deskagent/internal/errkind"
)

// defaultVar is the marker used for single-variable servers so a named
// variable can never collide with it.
const defaultVar = "default"

// Store writes and reads secret files under Dir. Zero value is not usable;
// construct with New.
type Store struct {
	dir string
	fs  afs.Service
}

// New returns a Store rooted at dir. The directory is created lazily on
// first write, not here.
func New(dir string) *Store {
	return &Store{dir: dir, fs: afs.New()}
}

func fileName(serverID uuid.UUID, varName string) string {
	if varName == "" || varName == defaultVar {
		return fmt.Sprintf("mcp_%s.key", serverID)
	}
	return fmt.Sprintf("mcp_%s_%s.key", serverID, varName)
}

func (s *Store) path(serverID uuid.UUID, varName string) string {
	return filepath.Join(s.dir, fileName(serverID, varName))
}

// Put writes raw secret bytes for (serverID, varName), creating the
// directory if absent and restricting the file to owner read/write on
// platforms that support it.
func (s *Store) Put(ctx context.Context, serverID uuid.UUID, varName string, value []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return errkind.Wrap(err, errkind.IO, "create secret directory %s", s.dir)
	}
	path := s.path(serverID, varName)
	if err := s.fs.Upload(ctx, path, 0o600, strings.NewReader(string(value))); err != nil {
		return errkind.Wrap(err, errkind.IO, "write secret %s", path)
	}
	return nil
}

// Get reads and trims the secret for (serverID, varName).
func (s *Store) Get(ctx context.Context, serverID uuid.UUID, varName string) ([]byte, error) {
	path := s.path(serverID, varName)
	data, err := s.fs.DownloadWithURL(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return nil, errkind.New(errkind.NotFound, "secret %s/%s", serverID, varName)
		}
		if os.IsPermission(err) {
			return nil, errkind.Wrap(err, errkind.Auth, "permission denied reading %s", path)
		}
		return nil, errkind.Wrap(err, errkind.IO, "read secret %s", path)
	}
	return trim(data), nil
}

// GetDefault reads the single "default" secret for serverID, the common
// case for servers with exactly one credential.
func (s *Store) GetDefault(ctx context.Context, serverID uuid.UUID) ([]byte, error) {
	return s.Get(ctx, serverID, defaultVar)
}

// DeleteAll removes every secret file for serverID, tolerating concurrent
// absence of the directory or individual files.
func (s *Store) DeleteAll(ctx context.Context, serverID uuid.UUID) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errkind.Wrap(err, errkind.IO, "list secret directory %s", s.dir)
	}
	prefix := fmt.Sprintf("mcp_%s", serverID)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, prefix) && strings.HasSuffix(n, ".key") {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		path := filepath.Join(s.dir, n)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errkind.Wrap(err, errkind.IO, "delete secret %s", path)
		}
	}
	return nil
}

// ReadKeyfile reads the file at path, expanding a leading '~/' to the
// home directory, and returns the trimmed content. It always treats its
// argument as a path; ResolveKeyOrPath does the raw-or-path choice.
func ReadKeyfile(path string) ([]byte, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IO, "expand keyfile path %s", path)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.New(errkind.NotFound, "keyfile %s", expanded)
		}
		if os.IsPermission(err) {
			return nil, errkind.Wrap(err, errkind.Auth, "permission denied reading keyfile %s", expanded)
		}
		return nil, errkind.Wrap(err, errkind.IO, "read keyfile %s", expanded)
	}
	return trim(data), nil
}

// LooksLikePath reports whether value should be treated as a keyfile
// reference rather than a raw secret, per the leading '/', '~/' or './'
// convention ResolveKeyOrPath applies.
func LooksLikePath(value string) bool {
	v := strings.TrimSpace(value)
	return strings.HasPrefix(v, "/") || strings.HasPrefix(v, "~/") || strings.HasPrefix(v, "./")
}

// ResolveKeyOrPath returns value verbatim when it is a raw secret, or the
// trimmed contents of the file it names when it looks like a path.
func ResolveKeyOrPath(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !LooksLikePath(trimmed) {
		return trimmed, nil
	}
	data, err := ReadKeyfile(trimmed)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.WithStack(err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

func trim(data []byte) []byte {
	return []byte(strings.TrimRight(strings.TrimSpace(string(data)), "\r\n"))
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(strings.ToLower(err.Error()), "no such file")
}
