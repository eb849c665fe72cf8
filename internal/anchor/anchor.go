//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package anchor resolves a mount or template root to a canonical path plus
// an open directory descriptor, and offers the *at-style helpers every
// path-taking operation in internal/overlay is rooted against.
package anchor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// TreeAnchor is an open directory descriptor for one of the two tree roots
// (mount or templates). Descriptors are opened once at startup and shared,
// read-only, by every concurrent callback; nothing mutates a TreeAnchor
// after Setup returns.
type TreeAnchor struct {
	Path string
	fd   int
}

// Setup resolves path to its canonical form and opens a directory descriptor
// on it. Both the mount root and the template root must exist at startup;
// callers treat a non-nil error here as a fatal, exit-code-2 condition.
func Setup(path string) (*TreeAnchor, error) {
	real, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", path, err)
	}
	real, err = filepath.EvalSymlinks(real)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}

	fd, err := unix.Open(real, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", real, err)
	}

	return &TreeAnchor{Path: real, fd: fd}, nil
}

// Close releases the anchor's directory descriptor. Called only at teardown.
func (a *TreeAnchor) Close() error {
	return unix.Close(a.fd)
}

// Fd returns the raw directory descriptor, usable as the dirfd argument of
// any *at syscall.
func (a *TreeAnchor) Fd() int {
	return a.fd
}

// Rel strips the kernel's leading slash from a virtual path. The literal "/"
// becomes "." so callers can hand it straight to an *at syscall meaning "the
// anchor directory itself".
func Rel(virtualPath string) string {
	trimmed := strings.TrimPrefix(virtualPath, "/")
	if trimmed == "" {
		return "."
	}
	return trimmed
}

// Openat opens relPath beneath the anchor.
func (a *TreeAnchor) Openat(relPath string, flags int, mode uint32) (int, error) {
	return unix.Openat(a.fd, relPath, flags, mode)
}

// Fstatat stats relPath beneath the anchor without following a trailing
// symlink unless the caller asks it to.
func (a *TreeAnchor) Fstatat(relPath string, flags int) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstatat(a.fd, relPath, &st, flags)
	return st, err
}

// Faccessat probes relPath for the given access mode, clearing errno on
// success (spec's template-gating probe: R_OK for is_template, X_OK for
// is_executable_template).
func (a *TreeAnchor) Faccessat(relPath string, mode uint32) error {
	return unix.Faccessat(a.fd, relPath, mode, 0)
}

func (a *TreeAnchor) Mkdirat(relPath string, mode uint32) error {
	return unix.Mkdirat(a.fd, relPath, mode)
}

func (a *TreeAnchor) Unlinkat(relPath string, flags int) error {
	return unix.Unlinkat(a.fd, relPath, flags)
}

func (a *TreeAnchor) Mknodat(relPath string, mode uint32, dev int) error {
	return unix.Mknodat(a.fd, relPath, mode, dev)
}

func (a *TreeAnchor) Symlinkat(target, relPath string) error {
	return unix.Symlinkat(target, a.fd, relPath)
}

func (a *TreeAnchor) Readlinkat(relPath string, buf []byte) (int, error) {
	return unix.Readlinkat(a.fd, relPath, buf)
}

func (a *TreeAnchor) Linkat(oldRel, newRel string, flags int) error {
	return unix.Linkat(a.fd, oldRel, a.fd, newRel, flags)
}

func (a *TreeAnchor) Fchmodat(relPath string, mode uint32) error {
	return unix.Fchmodat(a.fd, relPath, mode, 0)
}

func (a *TreeAnchor) Fchownat(relPath string, uid, gid int) error {
	return unix.Fchownat(a.fd, relPath, uid, gid, unix.AT_SYMLINK_NOFOLLOW)
}

func (a *TreeAnchor) Renameat2(oldRel string, newAnchor *TreeAnchor, newRel string, flags uint) error {
	return unix.Renameat2(a.fd, oldRel, newAnchor.fd, newRel, flags)
}

// Statfsat reports filesystem-level statistics for the anchor root itself;
// relPath is normally "." but is accepted for symmetry with the other
// helpers.
func (a *TreeAnchor) Statfsat(relPath string) (unix.Statfs_t, error) {
	var st unix.Statfs_t
	full := filepath.Join(a.Path, relPath)
	err := unix.Statfs(full, &st)
	return st, err
}

// OpendirSelf duplicates the anchor descriptor and rewinds it, for the
// special-cased opendir("/") requirement in spec's 4.A.
func (a *TreeAnchor) OpendirSelf() (*os.File, error) {
	dupFd, err := unix.Dup(a.fd)
	if err != nil {
		return nil, err
	}
	if _, err := unix.Seek(dupFd, 0, 0); err != nil {
		unix.Close(dupFd)
		return nil, err
	}
	return os.NewFile(uintptr(dupFd), a.Path), nil
}

// Fixup maps a raw syscall result to the kernel convention: -1 becomes the
// negated errno, anything else passes through unchanged.
func Fixup(n int, err error) int {
	if err != nil {
		if errno, ok := asErrno(err); ok {
			return -int(errno)
		}
		return -int(unix.EIO)
	}
	return n
}

func asErrno(err error) (unix.Errno, bool) {
	errno, ok := err.(unix.Errno)
	return errno, ok
}
