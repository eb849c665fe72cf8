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

// Package handle implements the per-open handle store: a tagged union of
// FileHandle and DirHandle variants behind an opaque token, matching the
// kernel's convention of an opaque pointer-sized per-open cookie.
package handle

import (
	"fmt"
	"os"

	"github.com/jacobsa/syncutil"
	"golang.org/x/sys/unix"
)

// Kind is the handle's variant tag, fixed at creation and never changed.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// FileHandle is the per-open state for a regular file. If IsTemplate is
// true, Fd refers to the template file, not the lower-tree file; cached
// contents exist iff IsTemplate was true and rendering succeeded.
type FileHandle struct {
	VirtualPath          string
	Fd                   int
	IsTemplate           bool
	IsExecutableTemplate bool
	Cache                []byte
}

// DirHandle is the per-open state for a directory stream. Stream wraps the
// anchor-relative directory descriptor as an *os.File so Readdir can use
// Go's own buffered directory-entry reader instead of raw getdents parsing.
// Entries caches one readdir(3)-equivalent batch at a time and Offset counts
// the entries handed out so far. The stream is only ever read forward: no
// kernel-supplied offset is consulted and the stream is never re-seeked.
type DirHandle struct {
	VirtualPath string
	Stream      *os.File
	Entries     []os.DirEntry
	Offset      uint64
}

// Handle is the tagged union the kernel-facing layer stores its token
// against. Kind is set once, at allocation, and never changes.
type Handle struct {
	Kind Kind
	File *FileHandle
	Dir  *DirHandle
}

// Token is the opaque, pointer-sized identifier handed to the kernel layer.
type Token uint64

// Store is the process-wide table of live handles. INVARIANT: every live
// handle's Kind matches the concrete variant populated inside it, checked by
// checkInvariants via a jacobsa/syncutil.InvariantMutex exactly the way the
// teacher's fileSystem.handles map is guarded.
type Store struct {
	mu      syncutil.InvariantMutex
	next    Token
	handles map[Token]*Handle
}

// NewStore constructs an empty handle table.
func NewStore() *Store {
	s := &Store{handles: make(map[Token]*Handle)}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// GUARDED_BY(mu)
func (s *Store) checkInvariants() {
	for tok, h := range s.handles {
		switch h.Kind {
		case KindFile:
			if h.File == nil {
				panic(fmt.Sprintf("handle %d tagged KindFile with nil File", tok))
			}
		case KindDir:
			if h.Dir == nil {
				panic(fmt.Sprintf("handle %d tagged KindDir with nil Dir", tok))
			}
		default:
			panic(fmt.Sprintf("handle %d has unknown kind %d", tok, h.Kind))
		}
	}
}

// AllocateFile stores fh and returns its token.
func (s *Store) AllocateFile(fh *FileHandle) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	tok := s.next
	s.handles[tok] = &Handle{Kind: KindFile, File: fh}
	return tok
}

// AllocateDir stores dh and returns its token.
func (s *Store) AllocateDir(dh *DirHandle) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	tok := s.next
	s.handles[tok] = &Handle{Kind: KindDir, Dir: dh}
	return tok
}

// GetFile returns the FileHandle for tok, or ENFILE if the token is unset or
// tagged for a different variant.
func (s *Store) GetFile(tok Token) (*FileHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[tok]
	if !ok || h.Kind != KindFile {
		return nil, unix.ENFILE
	}
	return h.File, nil
}

// GetDir returns the DirHandle for tok, or ENOTDIR if the token is unset or
// tagged for a different variant.
func (s *Store) GetDir(tok Token) (*DirHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[tok]
	if !ok || h.Kind != KindDir {
		return nil, unix.ENOTDIR
	}
	return h.Dir, nil
}

// Release frees the handle's own storage and its cached-contents buffer, if
// any. It does not close descriptors; the overlay layer closes before
// calling Release.
func (s *Store) Release(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[tok]; ok && h.Kind == KindFile && h.File != nil {
		h.File.Cache = nil
	}
	delete(s.handles, tok)
}

// Len reports the number of live handles, used by internal/metrics to drive
// the handles_open gauge.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
