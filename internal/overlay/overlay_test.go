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

package overlay

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTestOverlay wires an Overlay over two fresh temp directories, with an
// empty configuration store (a valid configuration per configstore.Open).
func newTestOverlay(t *testing.T) (*Overlay, string, string) {
	t.Helper()
	mountDir := t.TempDir()
	templatesDir := t.TempDir()

	ov, err := New(mountDir, templatesDir, "")
	require.NoError(t, err)
	t.Cleanup(func() { ov.Close() })

	return ov, mountDir, templatesDir
}

func writeFile(t *testing.T, dir, rel, contents string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0644))
}

func TestPassThroughOpenReadWrite(t *testing.T) {
	ov, mountDir, _ := newTestOverlay(t)
	writeFile(t, mountDir, "plain.txt", "lower tree contents")

	n := &Node{ov: ov, virtualPath: "/plain.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)

	dest := make([]byte, 64)
	res, errno := n.Read(context.Background(), fh, dest, 0)
	require.Equal(t, syscall.Errno(0), errno)
	buf, status := res.Bytes(dest)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, "lower tree contents", string(buf))

	written, errno := n.Write(context.Background(), fh, []byte("XX"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.EqualValues(t, 2, written)

	assert.Equal(t, syscall.Errno(0), n.Release(context.Background(), fh))

	got, err := os.ReadFile(filepath.Join(mountDir, "plain.txt"))
	require.NoError(t, err)
	assert.Equal(t, "XXower tree contents", string(got))
}

func TestTemplateOpenRendersAndCaches(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "hello {{missing}}world")
	require.NoError(t, os.Chmod(filepath.Join(templatesDir, "motd.txt"), 0644))

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)

	dest := make([]byte, 64)
	res, errno := n.Read(context.Background(), fh, dest, 0)
	require.Equal(t, syscall.Errno(0), errno)
	buf, status := res.Bytes(dest)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, "hello world", string(buf))
}

func TestTemplateWriteIsRejected(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "static")

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)

	_, errno = n.Write(context.Background(), fh, []byte("nope"), 0)
	assert.Equal(t, syscall.EPERM, errno)
}

func TestTemplateReadEOFAtCacheBoundary(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "abc")

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)

	dest := make([]byte, 64)
	res, errno := n.Read(context.Background(), fh, dest, 3)
	require.Equal(t, syscall.Errno(0), errno)
	buf, status := res.Bytes(dest)
	require.Equal(t, fuse.OK, status)
	assert.Empty(t, buf)
}

func TestTemplateAllocateAndCopyFileRangeRejected(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "static")

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)

	assert.Equal(t, syscall.EPERM, n.Allocate(context.Background(), fh, 0, 10, 0))

	_, errno = n.CopyFileRange(context.Background(), fh, 0, nil, fh, 0, 1, 0)
	assert.Equal(t, syscall.EPERM, errno) // either side being a template rejects the copy
}

func TestTemplateLseekRejected(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "static")

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)

	_, errno = n.Lseek(context.Background(), fh, 0, 0)
	assert.Equal(t, syscall.ENFILE, errno)
}

func TestGetattrStripsTemplateModeBits(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "static")
	require.NoError(t, os.Chmod(filepath.Join(templatesDir, "motd.txt"), 0777))

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	var out fuse.AttrOut
	errno := n.Getattr(context.Background(), nil, &out)
	require.Equal(t, syscall.Errno(0), errno)

	assert.Zero(t, out.Attr.Mode&0o222, "write bits must be stripped for a template-backed path")
	assert.Zero(t, out.Attr.Mode&0o111, "execute bits must be stripped for a non-directory template")
}

func TestSetattrRejectsTemplateBackedPath(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "motd.txt", "placeholder")
	writeFile(t, templatesDir, "motd.txt", "static")

	n := &Node{ov: ov, virtualPath: "/motd.txt"}
	var out fuse.AttrOut
	in := &fuse.SetAttrIn{}
	assert.Equal(t, syscall.EPERM, n.Setattr(context.Background(), nil, in, &out))
}

func TestSetattrChownPassesThrough(t *testing.T) {
	ov, mountDir, _ := newTestOverlay(t)
	writeFile(t, mountDir, "plain.txt", "x")

	n := &Node{ov: ov, virtualPath: "/plain.txt"}

	before, err := os.Stat(filepath.Join(mountDir, "plain.txt"))
	require.NoError(t, err)
	beforeSt := before.Sys().(*syscall.Stat_t)

	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_UID
	in.Uid = beforeSt.Uid // chown to the same uid: must succeed unprivileged too

	var out fuse.AttrOut
	errno := n.Setattr(context.Background(), nil, in, &out)
	if errno == syscall.EPERM {
		t.Skip("chown not permitted for this process")
	}
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, beforeSt.Uid, out.Attr.Uid)
}

func TestAccessPassesThroughToMountTree(t *testing.T) {
	ov, mountDir, _ := newTestOverlay(t)
	writeFile(t, mountDir, "plain.txt", "x")

	n := &Node{ov: ov, virtualPath: "/plain.txt"}
	assert.Equal(t, syscall.Errno(0), n.Access(context.Background(), unix.R_OK))

	missing := &Node{ov: ov, virtualPath: "/nope.txt"}
	assert.NotEqual(t, syscall.Errno(0), missing.Access(context.Background(), unix.R_OK))
}

func TestReaddirListsLowerTreeOnly(t *testing.T) {
	ov, mountDir, templatesDir := newTestOverlay(t)
	writeFile(t, mountDir, "a.txt", "a")
	writeFile(t, mountDir, "b.txt", "b")
	writeFile(t, templatesDir, "c.txt", "c") // template-only entry, not merged in

	root := &Node{ov: ov, virtualPath: "/"}
	stream, errno := root.Readdir(context.Background())
	require.Equal(t, syscall.Errno(0), errno)
	defer stream.Close()

	var names []string
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, syscall.Errno(0), errno)
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestXattrRoundTrip(t *testing.T) {
	ov, mountDir, _ := newTestOverlay(t)
	writeFile(t, mountDir, "plain.txt", "x")

	n := &Node{ov: ov, virtualPath: "/plain.txt"}
	errno := n.Setxattr(context.Background(), "user.note", []byte("hi"), 0)
	if errno == syscall.ENOTSUP || errno == syscall.EPERM {
		t.Skip("extended attributes unsupported on this filesystem")
	}
	require.Equal(t, syscall.Errno(0), errno)

	buf := make([]byte, 16)
	nRead, errno := n.Getxattr(context.Background(), "user.note", buf)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "hi", string(buf[:nRead]))

	sz, errno := n.Listxattr(context.Background(), buf)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Contains(t, string(buf[:sz]), "user.note")

	require.Equal(t, syscall.Errno(0), n.Removexattr(context.Background(), "user.note"))
}

func TestLockPassThrough(t *testing.T) {
	ov, mountDir, _ := newTestOverlay(t)
	writeFile(t, mountDir, "plain.txt", "x")

	n := &Node{ov: ov, virtualPath: "/plain.txt"}
	fh, _, errno := n.Open(context.Background(), unix.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)
	defer n.Release(context.Background(), fh)

	lk := &fuse.FileLock{Start: 0, End: 10, Typ: unix.F_WRLCK}
	require.Equal(t, syscall.Errno(0), n.Setlk(context.Background(), fh, 1, lk, 0))

	var out fuse.FileLock
	require.Equal(t, syscall.Errno(0), n.Getlk(context.Background(), fh, 1, lk, 0, &out))
}
