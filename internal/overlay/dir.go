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
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/paul-chambers/templatefs/internal/handle"
	"github.com/paul-chambers/templatefs/internal/metrics"
)

// dirStream adapts a handle.DirHandle's cached entry batch to go-fuse's
// fs.DirStream, re-reading a fresh batch from the stream whenever it is
// exhausted. The directory tree itself is never merged with the template
// tree (spec.md's acknowledged non-goal); entries come from the mount anchor
// only.
type dirStream struct {
	ov    *Overlay
	dh    *handle.DirHandle
	token handle.Token
	pos   int
}

func (d *dirStream) HasNext() bool {
	if d.pos < len(d.dh.Entries) {
		return true
	}
	more, err := d.dh.Stream.ReadDir(64)
	if err != nil || len(more) == 0 {
		return false
	}
	d.dh.Entries = more
	d.pos = 0
	return true
}

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.dh.Entries[d.pos]
	d.pos++
	d.dh.Offset++

	var mode uint32
	if info, err := e.Info(); err == nil {
		mode = uint32(info.Mode())
	}
	return fuse.DirEntry{Name: e.Name(), Mode: mode}, 0
}

func (d *dirStream) Close() {
	d.dh.Stream.Close()
	d.ov.Handles.Release(d.token)
	metrics.HandlesOpen.Set(float64(d.ov.Handles.Len()))
}

// Opendir is a pure permission/sanity check; the actual stream is opened in
// Readdir (go-fuse drives directory reads from there, not from Opendir).
func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	return n.Access(ctx, unix.R_OK)
}

// Readdir opens the directory stream. "/" is special-cased per spec.md 4.A
// by duplicating the anchor descriptor itself rather than opening a path
// beneath it. The returned stream is registered in the handle store purely
// for leak accounting (spec.md 8's "no descriptor ... leaks" property);
// go-fuse itself treats the fs.DirStream as the per-open state.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	rel := n.rel()
	var f *os.File
	if n.virtualPath == "/" {
		dup, err := n.ov.Mount.OpendirSelf()
		if err != nil {
			return nil, fuseErrno(err)
		}
		f = dup
	} else {
		fd, err := n.ov.Mount.Openat(rel, unix.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			return nil, fuseErrno(err)
		}
		f = os.NewFile(uintptr(fd), n.virtualPath)
	}

	dh := &handle.DirHandle{VirtualPath: n.virtualPath, Stream: f}
	tok := n.ov.Handles.AllocateDir(dh)
	metrics.HandlesOpen.Set(float64(n.ov.Handles.Len()))
	return &dirStream{ov: n.ov, dh: dh, token: tok}, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	if err := n.ov.Mount.Mkdirat(child.rel(), mode); err != nil {
		return nil, fuseErrno(err)
	}
	return n.lookupChildInode(ctx, child, out)
}

func (n *Node) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	if err := n.ov.Mount.Mknodat(child.rel(), mode, int(dev)); err != nil {
		return nil, fuseErrno(err)
	}
	return n.lookupChildInode(ctx, child, out)
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	child := n.child(name)
	if err := n.ov.Mount.Unlinkat(child.rel(), unix.AT_REMOVEDIR); err != nil {
		return fuseErrno(err)
	}
	return 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	child := n.child(name)
	if err := n.ov.Mount.Unlinkat(child.rel(), 0); err != nil {
		return fuseErrno(err)
	}
	return 0
}

// Rename honors rename flags via the extended rename syscall; unsupported
// flag combinations surface as EINVAL rather than being silently dropped
// (spec.md 8's boundary behavior for renameat).
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	oldChild := n.child(name)
	newChild := newNode.child(newName)

	if err := n.ov.Mount.Renameat2(oldChild.rel(), n.ov.Mount, newChild.rel(), uint(flags)); err != nil {
		return fuseErrno(err)
	}
	return 0
}

func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	if err := n.ov.Mount.Symlinkat(target, child.rel()); err != nil {
		return nil, fuseErrno(err)
	}
	return n.lookupChildInode(ctx, child, out)
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	buf := make([]byte, 4096)
	m, err := n.ov.Mount.Readlinkat(n.rel(), buf)
	if err != nil {
		return nil, fuseErrno(err)
	}
	return buf[:m], 0
}

func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	targetNode, ok := target.(*Node)
	if !ok {
		return nil, syscall.EINVAL
	}
	child := n.child(name)
	if err := n.ov.Mount.Linkat(targetNode.rel(), child.rel(), 0); err != nil {
		return nil, fuseErrno(err)
	}
	return n.lookupChildInode(ctx, child, out)
}

// lookupChildInode stats a freshly-created child and builds its Inode,
// shared by Mkdir/Mknod/Symlink/Link which all return a *fs.Inode for the
// newly created entry.
func (n *Node) lookupChildInode(ctx context.Context, child *Node, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	st, err := n.ov.Mount.Fstatat(child.rel(), unix.AT_SYMLINK_NOFOLLOW)
	if err != nil {
		return nil, fuseErrno(err)
	}
	if errno := fillAttr(child, st, &out.Attr); errno != 0 {
		return nil, errno
	}
	stable := fs.StableAttr{Mode: uint32(st.Mode) & syscall.S_IFMT, Ino: st.Ino}
	return n.NewInode(ctx, child, stable), 0
}
