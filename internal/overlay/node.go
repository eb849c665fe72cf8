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
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/paul-chambers/templatefs/internal/anchor"
)

// Node is one tree node: a relative virtual path plus a pointer to the
// shared Overlay context. Nodes are discovered dynamically via Lookup, not
// built up-front, since the lower tree may change out from under us.
type Node struct {
	fs.Inode

	ov          *Overlay
	virtualPath string
}

var (
	_ fs.InodeEmbedder  = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeAccesser   = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
	_ fs.NodeOpendirer  = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeMknoder    = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeLinker     = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeReader     = (*Node)(nil)
	_ fs.NodeWriter     = (*Node)(nil)
	_ fs.NodeFlusher    = (*Node)(nil)
	_ fs.NodeFsyncer    = (*Node)(nil)
	_ fs.NodeReleaser   = (*Node)(nil)
	_ fs.NodeAllocater  = (*Node)(nil)
	_ fs.NodeCopyFileRanger = (*Node)(nil)
	_ fs.NodeLseeker    = (*Node)(nil)
	_ fs.NodeGetxattrer    = (*Node)(nil)
	_ fs.NodeSetxattrer    = (*Node)(nil)
	_ fs.NodeRemovexattrer = (*Node)(nil)
	_ fs.NodeListxattrer   = (*Node)(nil)
	_ fs.NodeGetlker       = (*Node)(nil)
	_ fs.NodeSetlker       = (*Node)(nil)
	_ fs.NodeSetlkwer      = (*Node)(nil)
)

func (n *Node) child(name string) *Node {
	childPath := n.virtualPath
	if childPath == "/" {
		childPath = ""
	}
	return &Node{ov: n.ov, virtualPath: childPath + "/" + name}
}

func (n *Node) rel() string {
	return anchor.Rel(n.virtualPath)
}

// templateState reports whether n's path has a matching template entry and,
// if so, whether that entry carries the executable bit — spec.md 4.E's
// "template gating", reused by open, getattr and Lookup alike.
func (n *Node) templateState() (isTemplate, isExecutable bool) {
	rel := n.rel()
	if n.ov.Templates.Faccessat(rel, unix.R_OK) == nil {
		isTemplate = true
		isExecutable = n.ov.Templates.Faccessat(rel, unix.X_OK) == nil
	}
	return
}

// Lookup resolves name against the lower tree only; the template tree never
// introduces entries of its own (spec.md's acknowledged non-goal of merging
// directory listings). Metadata on a match still honors the template
// gating, same as Getattr.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	st, err := n.ov.Mount.Fstatat(child.rel(), unix.AT_SYMLINK_NOFOLLOW)
	if err != nil {
		return nil, fuseErrno(err)
	}

	errno := fillAttr(child, st, &out.Attr)
	if errno != 0 {
		return nil, errno
	}

	stable := fs.StableAttr{
		Mode: uint32(st.Mode) &^ 0o777000 | (uint32(st.Mode) & syscall.S_IFMT),
		Ino:  st.Ino,
	}
	inode := n.NewInode(ctx, child, stable)
	return inode, 0
}

// Getattr stats the template file when one is present for this path,
// clearing its write bits (and, for non-directories, its execute bits), and
// overwriting the reported size with the cache length once a handle has
// rendered it. Otherwise it stats straight through to the mount anchor.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	rel := n.rel()
	isTemplate, _ := n.templateState()

	var st unix.Stat_t
	var err error
	if isTemplate {
		st, err = n.ov.Templates.Fstatat(rel, unix.AT_SYMLINK_NOFOLLOW)
	} else {
		st, err = n.ov.Mount.Fstatat(rel, unix.AT_SYMLINK_NOFOLLOW)
	}
	if err != nil {
		return fuseErrno(err)
	}

	errno := fillAttr(n, st, &out.Attr)
	if errno != 0 {
		return errno
	}

	if of, ok := f.(*openFile); ok {
		if fh, err := n.ov.Handles.GetFile(of.token); err == nil && fh.IsTemplate && fh.Cache != nil {
			out.Attr.Size = uint64(len(fh.Cache))
		}
	}
	return 0
}

// fillAttr translates a raw unix.Stat_t into fuse.Attr, applying the
// template mode-bit stripping described in spec.md's operations table when n
// is template-backed.
func fillAttr(n *Node, st unix.Stat_t, out *fuse.Attr) syscall.Errno {
	out.Ino = st.Ino
	out.Size = uint64(st.Size)
	out.Blocks = uint64(st.Blocks)
	out.Atime = uint64(st.Atim.Sec)
	out.Atimensec = uint32(st.Atim.Nsec)
	out.Mtime = uint64(st.Mtim.Sec)
	out.Mtimensec = uint32(st.Mtim.Nsec)
	out.Ctime = uint64(st.Ctim.Sec)
	out.Ctimensec = uint32(st.Ctim.Nsec)
	out.Mode = st.Mode
	out.Nlink = uint32(st.Nlink)
	out.Uid = st.Uid
	out.Gid = st.Gid

	isTemplate, _ := n.templateState()
	if isTemplate {
		out.Mode &^= 0o222 // no write bits
		if out.Mode&syscall.S_IFDIR == 0 {
			out.Mode &^= 0o111 // no execute bits, unless a directory
		}
	}
	return 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	isTemplate, _ := n.templateState()
	if isTemplate {
		return syscall.EPERM
	}

	rel := n.rel()
	if mode, ok := in.GetMode(); ok {
		if err := n.ov.Mount.Fchmodat(rel, mode); err != nil {
			return fuseErrno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		fd, err := n.ov.Mount.Openat(rel, unix.O_WRONLY, 0)
		if err != nil {
			return fuseErrno(err)
		}
		err = unix.Ftruncate(fd, int64(size))
		unix.Close(fd)
		if err != nil {
			return fuseErrno(err)
		}
	}
	uid, uidOK := in.GetUID()
	gid, gidOK := in.GetGID()
	if uidOK || gidOK {
		// -1 leaves the corresponding field unchanged (fchownat(2)).
		newUID, newGID := -1, -1
		if uidOK {
			newUID = int(uid)
		}
		if gidOK {
			newGID = int(gid)
		}
		if err := n.ov.Mount.Fchownat(rel, newUID, newGID); err != nil {
			return fuseErrno(err)
		}
	}

	st, err := n.ov.Mount.Fstatat(rel, unix.AT_SYMLINK_NOFOLLOW)
	if err != nil {
		return fuseErrno(err)
	}
	return fillAttr(n, st, &out.Attr)
}

func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	if err := n.ov.Mount.Faccessat(n.rel(), mask); err != nil {
		return fuseErrno(err)
	}
	return 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st, err := n.ov.Mount.Statfsat(".")
	if err != nil {
		return fuseErrno(err)
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = uint32(st.Bsize)
	out.NameLen = uint32(st.Namelen)
	out.Frsize = uint32(st.Frsize)
	return 0
}

// fuseErrno maps an anchor-level system error to the syscall.Errno type
// go-fuse requires, formalizing spec.md's fixup(r) = r == -1 ? -errno : r.
func fuseErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	// unix.Errno is an alias of syscall.Errno, so one case covers both.
	switch e := err.(type) {
	case syscall.Errno:
		return e
	default:
		return syscall.EIO
	}
}

func basename(virtualPath string) string {
	return path.Base(virtualPath)
}
