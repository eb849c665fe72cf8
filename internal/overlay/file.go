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
	"path/filepath"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/paul-chambers/templatefs/internal/execdriver"
	"github.com/paul-chambers/templatefs/internal/expand"
	"github.com/paul-chambers/templatefs/internal/handle"
	"github.com/paul-chambers/templatefs/internal/metrics"
)

// openFile is the go-fuse FileHandle our Node methods receive back; it only
// carries the token into our own handle store, which is where the real
// per-open state (descriptor, template flags, cache) lives, matching
// spec.md's tagged-union Handle design rather than go-fuse's usual
// handle-is-the-state convention.
type openFile struct {
	token handle.Token
}

// Open decides the template branch per spec.md 4.E: a matching, readable
// template entry is rendered (via the string-expansion engine, or, if it
// also carries the executable bit, by running it as a subprocess) and the
// result cached in the handle; otherwise the lower-tree file is opened
// directly. Open does not return until the cache is fully populated, so a
// subsequent Read is guaranteed to see complete contents (spec.md 5).
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	rel := n.rel()
	isTemplate, isExecutable := n.templateState()

	if !isTemplate {
		fd, err := n.ov.Mount.Openat(rel, int(flags), 0)
		if err != nil {
			metrics.OpensTotal.WithLabelValues("pass_through").Inc()
			return nil, 0, fuseErrno(err)
		}
		metrics.OpensTotal.WithLabelValues("pass_through").Inc()
		fh := &handle.FileHandle{VirtualPath: n.virtualPath, Fd: fd}
		tok := n.ov.Handles.AllocateFile(fh)
		metrics.HandlesOpen.Set(float64(n.ov.Handles.Len()))
		return &openFile{token: tok}, 0, 0
	}

	fd, err := n.ov.Templates.Openat(rel, unix.O_RDONLY, 0)
	if err != nil {
		metrics.OpensTotal.WithLabelValues("template").Inc()
		return nil, 0, fuseErrno(err)
	}

	var (
		cache []byte
		errno syscall.Errno
	)
	start := n.ov.Clock.Now()
	if isExecutable {
		templatePath := filepath.Join(n.ov.Templates.Path, rel)
		lowerPath := filepath.Join(n.ov.Mount.Path, rel)
		out, rc := execdriver.Execute(templatePath, lowerPath)
		metrics.ExecTemplateDurationSeconds.Observe(n.ov.Clock.Now().Sub(start).Seconds())
		if rc != 1 {
			unix.Close(fd)
			metrics.TemplateRendersTotal.WithLabelValues("failure").Inc()
			return nil, 0, syscall.Errno(-rc)
		}
		cache = out
	} else {
		out, rc := expand.ProcessTemplate(n.ov.Templates, rel, n.ov.Config)
		metrics.TemplateRenderSeconds.Observe(n.ov.Clock.Now().Sub(start).Seconds())
		if rc != 1 {
			unix.Close(fd)
			metrics.TemplateRendersTotal.WithLabelValues("failure").Inc()
			return nil, 0, syscall.Errno(-rc)
		}
		cache = out
	}
	metrics.TemplateRendersTotal.WithLabelValues("success").Inc()

	variant := "template"
	if isExecutable {
		variant = "executable_template"
	}
	metrics.OpensTotal.WithLabelValues(variant).Inc()

	fh := &handle.FileHandle{
		VirtualPath:          n.virtualPath,
		Fd:                   fd,
		IsTemplate:           true,
		IsExecutableTemplate: isExecutable,
		Cache:                cache,
	}
	tok := n.ov.Handles.AllocateFile(fh)
	metrics.HandlesOpen.Set(float64(n.ov.Handles.Len()))
	return &openFile{token: tok}, 0, errno
}

func (n *Node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child := n.child(name)
	fd, err := n.ov.Mount.Openat(child.rel(), int(flags)|unix.O_CREAT|unix.O_EXCL, mode)
	if err != nil {
		return nil, nil, 0, fuseErrno(err)
	}

	inode, errno := n.lookupChildInode(ctx, child, out)
	if errno != 0 {
		unix.Close(fd)
		return nil, nil, 0, errno
	}

	fh := &handle.FileHandle{VirtualPath: child.virtualPath, Fd: fd}
	tok := n.ov.Handles.AllocateFile(fh)
	metrics.HandlesOpen.Set(float64(n.ov.Handles.Len()))
	metrics.OpensTotal.WithLabelValues("pass_through").Inc()
	return inode, &openFile{token: tok}, 0, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	of, ok := f.(*openFile)
	if !ok {
		return nil, syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err != nil {
		return nil, fuseErrno(err)
	}

	if fh.IsTemplate {
		if off >= int64(len(fh.Cache)) {
			return fuse.ReadResultData(nil), 0
		}
		end := off + int64(len(dest))
		if end > int64(len(fh.Cache)) {
			end = int64(len(fh.Cache))
		}
		return fuse.ReadResultData(fh.Cache[off:end]), 0
	}

	n2, err := unix.Pread(fh.Fd, dest, off)
	if err != nil {
		return nil, fuseErrno(err)
	}
	return fuse.ReadResultData(dest[:n2]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	of, ok := f.(*openFile)
	if !ok {
		return 0, syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err != nil {
		return 0, fuseErrno(err)
	}
	if fh.IsTemplate {
		return 0, syscall.EPERM
	}

	written, err := unix.Pwrite(fh.Fd, data, off)
	if err != nil {
		return 0, fuseErrno(err)
	}
	return uint32(written), 0
}

func (n *Node) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno {
	of, ok := f.(*openFile)
	if !ok {
		return syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err != nil {
		return fuseErrno(err)
	}
	if fh.IsTemplate {
		return 0 // no-op, per spec.md 4.E
	}

	// Dup-and-close trick: flush has no direct syscall equivalent, so the
	// usual way to force any buffered kernel state for this descriptor to
	// be flushed is to duplicate and immediately close the duplicate.
	dup, err := unix.Dup(fh.Fd)
	if err != nil {
		return fuseErrno(err)
	}
	if err := unix.Close(dup); err != nil {
		return fuseErrno(err)
	}
	return 0
}

func (n *Node) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	of, ok := f.(*openFile)
	if !ok {
		return syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err != nil {
		return fuseErrno(err)
	}
	if err := unix.Fsync(fh.Fd); err != nil {
		return fuseErrno(err)
	}
	return 0
}

func (n *Node) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	of, ok := f.(*openFile)
	if !ok {
		return syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err == nil {
		unix.Close(fh.Fd)
	}
	n.ov.Handles.Release(of.token)
	metrics.HandlesOpen.Set(float64(n.ov.Handles.Len()))
	return 0
}

func (n *Node) Allocate(ctx context.Context, f fs.FileHandle, off, size uint64, mode uint32) syscall.Errno {
	of, ok := f.(*openFile)
	if !ok {
		return syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err != nil {
		return fuseErrno(err)
	}
	if fh.IsTemplate {
		return syscall.EPERM
	}
	if err := unix.Fallocate(fh.Fd, mode, int64(off), int64(size)); err != nil {
		return fuseErrno(err)
	}
	return 0
}

func (n *Node) CopyFileRange(ctx context.Context, fhIn fs.FileHandle, offIn uint64, out *fs.Inode, fhOut fs.FileHandle, offOut uint64, length uint64, flags uint64) (uint32, syscall.Errno) {
	src, ok := fhIn.(*openFile)
	if !ok {
		return 0, syscall.EBADF
	}
	dst, ok := fhOut.(*openFile)
	if !ok {
		return 0, syscall.EBADF
	}
	srcFh, err := n.ov.Handles.GetFile(src.token)
	if err != nil {
		return 0, fuseErrno(err)
	}
	dstFh, err := n.ov.Handles.GetFile(dst.token)
	if err != nil {
		return 0, fuseErrno(err)
	}
	if srcFh.IsTemplate || dstFh.IsTemplate {
		return 0, syscall.EPERM
	}

	si := int64(offIn)
	di := int64(offOut)
	written, err := unix.CopyFileRange(srcFh.Fd, &si, dstFh.Fd, &di, int(length), int(flags))
	if err != nil {
		return 0, fuseErrno(err)
	}
	return uint32(written), 0
}

func (n *Node) Lseek(ctx context.Context, f fs.FileHandle, off uint64, whence uint32) (uint64, syscall.Errno) {
	of, ok := f.(*openFile)
	if !ok {
		return 0, syscall.EBADF
	}
	fh, err := n.ov.Handles.GetFile(of.token)
	if err != nil {
		return 0, fuseErrno(err)
	}
	if fh.IsTemplate {
		// Templates are not seekable through the handle (spec.md 4.E).
		return 0, syscall.ENFILE
	}

	newOff, err := unix.Seek(fh.Fd, int64(off), int(whence))
	if err != nil {
		return 0, fuseErrno(err)
	}
	return uint64(newOff), 0
}
