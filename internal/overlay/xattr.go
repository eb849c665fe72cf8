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

	"github.com/pkg/xattr"
)

// Extended attributes pass straight through to the lower tree unconditionally
// for every node, template-backed or not (spec.md 4.E's operations table
// lists no xattr gating).

func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	full := filepath.Join(n.ov.Mount.Path, n.rel())
	v, err := xattr.LGet(full, attr)
	if err != nil {
		return 0, fuseErrno(xattrErr(err))
	}
	if len(dest) < len(v) {
		return uint32(len(v)), syscall.ERANGE
	}
	copy(dest, v)
	return uint32(len(v)), 0
}

func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	full := filepath.Join(n.ov.Mount.Path, n.rel())
	if err := xattr.LSet(full, attr, data); err != nil {
		return fuseErrno(xattrErr(err))
	}
	return 0
}

func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	full := filepath.Join(n.ov.Mount.Path, n.rel())
	if err := xattr.LRemove(full, attr); err != nil {
		return fuseErrno(xattrErr(err))
	}
	return 0
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	full := filepath.Join(n.ov.Mount.Path, n.rel())
	names, err := xattr.LList(full)
	if err != nil {
		return 0, fuseErrno(xattrErr(err))
	}

	var total int
	for _, name := range names {
		total += len(name) + 1
	}
	if len(dest) < total {
		return uint32(total), syscall.ERANGE
	}
	off := 0
	for _, name := range names {
		off += copy(dest[off:], name)
		dest[off] = 0
		off++
	}
	return uint32(total), 0
}

// xattrErr unwraps the *xattr.Error the library wraps every errno in, so
// fuseErrno's type switch on unix.Errno still works.
func xattrErr(err error) error {
	if xe, ok := err.(*xattr.Error); ok {
		return xe.Err
	}
	return err
}
