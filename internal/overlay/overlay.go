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

// Package overlay is the filesystem operations surface: the full POSIX-shaped
// callback table the kernel invokes, routing each call to pass-through
// (against the mount anchor) or to a synthesized-contents path (the render
// engine or the executable-template driver) based on whether a matching
// entry exists in the template tree.
package overlay

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/jacobsa/timeutil"

	"github.com/paul-chambers/templatefs/internal/anchor"
	"github.com/paul-chambers/templatefs/internal/configstore"
	"github.com/paul-chambers/templatefs/internal/handle"
)

// Overlay is the shared, read-only-after-init context every Node carries a
// pointer to: the two tree anchors, the handle store, the configuration
// store connection, and the clock used to time template renders. Per
// spec.md 5, these are effectively immutable once mount completes, so no
// additional locking is needed beyond what internal/handle and
// internal/configstore already do internally.
type Overlay struct {
	Mount     *anchor.TreeAnchor
	Templates *anchor.TreeAnchor
	Handles   *handle.Store
	Config    *configstore.Store
	Clock     timeutil.Clock
}

// New resolves both tree anchors and opens the configuration store. Either
// anchor failing to resolve is a fatal startup condition (exit code 2 at the
// cmd/ layer).
func New(mountPath, templatesPath, configPath string) (*Overlay, error) {
	mountAnchor, err := anchor.Setup(mountPath)
	if err != nil {
		return nil, err
	}
	templatesAnchor, err := anchor.Setup(templatesPath)
	if err != nil {
		mountAnchor.Close()
		return nil, err
	}
	store, err := configstore.Open(configPath)
	if err != nil {
		mountAnchor.Close()
		templatesAnchor.Close()
		return nil, err
	}

	return &Overlay{
		Mount:     mountAnchor,
		Templates: templatesAnchor,
		Handles:   handle.NewStore(),
		Config:    store,
		Clock:     timeutil.RealClock(),
	}, nil
}

// Close tears down both tree anchors. Called once at unmount.
func (o *Overlay) Close() error {
	templatesErr := o.Templates.Close()
	mountErr := o.Mount.Close()
	if mountErr != nil {
		return mountErr
	}
	return templatesErr
}

// Root returns the tree root Node, ready to pass to fs.Mount.
func (o *Overlay) Root() fs.InodeEmbedder {
	return &Node{ov: o, virtualPath: "/"}
}

// MountOptions builds the go-fuse Options this filesystem requires: inode
// numbers supplied by this layer (so hardlink semantics and lower-tree
// changes are honored), and every caching timeout zeroed so changes to the
// lower tree are picked up immediately (spec.md 4.E's init contract).
func MountOptions(fsName string, debug bool) *fs.Options {
	zero := time.Duration(0)
	return &fs.Options{
		EntryTimeout:    &zero,
		AttrTimeout:     &zero,
		NegativeTimeout: &zero,
		NullPermissions: true,
		MountOptions: fuse.MountOptions{
			FsName: fsName,
			Name:   "templatefs",
			Debug:  debug,
		},
	}
}

// Mount mounts the overlay at mountpoint and begins serving requests. The
// caller is responsible for calling server.Wait() (or server.Unmount() on
// signal) and, afterward, o.Close().
func Mount(o *Overlay, mountpoint string, opts *fs.Options) (*fuse.Server, error) {
	return fs.Mount(mountpoint, o.Root(), opts)
}
