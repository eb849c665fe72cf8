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

// Package render implements the callback contract the string-expansion
// engine drives: a section stack over a configuration-store key-set,
// supporting nested iteration over array-shaped keys. internal/expand's
// tokenizer is the only caller of this contract.
package render

import (
	"github.com/jacobsa/syncutil"

	"github.com/paul-chambers/templatefs/internal/configstore"
)

// Section is one frame of the navigation stack: the currently-selected key,
// and, if this frame is iterating an array, the array's base key and the
// cursor into the key-set.
type Section struct {
	Selection    configstore.Key
	ArrayBase    configstore.Key
	HasArrayBase bool
	Cursor       int
	IsArray      bool
	Depth        int
}

// Context is owned per invocation of the render engine: created at Start,
// destroyed at Stop.
type Context struct {
	store *configstore.Store
	keys  *configstore.KeySet
	root  configstore.Key

	mu    syncutil.InvariantMutex
	stack []Section
}

// checkInvariants enforces "the section stack is non-empty between start
// and stop" (spec.md 8). Start and Stop manipulate c.stack directly, outside
// c.mu, during the two instants where the stack is legitimately empty (before
// the first push, after the last pop); every other mutation goes through
// c.mu so this check runs on every Unlock.
func (c *Context) checkInvariants() {
	if len(c.stack) == 0 {
		panic("render: section stack is empty outside start/stop")
	}
}

// Start pushes the initial section (selection = root key, depth -1, not an
// array) and returns engine OK (1), or a negative errno if the configuration
// store could not be opened or its key-set could not be allocated.
func Start(store *configstore.Store) (*Context, int) {
	keys, err := store.Snapshot()
	if err != nil {
		return nil, -int(errEFAULT)
	}
	if keys == nil {
		return nil, -int(errEADDRNOTAVAIL)
	}

	c := &Context{store: store, keys: keys, root: configstore.RootKey}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.stack = []Section{{Selection: c.root, Depth: -1}}
	return c, 1
}

// Stop pops the top (and, in a well-formed render, only remaining) section
// and tears down the context.
func Stop(c *Context, status int) int {
	if len(c.stack) == 0 {
		return errTooDeep
	}
	c.stack = c.stack[:len(c.stack)-1]
	return 1
}
