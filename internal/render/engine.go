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

package render

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/paul-chambers/templatefs/internal/configstore"
)

const (
	errEFAULT        = unix.EFAULT
	errEADDRNOTAVAIL = unix.EADDRNOTAVAIL
	errEKEYREJECTED  = unix.EKEYREJECTED
	errEINVAL        = unix.EINVAL

	// errTooDeep is the engine's reserved "too deep" code for a pop attempted
	// on an empty stack — a programming error, not a system error, so it is
	// kept out of the negative-errno range.
	errTooDeep = -1000
)

func top(c *Context) *Section {
	return &c.stack[len(c.stack)-1]
}

// Sel selects a key by name on the current section. A name with no
// namespace prefix (no colon before the first slash, and not itself
// absolute) is append mode: the current section's key is refreshed from the
// parent section's selection first — so that, mid-array-iteration, appends
// land beneath the array index rather than a stale sibling — then name is
// appended as a base-name component. Any other name is replace mode: the
// current selection is replaced outright.
func Sel(c *Context, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec := top(c)

	if isNamespaced(name) {
		sec.Selection = configstore.Key(name)
		sec.IsArray = false
		sec.HasArrayBase = false
	} else {
		if len(c.stack) >= 2 {
			sec.Selection = c.stack[len(c.stack)-2].Selection
		} else {
			sec.Selection = c.root
		}
		sec.Selection = configstore.Key(string(sec.Selection) + "/" + name)
		sec.IsArray = false
		sec.HasArrayBase = false
	}

	return updateSelection(c, sec)
}

// isNamespaced reports whether name carries a colon before its first slash
// (an absolute/namespaced reference) or starts with a slash outright.
func isNamespaced(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	slash := strings.IndexByte(name, '/')
	colon := strings.IndexByte(name, ':')
	return colon >= 0 && (slash < 0 || colon < slash)
}

// updateSelection looks sec's selection up in the key-set; if it carries the
// array meta-attribute, it marks sec as an array section, records the
// array-base key, locates the base's cursor position, and advances to the
// first direct child.
func updateSelection(c *Context, sec *Section) int {
	if !c.keys.Has(sec.Selection) {
		return 0
	}

	if c.keys.IsArray(sec.Selection) {
		sec.IsArray = true
		sec.ArrayBase = sec.Selection
		sec.HasArrayBase = true

		idx, ok := c.keys.IndexOf(sec.Selection)
		if !ok {
			return -int(errEKEYREJECTED)
		}
		sec.Cursor = idx
		selectNextArrayKey(c, sec)
	}

	return 1
}

// selectNextArrayKey advances sec's cursor to the next key-set entry that is
// a direct child of sec's array-base, stopping once the cursor moves past
// the base's last direct child. Returns 1 when an element was activated, 0
// when the array is exhausted.
func selectNextArrayKey(c *Context, sec *Section) int {
	for {
		sec.Cursor++
		cand, ok := c.keys.At(sec.Cursor)
		if !ok {
			return 0
		}
		if configstore.IsDirectChild(cand, sec.ArrayBase) {
			sec.Selection = cand
			return 1
		}
		if string(cand) > string(sec.ArrayBase) && !strings.HasPrefix(string(cand), string(sec.ArrayBase)+"/") {
			return 0
		}
	}
}

// Enter pushes a new section copying the parent's selection, array state,
// and cursor, preserving outer array state across nested arrays via stack
// discipline.
func Enter(c *Context, iterDepth int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	child := top(c)
	copy := *child
	copy.Depth = iterDepth
	c.stack = append(c.stack, copy)
	return 1
}

// Leave pops the current section. Popping the last remaining section is a
// programming error (the context itself must be torn down via Stop
// instead), surfaced as the engine's "too deep" code.
func Leave(c *Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.stack) <= 1 {
		return errTooDeep
	}
	c.stack = c.stack[:len(c.stack)-1]
	return 1
}

// Next advances the nearest enclosing array section's cursor. spec.md 9
// notes the source is ambiguous about whether "enclosing" means the
// top-of-stack or its parent; we search from the top of the stack downward,
// inclusive of the current top, and advance the first section found with
// IsArray set — preserving the "nearest enclosing array section"
// interpretation the design notes ask us to keep, with a dedicated test for
// nested arrays (see engine_test.go).
func Next(c *Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].IsArray {
			return selectNextArrayKey(c, &c.stack[i])
		}
	}
	return 0
}

// TopIsArray reports whether the current section is mid-array-iteration,
// letting a caller like internal/expand distinguish "render this section's
// body once" from "loop it over the array via Next".
func TopIsArray(c *Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return top(c).IsArray
}

// Subsel is reserved; this implementation returns 0 ("absent"), matching
// spec.md 4.C's explicit acknowledgment that the feature is out of scope for
// initial conformance. The name argument is parsed but unused, leaving a
// seam for the extension spec.md 9 anticipates.
func Subsel(c *Context, name string) int {
	_ = name
	return 0
}

// Compare is reserved; returns 0.
func Compare(c *Context, value string) int {
	_ = value
	return 0
}

// Get materializes the current selection's value (kind == 0) or its full key
// name (kind != 0). Returns 1 when bytes were produced, 0 when not possible,
// or a negative errno for a value type get cannot format.
func Get(c *Context, kind int) (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec := top(c)
	if kind != 0 {
		return string(sec.Selection), 1
	}

	v, ok := c.keys.Value(sec.Selection)
	if !ok {
		return "", 0
	}
	s, ok := configstore.FormatValue(v)
	if !ok {
		return "", -int(errEINVAL)
	}
	return s, 1
}
