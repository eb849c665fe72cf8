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

// Package configstore implements the hierarchical configuration store the
// render engine reads through: a viper-backed key/value tree namespaced
// under RootKey, with array-shaped branches marked by an "array" meta
// attribute and iterated in native key-name order.
package configstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// RootKey is the namespace every key-set is rooted at.
const RootKey Key = "system:/config"

// Key is an opaque key reference, represented as a "/"-joined path rooted at
// RootKey. Two Keys with the same string value refer to the same
// configuration entry.
type Key string

// Store owns the long-lived viper connection to the backing file. The
// connection itself persists across renders (re-opening the file handle
// every render would be wasteful) but Snapshot always re-reads the file
// before building a KeySet, which is what makes a configuration edit
// between two opens of the same template path visible to the second open.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// Open connects to the configuration file at path. An empty path is legal:
// the store then starts with an empty key-set and Snapshot is a no-op read.
func Open(path string) (*Store, error) {
	v := viper.New()
	s := &Store{v: v, path: path}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config store %q: %w", path, err)
		}
	}
	return s, nil
}

// Snapshot re-reads the backing file (if any) and builds a fresh, immutable
// KeySet. Called once per process_template invocation; spec.md's non-goal of
// "caching rendered output across opens" does not extend to the store
// connection itself, only to rendered bytes.
func (s *Store) Snapshot() (*KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := s.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("re-reading config store: %w", err)
		}
	}

	ks := &KeySet{nodes: make(map[Key]*node)}
	buildTree(RootKey, s.v.AllSettings(), ks)
	sort.Slice(ks.keys, func(i, j int) bool { return ks.keys[i] < ks.keys[j] })
	return ks, nil
}

type node struct {
	isArray  bool
	value    interface{}
	hasValue bool
}

// KeySet is an immutable, point-in-time snapshot of the configuration tree,
// pre-populated in full (spec.md 4.C: "pre-populates the key-set, empirically
// required to avoid spurious lookup errors").
type KeySet struct {
	keys  []Key
	nodes map[Key]*node
}

func buildTree(prefix Key, raw map[string]interface{}, ks *KeySet) {
	n := &node{}
	if v, ok := raw["array"]; ok {
		if b, ok := v.(bool); ok {
			n.isArray = b
		}
	}
	ks.nodes[prefix] = n
	ks.keys = append(ks.keys, prefix)

	// Deterministic traversal order; the KeySet itself is re-sorted by the
	// caller once the whole tree is built, so this ordering only affects
	// which duplicate wins (none, since keys are a map).
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "array" {
			continue
		}
		child := Key(string(prefix) + "/" + name)
		switch v := raw[name].(type) {
		case map[string]interface{}:
			buildTree(child, v, ks)
		default:
			ks.nodes[child] = &node{value: v, hasValue: true}
			ks.keys = append(ks.keys, child)
		}
	}
}

// Has reports whether key names a node in the snapshot.
func (ks *KeySet) Has(key Key) bool {
	_, ok := ks.nodes[key]
	return ok
}

// IsArray reports whether key's node carries the "array" meta attribute.
func (ks *KeySet) IsArray(key Key) bool {
	n, ok := ks.nodes[key]
	return ok && n.isArray
}

// Value returns key's materialized value and whether one is present.
func (ks *KeySet) Value(key Key) (interface{}, bool) {
	n, ok := ks.nodes[key]
	if !ok || !n.hasValue {
		return nil, false
	}
	return n.value, true
}

// IndexOf returns the position of key in the key-set's native (collated)
// order.
func (ks *KeySet) IndexOf(key Key) (int, bool) {
	i := sort.Search(len(ks.keys), func(i int) bool { return ks.keys[i] >= key })
	if i < len(ks.keys) && ks.keys[i] == key {
		return i, true
	}
	return 0, false
}

// At returns the key at position i in native order.
func (ks *KeySet) At(i int) (Key, bool) {
	if i < 0 || i >= len(ks.keys) {
		return "", false
	}
	return ks.keys[i], true
}

// Len returns the number of keys in the snapshot.
func (ks *KeySet) Len() int {
	return len(ks.keys)
}

// IsDirectChild reports whether candidate is exactly one path segment below
// base (no intermediate segments), the rule select_next_array_key uses to
// decide whether a candidate key belongs to the array it is iterating.
func IsDirectChild(candidate, base Key) bool {
	prefix := string(base) + "/"
	if !strings.HasPrefix(string(candidate), prefix) {
		return false
	}
	return !strings.Contains(strings.TrimPrefix(string(candidate), prefix), "/")
}

// FormatValue renders v the way get(kind==0) materializes a value: strings
// copy through unchanged, numeric and boolean values become their decimal
// text form (generalizing the source's "2 or 8 byte binary formatted as
// decimal short/long"). Any other type is rejected with
// EINVAL-shaped behavior, signaled by ok == false.
func FormatValue(v interface{}) (string, bool) {
	switch vv := v.(type) {
	case string:
		return vv, true
	case bool:
		if vv {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(vv), true
	case int64:
		return strconv.FormatInt(vv, 10), true
	case float64:
		if vv == float64(int64(vv)) {
			return strconv.FormatInt(int64(vv), 10), true
		}
		return strconv.FormatFloat(vv, 'f', -1, 64), true
	default:
		return "", false
	}
}
