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

package execdriver

// ElasticBuffer is a growable byte vector with the invariant that, after
// every mutation, remaining() >= headroom — restored by geometric growth
// (remaining += headroom*2) whenever a read would violate it. Growth happens
// before each read rather than after, so a single small read never triggers
// a reallocation it didn't need.
type ElasticBuffer struct {
	data     []byte
	used     int
	headroom int
}

// NewElasticBuffer allocates initial bytes of capacity with the given
// headroom.
func NewElasticBuffer(initial, headroom int) *ElasticBuffer {
	return &ElasticBuffer{data: make([]byte, initial), headroom: headroom}
}

func (b *ElasticBuffer) remaining() int {
	return len(b.data) - b.used
}

func (b *ElasticBuffer) ensureHeadroom() {
	for b.remaining() < b.headroom {
		grown := make([]byte, len(b.data)+b.headroom*2)
		copy(grown, b.data[:b.used])
		b.data = grown
	}
}

// Fill invokes read with a slice covering the buffer's current remaining
// capacity (after restoring the headroom invariant), and advances used by
// however many bytes read produced.
func (b *ElasticBuffer) Fill(read func(p []byte) (int, error)) (int, error) {
	b.ensureHeadroom()
	n, err := read(b.data[b.used:])
	b.used += n
	return n, err
}

// Bytes returns the buffer's populated prefix.
func (b *ElasticBuffer) Bytes() []byte {
	return b.data[:b.used]
}

// Len reports how many bytes have been filled so far.
func (b *ElasticBuffer) Len() int {
	return b.used
}
