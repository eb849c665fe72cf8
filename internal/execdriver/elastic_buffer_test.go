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

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElasticBufferFillWithinCapacity(t *testing.T) {
	b := NewElasticBuffer(16, 4)
	r := strings.NewReader("hello")

	n, err := b.Fill(r.Read)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(b.Bytes()))
	assert.Equal(t, 5, b.Len())
}

func TestElasticBufferGrowsToPreserveHeadroom(t *testing.T) {
	b := NewElasticBuffer(4, 4)

	// Each Fill call only reads two bytes at a time, so the 10 bytes in total
	// outgrow the 4-byte initial allocation and the buffer must regrow to
	// restore its headroom.
	chunks := []string{"01", "23", "45", "67", "89"}
	for _, chunk := range chunks {
		n, err := b.Fill(func(p []byte) (int, error) { return copy(p, chunk), nil })
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}

	assert.Equal(t, "0123456789", string(b.Bytes()))
}

func TestElasticBufferZeroByteRead(t *testing.T) {
	b := NewElasticBuffer(8, 4)
	n, err := b.Fill(func(p []byte) (int, error) { return 0, io.EOF })
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestElasticBufferMultipleFillsAccumulate(t *testing.T) {
	b := NewElasticBuffer(8, 2)
	n1, err := b.Fill(func(p []byte) (int, error) { return copy(p, "abc"), nil })
	require.NoError(t, err)
	assert.Equal(t, 3, n1)

	n2, err := b.Fill(func(p []byte) (int, error) { return copy(p, "de"), nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n2)

	assert.Equal(t, "abcde", string(b.Bytes()))
}
