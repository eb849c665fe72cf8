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

package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFileAndGet(t *testing.T) {
	s := NewStore()
	tok := s.AllocateFile(&FileHandle{VirtualPath: "/a", Fd: 3})

	fh, err := s.GetFile(tok)
	require.NoError(t, err)
	assert.Equal(t, "/a", fh.VirtualPath)
	assert.Equal(t, 3, fh.Fd)
	assert.Equal(t, 1, s.Len())
}

func TestAllocateDirAndGet(t *testing.T) {
	s := NewStore()
	tok := s.AllocateDir(&DirHandle{VirtualPath: "/d"})

	dh, err := s.GetDir(tok)
	require.NoError(t, err)
	assert.Equal(t, "/d", dh.VirtualPath)
}

func TestGetFileWrongKindReturnsENFILE(t *testing.T) {
	s := NewStore()
	tok := s.AllocateDir(&DirHandle{VirtualPath: "/d"})

	_, err := s.GetFile(tok)
	assert.Error(t, err)
}

func TestGetDirWrongKindReturnsENOTDIR(t *testing.T) {
	s := NewStore()
	tok := s.AllocateFile(&FileHandle{VirtualPath: "/a"})

	_, err := s.GetDir(tok)
	assert.Error(t, err)
}

func TestGetUnknownTokenErrors(t *testing.T) {
	s := NewStore()
	_, err := s.GetFile(Token(999))
	assert.Error(t, err)
}

func TestReleaseClearsCacheAndFreesToken(t *testing.T) {
	s := NewStore()
	tok := s.AllocateFile(&FileHandle{VirtualPath: "/a", Cache: []byte("rendered")})
	require.Equal(t, 1, s.Len())

	s.Release(tok)

	assert.Equal(t, 0, s.Len())
	_, err := s.GetFile(tok)
	assert.Error(t, err)
}

func TestTokensAreDistinct(t *testing.T) {
	s := NewStore()
	t1 := s.AllocateFile(&FileHandle{VirtualPath: "/a"})
	t2 := s.AllocateFile(&FileHandle{VirtualPath: "/b"})
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, 2, s.Len())
}
