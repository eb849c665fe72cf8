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

package anchor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRel(t *testing.T) {
	assert.Equal(t, ".", Rel("/"))
	assert.Equal(t, "foo", Rel("/foo"))
	assert.Equal(t, "foo/bar", Rel("/foo/bar"))
	assert.Equal(t, "foo/bar", Rel("foo/bar"))
}

func TestSetupMissingDir(t *testing.T) {
	_, err := Setup(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestSetupAndClose(t *testing.T) {
	dir := t.TempDir()
	a, err := Setup(dir)
	require.NoError(t, err)
	defer a.Close()

	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, real, a.Path)
	assert.Greater(t, a.Fd(), 0)
}

func TestOpenatAndFstatat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "child"), []byte("hello"), 0644))

	a, err := Setup(dir)
	require.NoError(t, err)
	defer a.Close()

	fd, err := a.Openat("child", unix.O_RDONLY, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	buf := make([]byte, 5)
	n, err := unix.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	st, err := a.Fstatat("child", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.Size)

	_, err = a.Fstatat("missing", 0)
	assert.Error(t, err)
}

func TestMkdiratRmdirUnlinkat(t *testing.T) {
	dir := t.TempDir()
	a, err := Setup(dir)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Mkdirat("subdir", 0755))
	info, err := os.Stat(filepath.Join(dir, "subdir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	fd, err := a.Openat("subdir/leaf", unix.O_CREAT|unix.O_WRONLY, 0644)
	require.NoError(t, err)
	unix.Close(fd)

	require.NoError(t, a.Unlinkat("subdir/leaf", 0))
	_, err = os.Stat(filepath.Join(dir, "subdir", "leaf"))
	assert.True(t, os.IsNotExist(err))
}

func TestFaccessat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readable"), []byte("x"), 0644))

	a, err := Setup(dir)
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.Faccessat("readable", unix.R_OK))
	assert.Error(t, a.Faccessat("missing", unix.R_OK))
}

func TestSymlinkatReadlinkat(t *testing.T) {
	dir := t.TempDir()
	a, err := Setup(dir)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Symlinkat("target", "link"))
	buf := make([]byte, 64)
	n, err := a.Readlinkat("link", buf)
	require.NoError(t, err)
	assert.Equal(t, "target", string(buf[:n]))
}

func TestFixup(t *testing.T) {
	assert.Equal(t, 5, Fixup(5, nil))
	assert.Equal(t, -int(unix.ENOENT), Fixup(-1, unix.ENOENT))
	assert.Equal(t, -int(unix.EIO), Fixup(-1, os.ErrClosed))
}

func TestOpendirSelf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0644))

	a, err := Setup(dir)
	require.NoError(t, err)
	defer a.Close()

	f, err := a.OpendirSelf()
	require.NoError(t, err)
	defer f.Close()

	entries, err := f.Readdirnames(-1)
	require.NoError(t, err)
	assert.Contains(t, entries, "a")
}
