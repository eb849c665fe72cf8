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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptAnchor(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestExecuteCapturesStdout(t *testing.T) {
	path := scriptAnchor(t, "#!/bin/sh\necho -n \"rendered: $1\"\n")

	out, rc := Execute(path, "/lower/path")
	require.Equal(t, 1, rc)
	assert.Equal(t, "rendered: /lower/path", string(out))
}

func TestExecuteLogsStderrButStillReturnsStdout(t *testing.T) {
	path := scriptAnchor(t, "#!/bin/sh\necho warn >&2\necho -n ok\n")

	out, rc := Execute(path, "/lower/path")
	require.Equal(t, 1, rc)
	assert.Equal(t, "ok", string(out))
}

func TestExecuteNonZeroExitIsFailure(t *testing.T) {
	path := scriptAnchor(t, "#!/bin/sh\nexit 1\n")

	_, rc := Execute(path, "/lower/path")
	assert.Less(t, rc, 0)
}

func TestExecuteMissingProgram(t *testing.T) {
	_, rc := Execute(filepath.Join(t.TempDir(), "no-such-script"), "/lower/path")
	assert.Less(t, rc, 0)
}

func TestExecuteEmptyOutput(t *testing.T) {
	path := scriptAnchor(t, "#!/bin/sh\ntrue\n")

	out, rc := Execute(path, "/lower/path")
	require.Equal(t, 1, rc)
	assert.Empty(t, out)
}
