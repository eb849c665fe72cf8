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

// Package execdriver runs an executable template as a child process and
// captures its stdout, logging stderr at warning level. It is the other
// synthesis path alongside internal/expand, selected when the template file
// carries the executable bit.
package execdriver

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/paul-chambers/templatefs/internal/logger"
)

const (
	initialCapacity = 16 * 1024
	headroomBytes   = 2 * 1024
	pollTimeoutMs   = 10 * 1000
)

// Execute runs templatePath as a program with argv = {templatePath,
// lowerPath}, the original process environment, and captures its stdout. On
// success it returns the captured bytes and 1. On failure it returns nil and
// a negative errno (fork/exec failure) or the child's exit status negated
// (non-zero exit becomes the operation's error, per spec.md 4.D). A child
// killed by a signal, which has no exit status, yields -EIO.
func Execute(templatePath, lowerPath string) ([]byte, int) {
	cmd := exec.Command(templatePath, lowerPath)
	cmd.Env = os.Environ()

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, -int(errnoOf(err))
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, -int(errnoOf(err))
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, -int(errnoOf(err))
	}
	outW.Close()
	errW.Close()

	stdoutBuf := NewElasticBuffer(initialCapacity, headroomBytes)
	stderrBuf := NewElasticBuffer(initialCapacity, headroomBytes)

	var g errgroup.Group
	g.Go(func() error {
		defer outR.Close()
		return drain(outR, stdoutBuf)
	})
	g.Go(func() error {
		defer errR.Close()
		return drain(errR, stderrBuf)
	})
	drainErr := g.Wait()

	waitErr := cmd.Wait()

	if stderrBuf.Len() > 0 {
		logger.LogTextBlock(logger.Warning, templatePath, string(stderrBuf.Bytes()))
	}

	if drainErr != nil {
		return nil, -int(errnoOf(drainErr))
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			logger.Warnf("template %s exited %d", templatePath, exitErr.ExitCode())
			if code := exitErr.ExitCode(); code > 0 {
				return nil, -code
			}
			return nil, -int(unix.EIO)
		}
		return nil, -int(errnoOf(waitErr))
	}

	return stdoutBuf.Bytes(), 1
}

// drain repeatedly polls fd with a 10s timeout (not a deadline — only a
// bound on how long the loop spins between readiness events) until the far
// end hangs up or reports an error, filling buf as data arrives.
func drain(f *os.File, buf *ElasticBuffer) error {
	fd := int(f.Fd())
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for {
		n, err := unix.Poll(pfd, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		rev := pfd[0].Revents
		if rev&unix.POLLIN != 0 {
			read, err := buf.Fill(func(p []byte) (int, error) { return unix.Read(fd, p) })
			if err != nil {
				return err
			}
			if read == 0 {
				return nil
			}
			continue
		}
		if rev&(unix.POLLHUP|unix.POLLERR) != 0 {
			return nil
		}
	}
}

func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}
