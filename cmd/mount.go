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

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jacobsa/syncutil"

	"github.com/paul-chambers/templatefs/cfg"
	"github.com/paul-chambers/templatefs/internal/logger"
	"github.com/paul-chambers/templatefs/internal/overlay"
)

// runMount wires a cfg.Config into a running overlay.Overlay mount, handling
// SIGTERM/SIGINT for a clean unmount, matching the teacher's mountWithStorageHandle
// shape but generalized to this filesystem's two tree anchors instead of a
// GCS bucket.
func runMount(mountPoint string, config *cfg.Config) error {
	if err := configureLogging(config.Logging); err != nil {
		return exitCode(1, err)
	}

	// Accept the FUSE-style "-o templates=<path>" spelling as well as a bare path.
	config.FileSystem.Templates = strings.TrimPrefix(config.FileSystem.Templates, "templates=")
	if config.FileSystem.Templates == "" {
		return exitCode(2, fmt.Errorf("--templates is required"))
	}
	if _, err := os.Stat(mountPoint); err != nil {
		return exitCode(2, fmt.Errorf("mount point: %w", err))
	}
	if _, err := os.Stat(config.FileSystem.Templates); err != nil {
		return exitCode(2, fmt.Errorf("templates: %w", err))
	}
	if config.Debug.ExitOnInvariantViolation {
		syncutil.EnableInvariantChecking()
	}

	ov, err := overlay.New(mountPoint, config.FileSystem.Templates, config.FileSystem.ConfigFile)
	if err != nil {
		return exitCode(3, fmt.Errorf("constructing overlay: %w", err))
	}

	opts := overlay.MountOptions("templatefs", false)
	opts.MountOptions.SingleThreaded = config.FileSystem.SingleThreaded
	server, err := overlay.Mount(ov, mountPoint, opts)
	if err != nil {
		ov.Close()
		return exitCode(4, fmt.Errorf("mount: %w", err))
	}
	logger.Infof("mounted templatefs at %q (templates=%q)", mountPoint, config.FileSystem.Templates)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Infof("received %v, unmounting", sig)
		if err := server.Unmount(); err != nil {
			logger.Errorf("unmount: %v", err)
		}
	}()

	server.Wait()
	if err := ov.Close(); err != nil {
		return exitCode(7, fmt.Errorf("closing overlay: %w", err))
	}
	return nil
}

func configureLogging(lc cfg.LoggingConfig) error {
	sev, err := logger.ParseSeverity(lc.Severity)
	if err != nil {
		return err
	}
	dest, err := logger.ParseDestination(lc.Destination)
	if err != nil {
		return err
	}
	return logger.Configure(logger.Config{
		Severity:    sev,
		Format:      lc.Format,
		Destination: dest,
		FilePath:    lc.File,
	})
}
