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
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paul-chambers/templatefs/cfg"
)

// exitError carries the exact process exit code spec.md 6 assigns to each
// failure class, rather than the flat os.Exit(1) the teacher collapses
// everything to.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "templatefs <mountpoint>",
	Short: "Overlay a directory tree with template-rendered and executable-template file contents",
	Long: `templatefs mirrors a lower directory tree and, for any path that also
has a matching entry under --templates, synthesizes that file's contents
either by rendering it through a logic-less template engine backed by a
hierarchical configuration store, or, if the template is executable, by
running it as a subprocess and capturing its standard output. Every other
filesystem operation passes through to the lower tree unmodified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return exitCode(1, bindErr)
		}
		if configFileErr != nil {
			return exitCode(2, configFileErr)
		}
		if unmarshalErr != nil {
			return exitCode(1, unmarshalErr)
		}
		mountPoint, err := populateArgs(args)
		if err != nil {
			return exitCode(2, err)
		}
		return runMount(mountPoint, &MountConfig)
	},
}

func populateArgs(args []string) (mountPoint string, err error) {
	mountPoint, err = filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("canonicalizing mount point: %w", err)
	}
	return mountPoint, nil
}

// Execute runs the root command and maps any exitError to the process exit
// code spec.md 6 names; any other error is an unanticipated failure, code 1.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	var ee *exitError
	if e, ok := err.(*exitError); ok {
		ee = e
	}
	if ee != nil {
		os.Exit(ee.code)
	}
	os.Exit(1)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to an optional YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}
	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
	// The same file doubles as the seed for the hierarchical configuration
	// store the render engine reads from (spec.md 6), unless a component
	// picks a different one explicitly.
	if MountConfig.FileSystem.ConfigFile == "" {
		MountConfig.FileSystem.ConfigFile = resolved
	}
}
