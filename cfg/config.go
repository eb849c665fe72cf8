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

// Package cfg holds the mount-time configuration shape and its flag
// bindings. Unlike the teacher's generated cfg/config.go, this one is
// hand-maintained: the flag set is small and stable enough that a generator
// would add more ceremony than it saves.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	FileSystem FileSystemConfig `yaml:"file-system" mapstructure:"file-system"`

	Logging LoggingConfig `yaml:"logging"`

	Debug DebugConfig `yaml:"debug"`
}

type FileSystemConfig struct {
	// Templates is the root of the parallel template tree (spec.md 4.A).
	Templates string `yaml:"templates" mapstructure:"templates"`

	// ConfigFile seeds the hierarchical configuration store the render
	// engine reads from (spec.md 6).
	ConfigFile string `yaml:"config-file" mapstructure:"config-file"`

	Foreground bool `yaml:"foreground" mapstructure:"foreground"`

	SingleThreaded bool `yaml:"single-threaded" mapstructure:"single-threaded"`
}

type LoggingConfig struct {
	Severity    string `yaml:"severity"`
	Format      string `yaml:"format"`
	Destination string `yaml:"destination"`
	File        string `yaml:"file"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation" mapstructure:"exit-on-invariant-violation"`
}

// BindFlags registers every mount flag and ties it to its viper key, the
// same pflag-to-viper wiring the teacher uses for its own flag set.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("templates", "o", "", "Root of the template tree (required).")
	if err = viper.BindPFlag("file-system.templates", flagSet.Lookup("templates")); err != nil {
		return err
	}

	flagSet.BoolP("foreground", "f", false, "Run in the foreground (accepted for compatibility; templatefs never daemonizes).")
	if err = viper.BindPFlag("file-system.foreground", flagSet.Lookup("foreground")); err != nil {
		return err
	}

	flagSet.BoolP("single-threaded", "s", false, "Serve requests from a single thread.")
	if err = viper.BindPFlag("file-system.single-threaded", flagSet.Lookup("single-threaded")); err != nil {
		return err
	}

	flagSet.String("log-severity", "INFO", "Minimum severity to log (TRACE..EMERGENCY).")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log line format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-destination", "stderr", "Log destination: void, syslog, file, or stderr.")
	if err = viper.BindPFlag("logging.destination", flagSet.Lookup("log-destination")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to the log file, when --log-destination=file.")
	if err = viper.BindPFlag("logging.file", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.Bool("debug_invariants", false, "Exit when internal invariants are violated.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	return nil
}
