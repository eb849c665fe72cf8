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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paul-chambers/templatefs/cfg"
)

func TestConfigureLoggingAcceptsValidConfig(t *testing.T) {
	err := configureLogging(cfg.LoggingConfig{
		Severity:    "INFO",
		Format:      "text",
		Destination: "stderr",
	})
	assert.NoError(t, err)
}

func TestConfigureLoggingRejectsUnknownSeverity(t *testing.T) {
	err := configureLogging(cfg.LoggingConfig{Severity: "not-a-severity", Destination: "stderr"})
	assert.Error(t, err)
}

func TestConfigureLoggingRejectsUnknownDestination(t *testing.T) {
	err := configureLogging(cfg.LoggingConfig{Severity: "INFO", Destination: "smoke-signal"})
	assert.Error(t, err)
}

func TestRunMountRequiresTemplatesFlag(t *testing.T) {
	err := runMount(t.TempDir(), &cfg.Config{Logging: cfg.LoggingConfig{Severity: "INFO", Destination: "stderr"}})
	assert.Error(t, err)

	var ee *exitError
	if ok := assertExitError(t, err, &ee); ok {
		assert.Equal(t, 2, ee.code)
	}
}

func assertExitError(t *testing.T, err error, target **exitError) bool {
	t.Helper()
	ee, ok := err.(*exitError)
	if !ok {
		t.Errorf("expected *exitError, got %T", err)
		return false
	}
	*target = ee
	return true
}
