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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOpensTotalCountsByVariant(t *testing.T) {
	OpensTotal.Reset()
	OpensTotal.WithLabelValues("pass_through").Inc()
	OpensTotal.WithLabelValues("pass_through").Inc()
	OpensTotal.WithLabelValues("template").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(OpensTotal.WithLabelValues("pass_through")))
	assert.Equal(t, float64(1), testutil.ToFloat64(OpensTotal.WithLabelValues("template")))
}

func TestHandlesOpenGaugeTracksCurrentCount(t *testing.T) {
	HandlesOpen.Set(0)
	HandlesOpen.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(HandlesOpen))
}

func TestTemplateRendersTotalByOutcome(t *testing.T) {
	TemplateRendersTotal.Reset()
	TemplateRendersTotal.WithLabelValues("success").Inc()
	TemplateRendersTotal.WithLabelValues("failure").Inc()
	TemplateRendersTotal.WithLabelValues("failure").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(TemplateRendersTotal.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(TemplateRendersTotal.WithLabelValues("failure")))
}
