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

// Package metrics declares the prometheus collectors threaded through
// internal/overlay. Nothing mounts an HTTP exporter by default; registration
// alone makes the collectors available to a caller that wants to wire one
// up later.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OpensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "templatefs_opens_total",
		Help: "Count of open() calls, partitioned by variant (pass_through, template, executable_template).",
	}, []string{"variant"})

	TemplateRendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "templatefs_template_renders_total",
		Help: "Count of template render attempts, partitioned by outcome (success, failure).",
	}, []string{"outcome"})

	TemplateRenderSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "templatefs_template_render_seconds",
		Help: "Latency of process_template invocations.",
	})

	ExecTemplateDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "templatefs_exec_template_duration_seconds",
		Help: "Latency of execute_template invocations, fork through waitpid.",
	})

	HandlesOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "templatefs_handles_open",
		Help: "Number of currently live file/dir handles.",
	})
)

func init() {
	prometheus.MustRegister(
		OpensTotal,
		TemplateRendersTotal,
		TemplateRenderSeconds,
		ExecTemplateDurationSeconds,
		HandlesOpen,
	)
}
