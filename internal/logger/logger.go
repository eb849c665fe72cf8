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

// Package logger provides the leveled, destination-routed logging facade
// consumed by the rest of the module. Severities run from Emergency (most
// urgent) down to Trace (most verbose), matching spec.md's external logging
// contract: level-tagged records, one per line, optionally suffixed with
// @file:line, routed independently to {void, syslog, file, stderr}.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity extends slog's level range downward (more urgent than Error) and
// upward (more verbose than Debug) to cover the emergency..trace spread
// spec.md §6 names.
type Severity int

const (
	Emergency Severity = iota
	Alert
	Critical
	SeverityError
	Warning
	Notice
	Info
	Debug
	Trace
)

var severityNames = map[Severity]string{
	Emergency:     "EMERGENCY",
	Alert:         "ALERT",
	Critical:      "CRITICAL",
	SeverityError: "ERROR",
	Warning:       "WARNING",
	Notice:        "NOTICE",
	Info:          "INFO",
	Debug:         "DEBUG",
	Trace:         "TRACE",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseSeverity accepts the lowercase names used on the command line.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(name, s) {
			return sev, nil
		}
	}
	return Info, fmt.Errorf("unknown log severity %q", s)
}

// slogLevel maps our severity onto a slog level so the stdlib handler still
// sorts and filters records correctly: SeverityError maps to 0 and each step
// of severity is 4 levels apart (Emergency is 12, Info is -12, Trace is -20).
// The mapping does not line up with slog's own named levels.
func (s Severity) slogLevel() slog.Level {
	return slog.Level((int(SeverityError) - int(s)) * 4)
}

// Destination is one of the four sinks spec.md §6 names.
type Destination int

const (
	DestinationVoid Destination = iota
	DestinationStderr
	DestinationFile
	DestinationSyslog
)

func ParseDestination(s string) (Destination, error) {
	switch strings.ToLower(s) {
	case "void", "none", "":
		return DestinationVoid, nil
	case "stderr":
		return DestinationStderr, nil
	case "file":
		return DestinationFile, nil
	case "syslog":
		return DestinationSyslog, nil
	default:
		return DestinationVoid, fmt.Errorf("unknown log destination %q", s)
	}
}

// Config selects the format, minimum severity, destination and (for the file
// destination) the log file path. Rotation settings for the file destination
// are fixed in Configure.
type Config struct {
	Severity    Severity
	Format      string // "json" or "text"
	Destination Destination
	FilePath    string
}

var (
	mu            sync.Mutex
	defaultLogger = slog.New(newTextHandler(os.Stderr, Info.slogLevel()))
	minSeverity   = Info
)

// Configure replaces the process-wide default logger. It is safe to call
// concurrently with logging calls; in-flight records may observe either the
// old or new configuration, never a torn one.
func Configure(cfg Config) error {
	var w io.Writer
	switch cfg.Destination {
	case DestinationVoid:
		w = io.Discard
	case DestinationStderr:
		w = os.Stderr
	case DestinationFile:
		if cfg.FilePath == "" {
			return fmt.Errorf("log destination file requires a path")
		}
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    64, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	case DestinationSyslog:
		sw, err := syslog.New(syslog.LOG_NOTICE|syslog.LOG_DAEMON, "templatefs")
		if err != nil {
			return fmt.Errorf("connecting to syslog: %w", err)
		}
		w = sw
	default:
		return fmt.Errorf("unknown log destination %d", cfg.Destination)
	}

	level := cfg.Severity.slogLevel()

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = newJSONHandler(w, level)
	} else {
		handler = newTextHandler(w, level)
	}
	// Syslog destinations carry their own priority prefix; the record
	// shouldn't also be prefixed with the severity name (spec.md §6).
	if cfg.Destination == DestinationSyslog {
		handler = newSyslogHandler(w, level)
	}

	mu.Lock()
	defaultLogger = slog.New(handler)
	minSeverity = cfg.Severity
	mu.Unlock()
	return nil
}

func newTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return &severityHandler{inner: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})}
}

func newJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return &severityHandler{inner: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}
}

func newSyslogHandler(w io.Writer, level slog.Level) slog.Handler {
	return &severityHandler{inner: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), omitLevel: true}
}

// severityHandler rewrites slog's numeric level back into our named
// severities: for non-syslog destinations it adds a "severity" attribute
// carrying the level name; syslog sinks get no such attribute (spec.md §6).
type severityHandler struct {
	inner     slog.Handler
	omitLevel bool
}

func (h *severityHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *severityHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.omitLevel {
		sev := SeverityError - Severity(r.Level/4)
		r.AddAttrs(slog.String("severity", sev.String()))
	}
	return h.inner.Handle(ctx, r)
}

func (h *severityHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &severityHandler{inner: h.inner.WithAttrs(attrs), omitLevel: h.omitLevel}
}

func (h *severityHandler) WithGroup(name string) slog.Handler {
	return &severityHandler{inner: h.inner.WithGroup(name), omitLevel: h.omitLevel}
}

func log(sev Severity, format string, args ...interface{}) {
	mu.Lock()
	l := defaultLogger
	enabled := sev <= minSeverity
	mu.Unlock()
	if !enabled {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if _, file, line, ok := runtime.Caller(2); ok && sev <= Debug {
		msg = fmt.Sprintf("%s @%s:%d", msg, file, line)
	}
	l.Log(context.Background(), sev.slogLevel(), msg)
}

func Emergencyf(format string, args ...interface{}) { log(Emergency, format, args...) }
func Alertf(format string, args ...interface{})     { log(Alert, format, args...) }
func Criticalf(format string, args ...interface{})  { log(Critical, format, args...) }
func Errorf(format string, args ...interface{})     { log(SeverityError, format, args...) }
func Warnf(format string, args ...interface{})      { log(Warning, format, args...) }
func Noticef(format string, args ...interface{})    { log(Notice, format, args...) }
func Infof(format string, args ...interface{})      { log(Info, format, args...) }
func Debugf(format string, args ...interface{})     { log(Debug, format, args...) }
func Tracef(format string, args ...interface{})     { log(Trace, format, args...) }

// LogTextBlock emits a multi-line block at the given severity, numbering each
// line starting at 1 and prefixing it with label — used to surface a
// captured executable-template's stderr (spec.md §4.D, §6).
func LogTextBlock(sev Severity, label string, text string) {
	if text == "" {
		return
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		log(sev, "%s[%d]: %s", label, i+1, line)
	}
}
