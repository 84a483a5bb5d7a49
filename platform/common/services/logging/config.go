/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	zaplogfmt "github.com/sykesm/zap-logfmt"
	"go.uber.org/zap/zapcore"
)

const defaultFormat = "console"

type Config struct {
	// Format is the log record format. It can be "json", "logfmt" or "console".
	// If Format is not provided, the console encoder is used.
	Format string
	// LogSpec determines the log levels that are enabled for the logging system.
	// The format is `[<logger>[,<logger>...]=]<level>[:...]`, for example
	// `info:fsc.iou=debug:fsc.view.manager,fsc.view.comm=warn`.
	//
	// If LogSpec is not provided, loggers will be enabled at the INFO level.
	LogSpec string
	// Writer is the sink for encoded log records.
	//
	// If a Writer is not provided, os.Stderr will be used as the log sink.
	Writer io.Writer
}

// registry holds the active levels and the shared output core
type registry struct {
	mu     sync.RWMutex
	levels *levelSpec
	out    zapcore.Core
}

var global = newRegistry()

func newRegistry() *registry {
	r := &registry{}
	r.apply(Config{})
	return r
}

// Init (re)configures the logging system. Loggers created before Init pick up the new
// configuration.
func Init(c Config) {
	global.apply(c)
}

func (r *registry) apply(c Config) {
	spec, err := parseSpec(c.LogSpec)
	if err != nil {
		// fall back to the default spec, a bad spec must not silence the node
		spec, _ = parseSpec("")
	}
	w := c.Writer
	if w == nil {
		w = os.Stderr
	}
	out := zapcore.NewCore(newEncoder(c.Format), zapcore.AddSync(w), zapcore.DebugLevel)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = spec
	r.out = out
}

func (r *registry) enabled(name string, l zapcore.Level) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.levels.level(name).Enabled(l)
}

func (r *registry) output() zapcore.Core {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.out
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "name",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if len(format) == 0 {
		format = defaultFormat
	}
	switch strings.ToLower(format) {
	case "json":
		return zapcore.NewJSONEncoder(cfg)
	case "logfmt":
		return zaplogfmt.NewEncoder(cfg)
	default:
		return zapcore.NewConsoleEncoder(cfg)
	}
}
