/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger provides logging API
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	IsEnabledFor(level zapcore.Level) bool
	Named(name string) Logger
	Warnw(msg string, keysAndValues ...interface{})
	Warningf(format string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	With(args ...interface{}) Logger
	Zap() *zap.Logger
}

// MustGetLogger returns a logger whose level is driven by the active logging spec
func MustGetLogger(loggerName string) Logger {
	c := &levelCore{name: loggerName, r: global}
	return newLogger(zap.New(c, zap.AddCaller()).Named(loggerName), c)
}

// NewTestLogger returns a logger recording every entry at debug level and above
func NewTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	c, logs := observer.New(zapcore.DebugLevel)
	return newLogger(zap.New(c).Named(tb.Name()), c), logs
}

type logger struct {
	*zap.SugaredLogger
	enabler zapcore.LevelEnabler
}

func newLogger(l *zap.Logger, enabler zapcore.LevelEnabler) *logger {
	return &logger{SugaredLogger: l.Sugar(), enabler: enabler}
}

func (l *logger) IsEnabledFor(level zapcore.Level) bool {
	return l.enabler.Enabled(level)
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.SugaredLogger.Warnf(format, args...)
}

func (l *logger) Named(name string) Logger {
	z := l.SugaredLogger.Desugar()
	enabler := l.enabler
	if c, ok := enabler.(*levelCore); ok {
		child := &levelCore{name: c.name + "." + name, r: c.r, fields: c.fields}
		return newLogger(zap.New(child, zap.AddCaller()).Named(child.name), child)
	}
	return newLogger(z.Named(name), enabler)
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{SugaredLogger: l.SugaredLogger.With(args...), enabler: l.enabler}
}

func (l *logger) Zap() *zap.Logger {
	return l.SugaredLogger.Desugar()
}

// levelCore resolves its level and output from the registry at write time
type levelCore struct {
	name   string
	r      *registry
	fields []zapcore.Field
}

func (c *levelCore) Enabled(l zapcore.Level) bool {
	return c.r.enabled(c.name, l)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	f := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	f = append(f, c.fields...)
	f = append(f, fields...)
	return &levelCore{name: c.name, r: c.r, fields: f}
}

func (c *levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *levelCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	out := c.r.output()
	if len(c.fields) != 0 {
		out = out.With(c.fields)
	}
	return out.Write(e, fields)
}

func (c *levelCore) Sync() error {
	return c.r.output().Sync()
}
