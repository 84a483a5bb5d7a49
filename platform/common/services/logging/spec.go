/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

type levelSpec struct {
	defaultLevel zapcore.Level
	levels       map[string]zapcore.Level
}

func parseSpec(spec string) (*levelSpec, error) {
	ls := &levelSpec{defaultLevel: zapcore.InfoLevel, levels: map[string]zapcore.Level{}}
	spec = strings.TrimSpace(spec)
	if len(spec) == 0 {
		return ls, nil
	}

	for _, field := range strings.Split(spec, ":") {
		split := strings.Split(field, "=")
		switch len(split) {
		case 1:
			l, err := parseLevel(split[0])
			if err != nil {
				return nil, err
			}
			ls.defaultLevel = l
		case 2:
			if len(split[0]) == 0 {
				return nil, errors.Errorf("invalid logging specification '%s': no logger specified in segment '%s'", spec, field)
			}
			l, err := parseLevel(split[1])
			if err != nil {
				return nil, err
			}
			for _, name := range strings.Split(split[0], ",") {
				ls.levels[strings.TrimSpace(name)] = l
			}
		default:
			return nil, errors.Errorf("invalid logging specification '%s': bad segment '%s'", spec, field)
		}
	}
	return ls, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, errors.Wrapf(err, "invalid log level [%s]", s)
	}
	return l, nil
}

// level returns the level of the most specific logger prefix matching name
func (ls *levelSpec) level(name string) zapcore.Level {
	for n := name; len(n) != 0; {
		if l, ok := ls.levels[n]; ok {
			return l
		}
		i := strings.LastIndex(n, ".")
		if i < 0 {
			break
		}
		n = n[:i]
	}
	return ls.defaultLevel
}
