/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package diag

import (
	"bytes"
	"runtime/pprof"

	"github.com/pkg/errors"
)

type logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// CaptureGoRoutines returns the stacks of all the running go routines
func CaptureGoRoutines() (string, error) {
	var sb bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&sb, 2); err != nil {
		return "", errors.Wrap(err, "failed capturing go routines")
	}
	return sb.String(), nil
}

func LogGoRoutines(l logger) {
	output, err := CaptureGoRoutines()
	if err != nil {
		l.Errorf("failed to capture go routines: %s", err)
		return
	}
	l.Infof("Go routines report:\n%s", output)
}
