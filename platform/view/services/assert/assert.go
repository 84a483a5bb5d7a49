/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package assert offers panicking assertions to be used inside views.
// The view manager recovers the panic and turns it into the error returned by the view.
package assert

import (
	"fmt"

	"github.com/test-go/testify/assert"
)

type panickier struct {
	releasers []func()
}

func (p *panickier) Errorf(format string, args ...interface{}) {
	for _, releaser := range p.releasers {
		releaser()
	}
	panic(fmt.Sprintf(format, args...))
}

func NotNil(object interface{}, msgAndArgs ...interface{}) {
	ma, releasers := extractReleasers(msgAndArgs...)
	assert.NotNil(&panickier{releasers: releasers}, object, ma...)
}

// NoError checks that the passed error is nil, it panics otherwise
func NoError(err error, msgAndArgs ...interface{}) {
	ma, releasers := extractReleasers(msgAndArgs...)
	assert.NoError(&panickier{releasers: releasers}, err, ma...)
}

// Equal checks that actual is as expected, it panics otherwise
func Equal(expected, actual interface{}, msgAndArgs ...interface{}) {
	ma, releasers := extractReleasers(msgAndArgs...)
	assert.Equal(&panickier{releasers: releasers}, expected, actual, ma...)
}

func True(value bool, msgAndArgs ...interface{}) {
	ma, releasers := extractReleasers(msgAndArgs...)
	assert.True(&panickier{releasers: releasers}, value, ma...)
}

func False(value bool, msgAndArgs ...interface{}) {
	ma, releasers := extractReleasers(msgAndArgs...)
	assert.False(&panickier{releasers: releasers}, value, ma...)
}

func Fail(failureMessage string, msgAndArgs ...interface{}) {
	ma, releasers := extractReleasers(msgAndArgs...)
	assert.Fail(&panickier{releasers: releasers}, failureMessage, ma...)
}

// extractReleasers separates the func() arguments, invoked before panicking, from the message arguments
func extractReleasers(msgAndArgs ...interface{}) ([]interface{}, []func()) {
	var output []interface{}
	var releasers []func()
	for _, arg := range msgAndArgs {
		switch arg := arg.(type) {
		case func():
			releasers = append(releasers, arg)
		default:
			output = append(output, arg)
		}
	}
	return output, releasers
}
