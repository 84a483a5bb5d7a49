/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package assert

import (
	"testing"

	"github.com/pkg/errors"
	testifyassert "github.com/stretchr/testify/assert"
)

func TestPanicsAndReleases(t *testing.T) {
	released := 0
	release := func() { released++ }

	testifyassert.NotPanics(t, func() { NoError(nil, "no panic", release) })
	testifyassert.Equal(t, 0, released)

	testifyassert.Panics(t, func() { NoError(errors.New("boom"), "should panic", release) })
	testifyassert.Equal(t, 1, released)

	testifyassert.Panics(t, func() { Equal(1, 2) })
	testifyassert.Panics(t, func() { True(false) })
	testifyassert.Panics(t, func() { False(true) })
	testifyassert.Panics(t, func() { NotNil(nil) })
	testifyassert.Panics(t, func() { Fail("failed") })
	testifyassert.NotPanics(t, func() { Equal("a", "a") })
}
