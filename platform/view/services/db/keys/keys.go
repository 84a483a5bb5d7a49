/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keys

import (
	"regexp"

	"github.com/pkg/errors"
)

const NamespaceSeparator = "\u0000"

var nsRegexp = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// ValidateNs checks that the namespace can be used as key prefix
func ValidateNs(ns string) error {
	if !nsRegexp.MatchString(ns) {
		return errors.Errorf("namespace '%s' is invalid", ns)
	}
	return nil
}
