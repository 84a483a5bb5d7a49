/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	"github.com/google/uuid"
)

func init() {
	// transaction nonces, linear ids and flow records all draw from the pool
	uuid.EnableRandPool()
}

// GenerateUUID returns a new random UUID in its canonical string form
func GenerateUUID() string {
	return uuid.NewString()
}
