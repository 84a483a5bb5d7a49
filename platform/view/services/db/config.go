/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package db

import (
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
)

// PrefixConfig extends driver.Config by adding a given prefix to any passed key
type PrefixConfig struct {
	config driver.Config
	prefix string
}

// NewPrefixConfig returns a new PrefixConfig instance for the passed prefix
func NewPrefixConfig(config driver.Config, prefix string) *PrefixConfig {
	return &PrefixConfig{config: config, prefix: prefix}
}

// IsSet checks to see if the key has been set in any of the data locations
func (c *PrefixConfig) IsSet(key string) bool {
	return c.config.IsSet(c.key(key))
}

// UnmarshalKey takes a single key, appends to it the prefix set in the struct, and unmarshals it into a Struct
func (c *PrefixConfig) UnmarshalKey(key string, rawVal interface{}) error {
	return c.config.UnmarshalKey(c.key(key), rawVal)
}

func (c *PrefixConfig) key(key string) string {
	if len(key) != 0 {
		return c.prefix + "." + key
	}
	return c.prefix
}
