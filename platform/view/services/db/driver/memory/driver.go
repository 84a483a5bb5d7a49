/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memory

import (
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
)

const PersistenceType = "memory"

type Driver struct{}

func (d *Driver) New(dataSourceName string, config driver.Config) (driver.Persistence, error) {
	return New(), nil
}

func init() {
	db.Register(PersistenceType, &Driver{})
}
