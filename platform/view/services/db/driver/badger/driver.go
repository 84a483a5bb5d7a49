/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package badger

import (
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db"
	"github.com/hyperledger-labs/fsc-iou/platform/view/services/db/driver"
)

const PersistenceType = "badger"

type Driver struct{}

// New opens a badger store. The data source name is the path of the store unless
// the config carries a `path`.
func (d *Driver) New(dataSourceName string, config driver.Config) (driver.Persistence, error) {
	opts := Opts{Path: dataSourceName}
	if config != nil && config.IsSet("") {
		if err := config.UnmarshalKey("", &opts); err != nil {
			return nil, errors.Wrapf(err, "failed getting opts")
		}
		if len(opts.Path) == 0 {
			opts.Path = dataSourceName
		}
	}
	return OpenDB(opts)
}

func init() {
	db.Register(PersistenceType, &Driver{})
}
