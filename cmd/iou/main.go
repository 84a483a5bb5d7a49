/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"github.com/hyperledger-labs/fsc-iou/node"
)

// starts here
func main() {
	node.New().Execute()
}
