/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperledger-labs/fsc-iou/node/network"
	"github.com/hyperledger-labs/fsc-iou/node/version"
)

type CLI struct {
	mainCmd *cobra.Command
}

func New() *CLI {
	mainCmd := &cobra.Command{Use: version.ProgramName}

	mainCmd.AddCommand(version.Cmd())
	mainCmd.AddCommand(network.Cmd())

	return &CLI{mainCmd: mainCmd}
}

// Command returns the root command
func (c *CLI) Command() *cobra.Command {
	return c.mainCmd
}

func (c *CLI) Execute() {
	if c.mainCmd.Execute() != nil {
		os.Exit(1)
	}
}
