/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package network

import (
	"fmt"

	"github.com/spf13/cobra"

	topology "github.com/hyperledger-labs/fsc-iou/iou/network"
)

func generateCmd() *cobra.Command {
	t := topology.NewTopology("")
	var output string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generates the configurations of a topology.",
		Long:  `Generates a core.yaml for the notary and for every party, each in its own sub directory of the output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("trailing args detected")
			}
			cmd.SilenceUsage = true
			confPaths, err := t.Generate(output)
			if err != nil {
				return err
			}
			for _, p := range confPaths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "./topology", "directory to write the configurations to")
	flags.StringVar(&t.Notary, "notary", "notary", "name of the notary")
	flags.StringSliceVar(&t.Parties, "parties", []string{"PartyA", "PartyB", "PartyC"}, "names of the parties")
	flags.BoolVar(&t.Validating, "validating", t.Validating, "whether the notary verifies the contracts")
	flags.StringVar(&t.Persistence, "persistence", t.Persistence, "badger or memory")
	flags.IntVar(&t.WebPort, "web-port", 10050, "web port of the first party, 0 disables the web servers")
	flags.StringVar(&t.LoggingSpec, "logging-spec", t.LoggingSpec, "logging spec of the nodes")
	flags.DurationVar(&t.SessionTimeout, "session-timeout", t.SessionTimeout, "counterparty answer timeout")
	flags.DurationVar(&t.NotaryTimeout, "notary-timeout", t.NotaryTimeout, "notary answer timeout")
	return cmd
}
