/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package network

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	topology "github.com/hyperledger-labs/fsc-iou/iou/network"
	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
)

const (
	networkFuncName = "network"
	networkCmdDes   = "Operate a network of iou nodes: generate, start."
)

var logger = logging.MustGetLogger("fsc.node.start")

// Cmd returns the cobra command for Network
func Cmd() *cobra.Command {
	networkCmd := &cobra.Command{
		Use:   networkFuncName,
		Short: fmt.Sprint(networkCmdDes),
		Long:  fmt.Sprint(networkCmdDes),
	}
	networkCmd.AddCommand(generateCmd())
	networkCmd.AddCommand(startCmd())
	return networkCmd
}

func startCmd() *cobra.Command {
	var configDir string
	var networkStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Starts the iou nodes of a topology.",
		Long:  `Starts a node for every sub directory of the config directory holding a core.yaml, the notary first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("trailing args detected")
			}
			cmd.SilenceUsage = true
			return serve(configDir)
		},
	}
	networkStartCmd.Flags().StringVarP(&configDir, "config", "c", "./", "directory of the node configurations")
	return networkStartCmd
}

func serve(configDir string) error {
	network, err := topology.Load(configDir)
	if err != nil {
		return err
	}

	// sighup
	sighupIgnore := false
	sighupIgnoreEnv := os.Getenv("IOU_SIGHUP_IGNORE")
	if len(sighupIgnoreEnv) != 0 {
		sighupIgnore, err = strconv.ParseBool(sighupIgnoreEnv)
		if err != nil {
			logger.Infof("Error parsing boolean environment variable IOU_SIGHUP_IGNORE: %s\n", err.Error())
		} else {
			logger.Infof("SIGHUP signal will be ignored: %t", sighupIgnore)
		}
	}

	serve := make(chan error, 10)
	stop := func(sig string) func() {
		return func() {
			logger.Infof("Received %s, exiting...", sig)
			network.Stop()
			serve <- nil
		}
	}
	go handleSignals(addPlatformSignals(map[os.Signal]func(){
		syscall.SIGINT:  stop("SIGINT"),
		syscall.SIGTERM: stop("SIGTERM"),
		syscall.SIGHUP: func() {
			if sighupIgnore {
				logger.Infof("Received SIGHUP, but ignoring it")
				return
			}
			stop("SIGHUP")()
		},
	}))

	if err := network.Start(); err != nil {
		logger.Errorf("Failed starting network [%s]", err)
		network.Stop()
		return err
	}
	for _, n := range network.Nodes() {
		address := "-"
		if s := network.Server(n.Name()); s != nil {
			address = s.Addr()
		}
		logger.Infof("Started node [%s] with identity [%s], web address [%s]", n.Name(), n.Identity(), address)
	}
	return <-serve
}

func handleSignals(handlers map[os.Signal]func()) {
	var signals []os.Signal
	for sig := range handlers {
		signals = append(signals, sig)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, signals...)

	for sig := range signalChan {
		logger.Infof("Received signal: %d (%s)", sig, sig)
		handlers[sig]()
	}
}
