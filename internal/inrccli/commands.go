/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inrccli

import (
	"fmt"
	"os"
	"sort"
	"syscall"

	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/inrcfi/inrc/common/metadata"
	"github.com/inrcfi/inrc/internal/devnet"
	"github.com/inrcfi/inrc/internal/operations"
	"github.com/inrcfi/inrc/internal/receipts"
	"github.com/inrcfi/inrc/pkg/provider"
	"github.com/inrcfi/inrc/pkg/workspace"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"
)

func (c *CLI) receiptsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "receipts [txid]",
		Short: "List transactions submitted from this machine, newest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			store, err := receipts.Open(c.receiptsPath())
			if err != nil {
				return err
			}
			defer store.Close()

			var list []*receipts.Receipt
			if len(args) == 1 {
				r, err := store.Get(args[0])
				if err != nil {
					return errors.WithMessagef(err, "transaction %s", args[0])
				}
				list = append(list, r)
			} else if list, err = store.List(limit); err != nil {
				return err
			}

			for _, r := range list {
				fmt.Fprintf(c.Out, "%s %s %s.%s %s", r.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z"), r.TxID, r.Program, r.Method, r.Status)
				if r.Status == receipts.StatusCommitted {
					fmt.Fprintf(c.Out, " block=%d", r.BlockNumber)
				}
				if r.Error != "" {
					fmt.Fprintf(c.Out, " error=%q", r.Error)
				}
				fmt.Fprintln(c.Out)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of receipts to list; 0 lists all")
	return cmd
}

const defaultWorkspace = "programs:\n  inrc: {}\n"

func (c *CLI) devnetCmd() *cobra.Command {
	var (
		listenAddress     string
		cryptoDir         string
		mspID             string
		operationsAddress string
	)
	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Run a local gateway with the vault deployed for every workspace program.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ws, err := c.devnetWorkspace()
			if err != nil {
				return err
			}

			var (
				members         grouper.Members
				system          *operations.System
				metricsProvider metrics.Provider
			)
			if operationsAddress != "" {
				system = operations.NewSystem(operations.Options{
					Logger:        logger,
					ListenAddress: operationsAddress,
					Metrics:       operations.MetricsOptions{Provider: "prometheus"},
					Version:       metadata.Version,
					CommitSHA:     metadata.CommitSHA,
				})
				metricsProvider = system
				members = append(members, grouper.Member{Name: "operations", Runner: system})
			}

			network, err := devnet.New(devnet.Config{
				ListenAddress: listenAddress,
				MSPID:         mspID,
				CryptoDir:     cryptoDir,
				Workspace:     ws,
				Metrics:       metricsProvider,
			})
			if err != nil {
				return err
			}
			members = append(members, grouper.Member{Name: "gateway", Runner: network.Runner})
			if system != nil {
				if err := system.RegisterChecker("gateway", network); err != nil {
					return err
				}
			}

			process := ifrit.Invoke(sigmon.New(grouper.NewOrdered(syscall.SIGTERM, members), syscall.SIGINT, syscall.SIGTERM))
			select {
			case err := <-process.Wait():
				return err
			case <-process.Ready():
			}

			env := network.Env()
			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(c.Out, "export %s=%s\n", k, env[k])
			}
			logger.Infof("Devnet serving %d programs on %s", len(ws.Programs), network.Runner.Addr())
			return <-process.Wait()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&listenAddress, "listen", "127.0.0.1:7051", "Gateway listen address")
	flags.StringVar(&cryptoDir, "crypto-dir", "devnet-crypto", "Directory for the generated client identity")
	flags.StringVar(&mspID, "msp-id", devnet.DefaultMSPID, "MSP id of the devnet organization")
	flags.StringVar(&operationsAddress, "operations-address", "", "Serve /healthz, /metrics and /version on this address")
	return cmd
}

// devnetWorkspace loads the configured workspace, or a workspace with the
// default program when there is no workspace file.
func (c *CLI) devnetWorkspace() (*workspace.Workspace, error) {
	conf, err := provider.LoadConfig(c.viper)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(conf.Workspace); os.IsNotExist(err) {
		logger.Infof("No workspace at %s, serving the %s program", conf.Workspace, DefaultProgram)
		return workspace.Parse([]byte(defaultWorkspace))
	}
	return workspace.Load(conf.Workspace)
}

func (c *CLI) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print inrc version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(c.Out, "%s:\n Version: %s\n Commit SHA: %s\n", CmdRoot, metadata.Version, metadata.CommitSHA)
			return nil
		},
	}
}
