/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package inrccli implements the inrc command line client.
package inrccli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	"github.com/inrcfi/inrc/internal/receipts"
	"github.com/inrcfi/inrc/pkg/program"
	"github.com/inrcfi/inrc/pkg/provider"
	"github.com/inrcfi/inrc/pkg/vaultclient"
	"github.com/inrcfi/inrc/pkg/workspace"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	CmdRoot = "inrc"

	// DefaultProgram is the workspace program commands act on.
	DefaultProgram = "inrc"
)

var logger = flogging.MustGetLogger("inrc.cli")

// CLI holds the state shared by every command.
type CLI struct {
	Out   io.Writer
	Err   io.Writer
	Clock clock.Clock

	// Metrics receives the gateway request metrics of every program call.
	Metrics metrics.Provider

	viper      *viper.Viper
	configFile string
	program    string
	logSpec    string
}

func New(out, errOut io.Writer) *CLI {
	return &CLI{
		Out:     out,
		Err:     errOut,
		Clock:   clock.NewClock(),
		Metrics: &disabled.Provider{},
		viper:   viper.New(),
	}
}

// Command returns the root command.
func (c *CLI) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   CmdRoot,
		Short: "Client for the INRC collateral vault.",
		Long:  "Client for the INRC collateral vault. Configuration is read from inrc.yaml and INRC_* environment variables.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		SilenceErrors: true,
	}
	root.SetOut(c.Out)
	root.SetErr(c.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Path to the inrc.yaml configuration file")
	flags.StringVarP(&c.program, "program", "p", DefaultProgram, "Workspace program to invoke")
	flags.StringVar(&c.logSpec, "logging-level", "", "Logging spec, overrides INRC_LOGGING_SPEC")
	flags.String("peer-address", "", "Address of the peer gateway")
	flags.String("workspace", "", "Path to the workspace file")
	flags.String("receipts-dir", "", "Directory of the local receipt journal")
	bindFlags(c.viper, flags, map[string]string{
		"peerAddress":   "peer-address",
		"workspace":     "workspace",
		"receipts.path": "receipts-dir",
	})

	root.AddCommand(c.vaultCommands()...)
	root.AddCommand(
		c.receiptsCmd(),
		c.devnetCmd(),
		c.versionCmd(),
	)
	return root
}

// bindFlags lets command line flags override config keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) {
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			logger.Panicf("failed to bind flag %s: %s", name, err)
		}
	}
}

func (c *CLI) init() error {
	if err := provider.BindEnv(c.viper); err != nil {
		return err
	}
	c.viper.BindEnv("logging.spec", "INRC_LOGGING_SPEC")
	c.viper.BindEnv("receipts.path", "INRC_RECEIPTS_PATH")

	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
	} else {
		c.viper.SetConfigName(CmdRoot)
		if cfgPath := os.Getenv("INRC_CFG_PATH"); cfgPath != "" {
			c.viper.AddConfigPath(cfgPath)
		} else {
			c.viper.AddConfigPath(".")
			c.viper.AddConfigPath("./sampleconfig")
		}
	}
	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "error reading inrc config")
		}
	}

	logSpec := c.logSpec
	if logSpec == "" {
		logSpec = c.viper.GetString("logging.spec")
	}
	flogging.Init(flogging.Config{
		Format:  "%{color}%{time:2006-01-02 15:04:05.000 MST} [%{module}] %{shortfunc} -> %{level:.4s}%{color:reset} %{message}",
		Writer:  c.Err,
		LogSpec: logSpec,
	})
	return nil
}

// session is the connection state of a single command.
type session struct {
	cli      *CLI
	provider *provider.Provider
	program  *program.Program
	client   *vaultclient.Client
	receipts *receipts.Store
}

func (c *CLI) connect(cmd *cobra.Command) (*session, error) {
	// Parsing of the command line is done so silence cmd usage
	cmd.SilenceUsage = true

	conf, err := provider.LoadConfig(c.viper)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Load(conf.Workspace)
	if err != nil {
		return nil, err
	}
	entry, err := ws.Lookup(c.program)
	if err != nil {
		return nil, err
	}

	prov, err := provider.New(conf)
	if err != nil {
		return nil, err
	}
	prog, err := program.New(prov, entry,
		program.WithCommitTimeout(conf.CommitTimeout),
		program.WithClock(c.Clock),
		program.WithMetricsProvider(c.Metrics),
	)
	if err != nil {
		prov.Close()
		return nil, err
	}
	logger.Debugf("Using program %s (chaincode %s on channel %s) at %s", entry.Name, entry.Chaincode, entry.Channel, conf.PeerAddress)
	return &session{
		cli:      c,
		provider: prov,
		program:  prog,
		client:   vaultclient.New(prog),
	}, nil
}

func (s *session) close() {
	if s.receipts != nil {
		s.receipts.Close()
	}
	s.provider.Close()
}

func (c *CLI) receiptsPath() string {
	if p := c.viper.GetString("receipts.path"); p != "" {
		if used := c.viper.ConfigFileUsed(); used != "" && !filepath.IsAbs(p) {
			return filepath.Join(filepath.Dir(used), p)
		}
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".inrc", "receipts")
	}
	return filepath.Join(home, ".inrc", "receipts")
}

func (s *session) openReceipts() (*receipts.Store, error) {
	if s.receipts != nil {
		return s.receipts, nil
	}
	store, err := receipts.Open(s.cli.receiptsPath())
	if err != nil {
		return nil, err
	}
	s.receipts = store
	return store, nil
}

// record journals the outcome of a submitted transaction. Journal failures
// are logged, the transaction outcome stands.
func (s *session) record(method string, args []string, submittedAt time.Time, txID string, block uint64, callErr error) {
	if txID == "" {
		return
	}
	r := &receipts.Receipt{
		TxID:        txID,
		Program:     s.program.Name,
		Method:      method,
		Args:        args,
		SubmittedAt: submittedAt,
		Status:      receipts.StatusCommitted,
		BlockNumber: block,
	}
	if callErr != nil {
		r.Status = receipts.StatusFailed
		r.Error = callErr.Error()
	}
	store, err := s.openReceipts()
	if err == nil {
		err = store.Put(r)
	}
	if err != nil {
		logger.Warningf("Failed to record receipt for %s: %s", txID, err)
	}
}

func failedTxID(err error) string {
	var txErr *program.TransactionError
	if errors.As(err, &txErr) {
		return txErr.TxID
	}
	var commitErr *program.CommitError
	if errors.As(err, &commitErr) {
		return commitErr.TxID
	}
	return ""
}

// submit runs a transaction, logs its signature and records a receipt.
func submit[T any](s *session, ctx context.Context, method string, args []string, call func(context.Context) (*vaultclient.Committed[T], error), render func(io.Writer, T)) error {
	submittedAt := s.cli.Clock.Now()
	committed, err := call(ctx)
	if err != nil {
		s.record(method, args, submittedAt, failedTxID(err), 0, err)
		return err
	}
	logger.Infof("Your transaction signature %s", committed.TxID)
	s.record(method, args, submittedAt, committed.TxID, committed.BlockNumber, nil)
	if render != nil {
		render(s.cli.Out, committed.Value)
	}
	return nil
}
