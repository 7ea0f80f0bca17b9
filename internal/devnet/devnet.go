/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package devnet runs the vault for every workspace program behind a local
// gateway, with a generated client identity.
package devnet

import (
	"context"
	"path/filepath"
	"time"

	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/inrcfi/inrc/internal/pkg/gateway"
	"github.com/inrcfi/inrc/internal/pkg/identity/identitytest"
	"github.com/inrcfi/inrc/pkg/provider"
	"github.com/inrcfi/inrc/pkg/workspace"
	"github.com/pkg/errors"
)

var logger = flogging.MustGetLogger("inrc.devnet")

const DefaultMSPID = "DevMSP"

type Config struct {
	ListenAddress string
	MSPID         string
	// CryptoDir receives the generated client certificate and key.
	CryptoDir string
	Workspace *workspace.Workspace
	Metrics   metrics.Provider
}

// Network is a local gateway hosting one vault per distinct program
// deployment.
type Network struct {
	Server *gateway.Server
	Runner *gateway.Runner
	Client *identitytest.Enrollment

	mspID string
}

func New(c Config) (*Network, error) {
	if c.Workspace == nil {
		return nil, errors.New("a workspace is required")
	}
	if c.MSPID == "" {
		c.MSPID = DefaultMSPID
	}
	if c.ListenAddress == "" {
		c.ListenAddress = "127.0.0.1:0"
	}
	if c.Metrics == nil {
		c.Metrics = &disabled.Provider{}
	}

	server := gateway.CreateServer(gateway.Options{Address: c.ListenAddress, MSPID: c.MSPID})
	vaultMetrics := vault.NewMetrics(c.Metrics)
	deployed := map[string]bool{}
	for _, name := range c.Workspace.Names() {
		entry := c.Workspace.Programs[name]
		key := entry.Channel + "/" + entry.Chaincode
		if deployed[key] {
			continue
		}
		if err := server.Deploy(entry.Channel, entry.Chaincode, &vault.Vault{Metrics: vaultMetrics}); err != nil {
			return nil, errors.WithMessagef(err, "failed to deploy program %s", name)
		}
		deployed[key] = true
		logger.Infof("Deployed program %s as chaincode %s on channel %s", name, entry.Chaincode, entry.Channel)
	}

	client, err := identitytest.NewEnrollment(filepath.Join(c.CryptoDir, "client"), "devnet-client", identitytest.PKCS8)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to generate client identity")
	}

	return &Network{
		Server: server,
		Runner: &gateway.Runner{Address: c.ListenAddress, Server: server, Metrics: c.Metrics},
		Client: client,
		mspID:  c.MSPID,
	}, nil
}

// ProviderConfig points a provider at the running gateway with the
// generated client identity.
func (n *Network) ProviderConfig() provider.Config {
	return provider.Config{
		PeerAddress: n.Runner.Addr(),
		MSP: provider.MSPConfig{
			ID:       n.mspID,
			CertPath: n.Client.CertPath,
			KeyPath:  n.Client.KeyPath,
		},
		DialTimeout:   5 * time.Second,
		CommitTimeout: 30 * time.Second,
	}
}

// Env returns the INRC_* settings for ProviderConfig.
func (n *Network) Env() map[string]string {
	conf := n.ProviderConfig()
	return map[string]string{
		"INRC_PEER_ADDRESS":  conf.PeerAddress,
		"INRC_MSP_ID":        conf.MSP.ID,
		"INRC_MSP_CERT_PATH": conf.MSP.CertPath,
		"INRC_MSP_KEY_PATH":  conf.MSP.KeyPath,
	}
}

// HealthCheck reports whether the gateway is accepting connections.
func (n *Network) HealthCheck(ctx context.Context) error {
	if n.Runner.Addr() == "" {
		return errors.New("gateway is not serving")
	}
	return nil
}
