/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package provider connects to a peer gateway with a signing identity.
package provider

import (
	"os"

	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/inrcfi/inrc/internal/pkg/comm"
	"github.com/inrcfi/inrc/internal/pkg/identity"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

var logger = flogging.MustGetLogger("inrc.provider")

// Provider holds a gateway connection and the identity transactions are
// signed with.
type Provider struct {
	config Config
	conn   *grpc.ClientConn
	signer *identity.ECDSASigner
}

// Env configures a provider from the INRC_* environment.
func Env() (*Provider, error) {
	conf, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(conf)
}

// New loads the signing identity and dials the peer.
func New(conf Config) (*Provider, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	signer, err := identity.NewSigner(identity.Config{
		MSPID:        conf.MSP.ID,
		IdentityPath: conf.MSP.CertPath,
		KeyPath:      conf.MSP.KeyPath,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load signing identity")
	}

	clientConfig, err := conf.clientConfig()
	if err != nil {
		return nil, err
	}
	client, err := comm.NewGRPCClient(clientConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create gateway client")
	}
	conn, err := client.NewConnection(conf.PeerAddress)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Connected to %s as %s", conf.PeerAddress, conf.MSP.ID)
	return &Provider{
		config: conf,
		conn:   conn,
		signer: signer,
	}, nil
}

func (c Config) clientConfig() (comm.ClientConfig, error) {
	cc := comm.ClientConfig{
		KaOpts:      comm.DefaultKeepaliveOptions,
		DialTimeout: c.DialTimeout,
	}
	if !c.TLS.Enabled {
		return cc, nil
	}

	cc.SecOpts = comm.SecureOptions{
		UseTLS:             true,
		RequireClientCert:  c.TLS.ClientAuthRequired,
		ServerNameOverride: c.TLS.ServerNameOverride,
	}
	if c.TLS.RootCertFile != "" {
		caPEM, err := os.ReadFile(c.TLS.RootCertFile)
		if err != nil {
			return comm.ClientConfig{}, errors.WithMessagef(err, "unable to load TLS root cert file from %s", c.TLS.RootCertFile)
		}
		cc.SecOpts.ServerRootCAs = [][]byte{caPEM}
	}
	if c.TLS.ClientAuthRequired {
		keyPEM, err := os.ReadFile(c.TLS.ClientKeyFile)
		if err != nil {
			return comm.ClientConfig{}, errors.WithMessagef(err, "unable to load TLS client key from %s", c.TLS.ClientKeyFile)
		}
		certPEM, err := os.ReadFile(c.TLS.ClientCertFile)
		if err != nil {
			return comm.ClientConfig{}, errors.WithMessagef(err, "unable to load TLS client cert from %s", c.TLS.ClientCertFile)
		}
		cc.SecOpts.Key = keyPEM
		cc.SecOpts.Certificate = certPEM
	}
	return cc, nil
}

func (p *Provider) Config() Config {
	return p.config
}

func (p *Provider) Conn() *grpc.ClientConn {
	return p.conn
}

func (p *Provider) Signer() identity.SignerSerializer {
	return p.signer
}

func (p *Provider) Close() error {
	return p.conn.Close()
}
