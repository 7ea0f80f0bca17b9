/*
Copyright IBM Corp. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

// Package gateway implements a single process Fabric Gateway service.
//
// Chaincodes are hosted in memory. Endorse simulates a proposal against a
// copy of the world state, Submit validates and commits the resulting
// write set in its own block, and CommitStatus reports the validation code.
// It backs the devnet command and the client test suites.
package gateway

import (
	"sync"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/inrcfi/inrc/internal/pkg/identity"
	"github.com/pkg/errors"
)

var logger = flogging.MustGetLogger("inrc.gateway")

// Options configure the identity the gateway endorses with.
type Options struct {
	// Address is reported in error details.
	Address string
	// MSPID is the endorsing organization.
	MSPID string
	// Signer endorses proposal responses. Endorsements are unsigned when nil.
	Signer identity.SignerSerializer
	// SkipSignatureCheck accepts proposals and transactions without
	// verifying the creator signature.
	SkipSignatureCheck bool
}

// Server is the gRPC gateway service.
type Server struct {
	gp.UnimplementedGatewayServer

	options Options

	mutex    sync.Mutex
	channels map[string]*channel
	// closed and replaced whenever a transaction commits
	committed chan struct{}
}

// CreateServer creates a gateway with no deployed chaincodes.
func CreateServer(options Options) *Server {
	if options.MSPID == "" {
		options.MSPID = "DevMSP"
	}
	if options.Address == "" {
		options.Address = "localhost"
	}
	return &Server{
		options:   options,
		channels:  map[string]*channel{},
		committed: make(chan struct{}),
	}
}

// Deploy instantiates a chaincode under name on the channel, creating the
// channel on first use.
func (gs *Server) Deploy(channelID, name string, cc shim.Chaincode) error {
	if channelID == "" || name == "" {
		return errors.New("channel and chaincode name are required")
	}

	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	ch, ok := gs.channels[channelID]
	if !ok {
		ch = newChannel(channelID)
		gs.channels[channelID] = ch
	}
	if err := ch.deploy(name, cc); err != nil {
		return err
	}
	logger.Infof("Deployed chaincode %s on channel %s", name, channelID)
	return nil
}

// Height returns the number of blocks committed on the channel.
func (gs *Server) Height(channelID string) uint64 {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()
	if ch, ok := gs.channels[channelID]; ok {
		return ch.height
	}
	return 0
}

func (gs *Server) channel(channelID string) (*channel, error) {
	ch, ok := gs.channels[channelID]
	if !ok {
		return nil, errors.Errorf("channel %s not found", channelID)
	}
	return ch, nil
}

// notifyCommit wakes every pending CommitStatus call. Callers hold the mutex.
func (gs *Server) notifyCommit() {
	close(gs.committed)
	gs.committed = make(chan struct{})
}
