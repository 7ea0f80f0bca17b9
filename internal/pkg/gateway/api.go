/*
Copyright 2021 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"fmt"

	"github.com/golang/protobuf/proto"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/inrcfi/inrc/protoutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Evaluate will invoke the transaction function as specified in the SignedProposal
// and discard its writes.
func (gs *Server) Evaluate(ctx context.Context, request *gp.EvaluateRequest) (*gp.EvaluateResponse, error) {
	if request == nil {
		return nil, status.Error(codes.InvalidArgument, "an evaluate request is required")
	}
	up, err := gs.unpack(request.GetProposedTransaction())
	if err != nil {
		return nil, err
	}

	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	d, err := gs.deployment(up)
	if err != nil {
		return nil, err
	}
	sim := d.simulate(up.ChannelHeader.TxId, up.SignatureHeader.Creator, up.Args(), request.GetProposedTransaction())
	response := sim.response
	if response.Status < 200 || response.Status >= 400 {
		logger.Debugw("Evaluate returned an error response", "chaincode", d.name, "channel", up.ChannelHeader.ChannelId, "txid", up.ChannelHeader.TxId, "status", response.Status, "message", response.Message)
		err := fmt.Errorf("error %d returned from chaincode %s on channel %s: %s", response.Status, d.name, up.ChannelHeader.ChannelId, response.Message)
		return nil, rpcError(codes.Aborted, "evaluate call to endorser returned an error response, see attached details for more info", gs.errorDetail(err))
	}

	logger.Debugw("Evaluate returned success", "chaincode", d.name, "channel", up.ChannelHeader.ChannelId, "txid", up.ChannelHeader.TxId)
	return &gp.EvaluateResponse{Result: response}, nil
}

// Endorse simulates the proposal and returns the transaction envelope for
// the client to sign and submit.
func (gs *Server) Endorse(ctx context.Context, request *gp.EndorseRequest) (*gp.EndorseResponse, error) {
	if request == nil {
		return nil, status.Error(codes.InvalidArgument, "an endorse request is required")
	}
	signedProposal := request.GetProposedTransaction()
	if signedProposal == nil {
		return nil, status.Error(codes.InvalidArgument, "the proposed transaction must contain a signed proposal")
	}
	up, err := gs.unpack(signedProposal)
	if err != nil {
		return nil, err
	}
	txID := up.ChannelHeader.TxId
	if request.TransactionId != "" && request.TransactionId != txID {
		return nil, status.Errorf(codes.InvalidArgument, "transaction id %s does not match proposal %s", request.TransactionId, txID)
	}

	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	d, err := gs.deployment(up)
	if err != nil {
		return nil, err
	}
	ch := gs.channels[up.ChannelHeader.ChannelId]
	if ch.seen(txID) {
		return nil, status.Errorf(codes.AlreadyExists, "duplicate transaction found [%s]", txID)
	}

	sim := d.simulate(txID, up.SignatureHeader.Creator, up.Args(), signedProposal)
	response := sim.response
	if response.Status < 200 || response.Status >= 400 {
		logger.Debugw("Endorse returned an error response", "chaincode", d.name, "channel", ch.id, "txid", txID, "status", response.Status, "message", response.Message)
		err := fmt.Errorf("error %d, %s", response.Status, response.Message)
		return nil, rpcError(codes.Aborted, "failed to endorse transaction, see attached details for more info", gs.errorDetail(err))
	}

	var eventBytes []byte
	if sim.event != nil {
		sim.event.TxId = txID
		sim.event.ChaincodeId = d.name
		if eventBytes, err = proto.Marshal(sim.event); err != nil {
			return nil, status.Errorf(codes.Internal, "failed to marshal chaincode event: %s", err)
		}
	}
	prp, err := protoutil.GetBytesProposalResponsePayload(protoutil.GetProposalHash(up.Proposal), response, nil, eventBytes, up.Input.ChaincodeSpec.ChaincodeId)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%s", err)
	}
	endorsed, err := gs.endorse(prp)
	if err != nil {
		return nil, rpcError(codes.Aborted, "failed to endorse transaction, see attached details for more info", gs.errorDetail(err))
	}
	env, err := protoutil.CreateEndorsedTx(up.Proposal, prp, endorsed)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to assemble transaction: %s", err)
	}

	ch.pending[txID] = &endorsement{
		chaincode:   d.name,
		readVersion: sim.version,
		writes:      sim.writes,
		payload:     env.Payload,
	}
	logger.Debugw("Endorse succeeded", "chaincode", d.name, "channel", ch.id, "txid", txID)
	return &gp.EndorseResponse{PreparedTransaction: env}, nil
}

// Submit orders the signed transaction into its own block and commits it.
func (gs *Server) Submit(ctx context.Context, request *gp.SubmitRequest) (*gp.SubmitResponse, error) {
	if request == nil {
		return nil, status.Error(codes.InvalidArgument, "a submit request is required")
	}
	txn := request.GetPreparedTransaction()
	if txn == nil {
		return nil, status.Error(codes.InvalidArgument, "a prepared transaction is required")
	}
	chdr, shdr, err := protoutil.UnpackEnvelope(txn)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to unpack transaction: %s", err)
	}
	if request.TransactionId != "" && request.TransactionId != chdr.TxId {
		return nil, status.Errorf(codes.InvalidArgument, "transaction id %s does not match envelope %s", request.TransactionId, chdr.TxId)
	}
	if err := gs.verifySignature(shdr.Creator, txn.Payload, txn.Signature); err != nil {
		return nil, rpcError(codes.Aborted, "no orderers could successfully process transaction", gs.errorDetail(err))
	}

	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	ch, err := gs.channel(chdr.ChannelId)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "%s", err)
	}
	if _, ok := ch.statuses[chdr.TxId]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "duplicate transaction found [%s]", chdr.TxId)
	}
	code := ch.commit(chdr.TxId, txn.Payload)
	gs.notifyCommit()

	logger.Infow("Committed transaction", "channel", ch.id, "txid", chdr.TxId, "block", ch.height-1, "code", code.String())
	return &gp.SubmitResponse{}, nil
}

func (gs *Server) unpack(signedProposal *peer.SignedProposal) (*protoutil.UnpackedProposal, error) {
	up, err := protoutil.UnpackProposal(signedProposal)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to unpack transaction proposal: %s", err)
	}
	if err := gs.verifySignature(up.SignatureHeader.Creator, up.ProposalBytes, up.Signature); err != nil {
		return nil, status.Errorf(codes.PermissionDenied, "access denied: %s", err)
	}
	return up, nil
}

// deployment resolves the invoked chaincode. Callers hold the mutex.
func (gs *Server) deployment(up *protoutil.UnpackedProposal) (*deployment, error) {
	ch, err := gs.channel(up.ChannelHeader.ChannelId)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "%s", err)
	}
	d, err := ch.chaincode(up.ChaincodeName())
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "%s", err)
	}
	return d, nil
}

func (gs *Server) endorse(prp []byte) (*peer.Endorsement, error) {
	if gs.options.Signer == nil {
		return &peer.Endorsement{}, nil
	}
	endorser, err := gs.options.Signer.Serialize()
	if err != nil {
		return nil, err
	}
	signature, err := gs.options.Signer.Sign(append(append([]byte{}, prp...), endorser...))
	if err != nil {
		return nil, err
	}
	return &peer.Endorsement{Endorser: endorser, Signature: signature}, nil
}
