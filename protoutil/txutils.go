/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protoutil

import (
	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

// UnmarshalProposal unmarshals bytes to a Proposal
func UnmarshalProposal(propBytes []byte) (*peer.Proposal, error) {
	prop := &peer.Proposal{}
	err := proto.Unmarshal(propBytes, prop)
	return prop, errors.Wrap(err, "error unmarshaling Proposal")
}

// UnmarshalHeader unmarshals bytes to a Header
func UnmarshalHeader(bytes []byte) (*common.Header, error) {
	hdr := &common.Header{}
	err := proto.Unmarshal(bytes, hdr)
	return hdr, errors.Wrap(err, "error unmarshaling Header")
}

// UnmarshalChannelHeader unmarshals bytes to a ChannelHeader
func UnmarshalChannelHeader(bytes []byte) (*common.ChannelHeader, error) {
	chdr := &common.ChannelHeader{}
	err := proto.Unmarshal(bytes, chdr)
	return chdr, errors.Wrap(err, "error unmarshaling ChannelHeader")
}

// UnmarshalSignatureHeader unmarshals bytes to a SignatureHeader
func UnmarshalSignatureHeader(bytes []byte) (*common.SignatureHeader, error) {
	sh := &common.SignatureHeader{}
	err := proto.Unmarshal(bytes, sh)
	return sh, errors.Wrap(err, "error unmarshaling SignatureHeader")
}

// UnmarshalPayload unmarshals bytes to a Payload
func UnmarshalPayload(encoded []byte) (*common.Payload, error) {
	payload := &common.Payload{}
	err := proto.Unmarshal(encoded, payload)
	return payload, errors.Wrap(err, "error unmarshaling Payload")
}

// UnmarshalTransaction unmarshals bytes to a Transaction
func UnmarshalTransaction(txBytes []byte) (*peer.Transaction, error) {
	tx := &peer.Transaction{}
	err := proto.Unmarshal(txBytes, tx)
	return tx, errors.Wrap(err, "error unmarshaling Transaction")
}

// UnmarshalChaincodeInvocationSpec unmarshals bytes to a ChaincodeInvocationSpec
func UnmarshalChaincodeInvocationSpec(encoded []byte) (*peer.ChaincodeInvocationSpec, error) {
	cis := &peer.ChaincodeInvocationSpec{}
	err := proto.Unmarshal(encoded, cis)
	return cis, errors.Wrap(err, "error unmarshaling ChaincodeInvocationSpec")
}

// GetPayloads gets the underlying payload objects in a TransactionAction
func GetPayloads(txActions *peer.TransactionAction) (*peer.ChaincodeActionPayload, *peer.ChaincodeAction, error) {
	ccPayload := &peer.ChaincodeActionPayload{}
	if err := proto.Unmarshal(txActions.Payload, ccPayload); err != nil {
		return nil, nil, errors.Wrap(err, "error unmarshaling ChaincodeActionPayload")
	}
	if ccPayload.Action == nil || ccPayload.Action.ProposalResponsePayload == nil {
		return nil, nil, errors.New("no payload in ChaincodeActionPayload")
	}
	pRespPayload := &peer.ProposalResponsePayload{}
	if err := proto.Unmarshal(ccPayload.Action.ProposalResponsePayload, pRespPayload); err != nil {
		return nil, nil, errors.Wrap(err, "error unmarshaling ProposalResponsePayload")
	}
	if pRespPayload.Extension == nil {
		return nil, nil, errors.New("response payload is missing extension")
	}
	respPayload := &peer.ChaincodeAction{}
	if err := proto.Unmarshal(pRespPayload.Extension, respPayload); err != nil {
		return ccPayload, nil, errors.Wrap(err, "error unmarshaling ChaincodeAction")
	}
	return ccPayload, respPayload, nil
}

// GetActionFromEnvelopeMsg extracts the chaincode action endorsed into a
// prepared transaction envelope.
func GetActionFromEnvelopeMsg(env *common.Envelope) (*peer.ChaincodeAction, error) {
	if env == nil {
		return nil, errors.New("envelope cannot be nil")
	}
	payl, err := UnmarshalPayload(env.Payload)
	if err != nil {
		return nil, err
	}
	tx, err := UnmarshalTransaction(payl.Data)
	if err != nil {
		return nil, err
	}
	if len(tx.Actions) == 0 {
		return nil, errors.New("at least one TransactionAction required")
	}
	_, respPayload, err := GetPayloads(tx.Actions[0])
	return respPayload, err
}

// GetResponseFromEnvelopeMsg returns the chaincode response carried by a
// prepared transaction.
func GetResponseFromEnvelopeMsg(env *common.Envelope) (*peer.Response, error) {
	action, err := GetActionFromEnvelopeMsg(env)
	if err != nil {
		return nil, err
	}
	if action.Response == nil {
		return nil, errors.New("chaincode action is missing a response")
	}
	return action.Response, nil
}

// SignEnvelope sets the signer's signature over the envelope payload.
func SignEnvelope(env *common.Envelope, signer Signer) error {
	if env == nil {
		return errors.New("envelope cannot be nil")
	}
	if signer == nil {
		return errors.New("signer cannot be nil")
	}
	sig, err := signer.Sign(env.Payload)
	if err != nil {
		return errors.WithMessage(err, "failed signing transaction")
	}
	env.Signature = sig
	return nil
}

// CreateSignedCommitStatusRequest builds a gateway commit status request
// signed by the submitter.
func CreateSignedCommitStatusRequest(channelID, txID string, signer Signer) (*gateway.SignedCommitStatusRequest, error) {
	if signer == nil {
		return nil, errors.New("signer cannot be nil")
	}
	identity, err := signer.Serialize()
	if err != nil {
		return nil, errors.WithMessage(err, "failed serializing signer")
	}
	request, err := proto.Marshal(&gateway.CommitStatusRequest{
		ChannelId:     channelID,
		TransactionId: txID,
		Identity:      identity,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling CommitStatusRequest")
	}
	sig, err := signer.Sign(request)
	if err != nil {
		return nil, errors.WithMessage(err, "failed signing commit status request")
	}
	return &gateway.SignedCommitStatusRequest{Request: request, Signature: sig}, nil
}

// MarshalOrPanic serializes a protobuf message and panics if this
// operation fails
func MarshalOrPanic(pb proto.Message) []byte {
	data, err := proto.Marshal(pb)
	if err != nil {
		panic(err)
	}
	return data
}
