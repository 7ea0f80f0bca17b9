/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protoutil

import (
	"crypto/sha256"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

// UnpackedProposal holds the decoded parts of a signed proposal.
type UnpackedProposal struct {
	Proposal        *peer.Proposal
	ChannelHeader   *common.ChannelHeader
	SignatureHeader *common.SignatureHeader
	Input           *peer.ChaincodeInvocationSpec
	Signature       []byte
	ProposalBytes   []byte
}

// ChaincodeName returns the name of the invoked chaincode.
func (up *UnpackedProposal) ChaincodeName() string {
	return up.Input.GetChaincodeSpec().GetChaincodeId().GetName()
}

// Args returns the invocation arguments, function name first.
func (up *UnpackedProposal) Args() [][]byte {
	return up.Input.GetChaincodeSpec().GetInput().GetArgs()
}

// UnpackProposal decodes a signed endorser transaction proposal and checks
// its transaction id.
func UnpackProposal(signedProp *peer.SignedProposal) (*UnpackedProposal, error) {
	if signedProp == nil {
		return nil, errors.New("a signed proposal is required")
	}
	prop, err := UnmarshalProposal(signedProp.ProposalBytes)
	if err != nil {
		return nil, err
	}
	hdr, err := UnmarshalHeader(prop.Header)
	if err != nil {
		return nil, err
	}
	chdr, err := UnmarshalChannelHeader(hdr.ChannelHeader)
	if err != nil {
		return nil, err
	}
	if chdr.Type != int32(common.HeaderType_ENDORSER_TRANSACTION) {
		return nil, errors.Errorf("invalid header type %s", common.HeaderType(chdr.Type))
	}
	shdr, err := UnmarshalSignatureHeader(hdr.SignatureHeader)
	if err != nil {
		return nil, err
	}
	if err := CheckTxID(chdr.TxId, shdr.Nonce, shdr.Creator); err != nil {
		return nil, err
	}
	cpp, err := UnmarshalChaincodeProposalPayload(prop.Payload)
	if err != nil {
		return nil, err
	}
	cis, err := UnmarshalChaincodeInvocationSpec(cpp.Input)
	if err != nil {
		return nil, err
	}
	if cis.GetChaincodeSpec().GetChaincodeId().GetName() == "" {
		return nil, errors.New("chaincode name is missing from the proposal")
	}

	return &UnpackedProposal{
		Proposal:        prop,
		ChannelHeader:   chdr,
		SignatureHeader: shdr,
		Input:           cis,
		Signature:       signedProp.Signature,
		ProposalBytes:   signedProp.ProposalBytes,
	}, nil
}

// UnmarshalChaincodeProposalPayload unmarshals bytes to a ChaincodeProposalPayload
func UnmarshalChaincodeProposalPayload(bytes []byte) (*peer.ChaincodeProposalPayload, error) {
	cpp := &peer.ChaincodeProposalPayload{}
	err := proto.Unmarshal(bytes, cpp)
	return cpp, errors.Wrap(err, "error unmarshaling ChaincodeProposalPayload")
}

// GetProposalHash hashes the proposal header and payload the endorsement
// is bound to.
func GetProposalHash(prop *peer.Proposal) []byte {
	hash := sha256.New()
	hash.Write(prop.Header)
	hash.Write(prop.Payload)
	return hash.Sum(nil)
}

// GetBytesProposalResponsePayload gets proposal response payload
func GetBytesProposalResponsePayload(hash []byte, response *peer.Response, result []byte, event []byte, ccid *peer.ChaincodeID) ([]byte, error) {
	cAct := &peer.ChaincodeAction{
		Events: event, Results: result,
		Response:    response,
		ChaincodeId: ccid,
	}
	cActBytes, err := proto.Marshal(cAct)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChaincodeAction")
	}

	prp := &peer.ProposalResponsePayload{
		Extension:    cActBytes,
		ProposalHash: hash,
	}
	prpBytes, err := proto.Marshal(prp)
	return prpBytes, errors.Wrap(err, "error marshaling ProposalResponsePayload")
}

// CreateEndorsedTx assembles the unsigned transaction envelope for an
// endorsed proposal. The submitter signs the returned envelope.
func CreateEndorsedTx(prop *peer.Proposal, prpBytes []byte, endorsements ...*peer.Endorsement) (*common.Envelope, error) {
	if prop == nil {
		return nil, errors.New("proposal cannot be nil")
	}
	hdr, err := UnmarshalHeader(prop.Header)
	if err != nil {
		return nil, err
	}
	cpp, err := UnmarshalChaincodeProposalPayload(prop.Payload)
	if err != nil {
		return nil, err
	}
	// transient data never reaches the ledger
	cppNoTransient, err := proto.Marshal(&peer.ChaincodeProposalPayload{Input: cpp.Input})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChaincodeProposalPayload")
	}
	capBytes, err := proto.Marshal(&peer.ChaincodeActionPayload{
		ChaincodeProposalPayload: cppNoTransient,
		Action: &peer.ChaincodeEndorsedAction{
			ProposalResponsePayload: prpBytes,
			Endorsements:            endorsements,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChaincodeActionPayload")
	}
	txBytes, err := proto.Marshal(&peer.Transaction{
		Actions: []*peer.TransactionAction{{Header: hdr.SignatureHeader, Payload: capBytes}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling Transaction")
	}
	payload, err := proto.Marshal(&common.Payload{Header: hdr, Data: txBytes})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling Payload")
	}
	return &common.Envelope{Payload: payload}, nil
}

// UnpackEnvelope returns the channel and signature headers of a
// transaction envelope.
func UnpackEnvelope(env *common.Envelope) (*common.ChannelHeader, *common.SignatureHeader, error) {
	if env == nil {
		return nil, nil, errors.New("envelope cannot be nil")
	}
	payl, err := UnmarshalPayload(env.Payload)
	if err != nil {
		return nil, nil, err
	}
	if payl.Header == nil {
		return nil, nil, errors.New("envelope payload is missing a header")
	}
	chdr, err := UnmarshalChannelHeader(payl.Header.ChannelHeader)
	if err != nil {
		return nil, nil, err
	}
	shdr, err := UnmarshalSignatureHeader(payl.Header.SignatureHeader)
	if err != nil {
		return nil, nil, err
	}
	return chdr, shdr, nil
}
