/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// NonceSize is the number of random bytes in a proposal nonce.
const NonceSize = 24

// Signer signs messages and serializes the identity it signs for.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	Serialize() ([]byte, error)
}

// NewInvocationSpec builds a chaincode invocation for the named function.
// The function name travels as the first argument.
func NewInvocationSpec(chaincode, function string, args ...[]byte) *peer.ChaincodeInvocationSpec {
	input := make([][]byte, 0, len(args)+1)
	input = append(input, []byte(function))
	input = append(input, args...)
	return &peer.ChaincodeInvocationSpec{
		ChaincodeSpec: &peer.ChaincodeSpec{
			Type:        peer.ChaincodeSpec_GOLANG,
			ChaincodeId: &peer.ChaincodeID{Name: chaincode},
			Input:       &peer.ChaincodeInput{Args: input},
		},
	}
}

// CreateChaincodeProposal creates an endorser transaction proposal for the
// invocation. It returns the proposal and its transaction id.
func CreateChaincodeProposal(channelID string, cis *peer.ChaincodeInvocationSpec, creator []byte) (*peer.Proposal, string, error) {
	nonce, err := getRandomNonce()
	if err != nil {
		return nil, "", err
	}
	txid := ComputeTxID(nonce, creator)
	prop, err := createChaincodeProposalWithNonce(txid, channelID, cis, nonce, creator, time.Now())
	if err != nil {
		return nil, "", err
	}
	return prop, txid, nil
}

func createChaincodeProposalWithNonce(txid, channelID string, cis *peer.ChaincodeInvocationSpec, nonce, creator []byte, now time.Time) (*peer.Proposal, error) {
	if cis.GetChaincodeSpec().GetChaincodeId() == nil {
		return nil, errors.New("chaincode invocation spec is missing a chaincode id")
	}
	ccHdrExt, err := proto.Marshal(&peer.ChaincodeHeaderExtension{ChaincodeId: cis.ChaincodeSpec.ChaincodeId})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChaincodeHeaderExtension")
	}
	cisBytes, err := proto.Marshal(cis)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChaincodeInvocationSpec")
	}
	ccPropPayload, err := proto.Marshal(&peer.ChaincodeProposalPayload{Input: cisBytes})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChaincodeProposalPayload")
	}

	channelHeader, err := proto.Marshal(&common.ChannelHeader{
		Type:      int32(common.HeaderType_ENDORSER_TRANSACTION),
		TxId:      txid,
		Timestamp: timestamppb.New(now.UTC()),
		ChannelId: channelID,
		Extension: ccHdrExt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling ChannelHeader")
	}
	signatureHeader, err := proto.Marshal(&common.SignatureHeader{Nonce: nonce, Creator: creator})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling SignatureHeader")
	}
	hdr, err := proto.Marshal(&common.Header{ChannelHeader: channelHeader, SignatureHeader: signatureHeader})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling Header")
	}

	return &peer.Proposal{Header: hdr, Payload: ccPropPayload}, nil
}

// GetSignedProposal signs the proposal bytes with the signer.
func GetSignedProposal(prop *peer.Proposal, signer Signer) (*peer.SignedProposal, error) {
	if prop == nil {
		return nil, errors.New("proposal cannot be nil")
	}
	if signer == nil {
		return nil, errors.New("signer cannot be nil")
	}
	propBytes, err := proto.Marshal(prop)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling proposal")
	}
	signature, err := signer.Sign(propBytes)
	if err != nil {
		return nil, err
	}
	return &peer.SignedProposal{ProposalBytes: propBytes, Signature: signature}, nil
}

// ComputeTxID computes TxID as the Hash computed
// over the concatenation of nonce and creator.
func ComputeTxID(nonce, creator []byte) string {
	hasher := sha256.New()
	hasher.Write(nonce)
	hasher.Write(creator)
	return hex.EncodeToString(hasher.Sum(nil))
}

// CheckTxID checks that txid is equal to the Hash computed
// over the concatenation of nonce and creator.
func CheckTxID(txid string, nonce, creator []byte) error {
	computedTxID := ComputeTxID(nonce, creator)
	if txid != computedTxID {
		return errors.Errorf("invalid txid. got [%s], expected [%s]", txid, computedTxID)
	}
	return nil
}

func getRandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "error getting random bytes")
	}
	return nonce, nil
}
