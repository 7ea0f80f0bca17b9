/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protoutil_test

import (
	"testing"

	cb "github.com/hyperledger/fabric-protos-go/common"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/inrcfi/inrc/protoutil"
	"github.com/stretchr/testify/require"
)

func TestUnpackProposal(t *testing.T) {
	creator := []byte("creator")
	cis := protoutil.NewInvocationSpec("inrc", "depositUsdcAndMintInrc", []byte("1500000000"))
	prop, txid, err := protoutil.CreateChaincodeProposal("vaultchannel", cis, creator)
	require.NoError(t, err)
	sp, err := protoutil.GetSignedProposal(prop, &fakeSigner{})
	require.NoError(t, err)

	up, err := protoutil.UnpackProposal(sp)
	require.NoError(t, err)
	require.Equal(t, txid, up.ChannelHeader.TxId)
	require.Equal(t, "vaultchannel", up.ChannelHeader.ChannelId)
	require.Equal(t, creator, up.SignatureHeader.Creator)
	require.Equal(t, "inrc", up.ChaincodeName())
	require.Equal(t, [][]byte{[]byte("depositUsdcAndMintInrc"), []byte("1500000000")}, up.Args())
	require.Equal(t, sp.Signature, up.Signature)
	require.Equal(t, sp.ProposalBytes, up.ProposalBytes)
}

func TestUnpackProposalErrors(t *testing.T) {
	_, err := protoutil.UnpackProposal(nil)
	require.EqualError(t, err, "a signed proposal is required")

	_, err = protoutil.UnpackProposal(&pb.SignedProposal{ProposalBytes: []byte("garbage")})
	require.Error(t, err)

	hdr := protoutil.MarshalOrPanic(&cb.Header{
		ChannelHeader:   protoutil.MarshalOrPanic(&cb.ChannelHeader{Type: int32(cb.HeaderType_CONFIG), TxId: "tx"}),
		SignatureHeader: protoutil.MarshalOrPanic(&cb.SignatureHeader{Nonce: []byte("n"), Creator: []byte("c")}),
	})
	sp := &pb.SignedProposal{ProposalBytes: protoutil.MarshalOrPanic(&pb.Proposal{Header: hdr})}
	_, err = protoutil.UnpackProposal(sp)
	require.EqualError(t, err, "invalid header type CONFIG")

	hdr = protoutil.MarshalOrPanic(&cb.Header{
		ChannelHeader:   protoutil.MarshalOrPanic(&cb.ChannelHeader{Type: int32(cb.HeaderType_ENDORSER_TRANSACTION), TxId: "forged"}),
		SignatureHeader: protoutil.MarshalOrPanic(&cb.SignatureHeader{Nonce: []byte("n"), Creator: []byte("c")}),
	})
	sp = &pb.SignedProposal{ProposalBytes: protoutil.MarshalOrPanic(&pb.Proposal{Header: hdr})}
	_, err = protoutil.UnpackProposal(sp)
	require.ErrorContains(t, err, "invalid txid. got [forged]")
}

func TestCreateEndorsedTx(t *testing.T) {
	creator := []byte("creator")
	prop, txid, err := protoutil.CreateChaincodeProposal("vaultchannel", protoutil.NewInvocationSpec("inrc", "initialize"), creator)
	require.NoError(t, err)

	response := &pb.Response{Status: 200, Payload: []byte(`{"authority":"alice"}`)}
	prp, err := protoutil.GetBytesProposalResponsePayload(protoutil.GetProposalHash(prop), response, []byte("rwset"), []byte("event"), &pb.ChaincodeID{Name: "inrc"})
	require.NoError(t, err)

	env, err := protoutil.CreateEndorsedTx(prop, prp, &pb.Endorsement{Endorser: []byte("peer0"), Signature: []byte("sig")})
	require.NoError(t, err)
	require.Empty(t, env.Signature)

	action, err := protoutil.GetActionFromEnvelopeMsg(env)
	require.NoError(t, err)
	require.Equal(t, []byte("rwset"), action.Results)
	require.Equal(t, []byte("event"), action.Events)
	require.Equal(t, "inrc", action.ChaincodeId.Name)
	require.Equal(t, response.Payload, action.Response.Payload)

	chdr, shdr, err := protoutil.UnpackEnvelope(env)
	require.NoError(t, err)
	require.Equal(t, txid, chdr.TxId)
	require.Equal(t, creator, shdr.Creator)

	require.NoError(t, protoutil.SignEnvelope(env, &fakeSigner{}))
	require.Equal(t, append([]byte("signed:"), env.Payload...), env.Signature)

	_, err = protoutil.CreateEndorsedTx(nil, prp)
	require.EqualError(t, err, "proposal cannot be nil")
}

func TestUnpackEnvelopeErrors(t *testing.T) {
	_, _, err := protoutil.UnpackEnvelope(nil)
	require.EqualError(t, err, "envelope cannot be nil")

	_, _, err = protoutil.UnpackEnvelope(&cb.Envelope{Payload: protoutil.MarshalOrPanic(&cb.Payload{Data: []byte("tx")})})
	require.EqualError(t, err, "envelope payload is missing a header")
}

func TestGetProposalHash(t *testing.T) {
	a := protoutil.GetProposalHash(&pb.Proposal{Header: []byte("h"), Payload: []byte("p")})
	b := protoutil.GetProposalHash(&pb.Proposal{Header: []byte("h"), Payload: []byte("q")})
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}
