/*
Copyright 2021 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"github.com/golang/protobuf/proto"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/inrcfi/inrc/internal/pkg/identity"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func rpcError(code codes.Code, message string, details ...proto.Message) error {
	st := status.New(code, message)
	if len(details) != 0 {
		dst, err := st.WithDetails(details...)
		if err == nil {
			return dst.Err()
		}
	}
	return st.Err()
}

func (gs *Server) errorDetail(err error) *gp.ErrorDetail {
	return &gp.ErrorDetail{
		Address: gs.options.Address,
		MspId:   gs.options.MSPID,
		Message: err.Error(),
	}
}

// verifySignature checks a signature by the creator of a proposal,
// transaction or commit status request.
func (gs *Server) verifySignature(serializedIdentity, msg, signature []byte) error {
	if gs.options.SkipSignatureCheck {
		return nil
	}
	creator, err := identity.Deserialize(serializedIdentity)
	if err != nil {
		return err
	}
	return creator.Verify(msg, signature)
}
