/*
Copyright 2021 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"

	"github.com/golang/protobuf/proto"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CommitStatus returns the validation code for a specific transaction on a specific channel. If the transaction is
// already committed, the status will be returned immediately; otherwise this call will block and return only when
// the transaction commits or the context is cancelled.
func (gs *Server) CommitStatus(ctx context.Context, signedRequest *gp.SignedCommitStatusRequest) (*gp.CommitStatusResponse, error) {
	if len(signedRequest.GetRequest()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "a commit status request is required")
	}

	request := &gp.CommitStatusRequest{}
	if err := proto.Unmarshal(signedRequest.GetRequest(), request); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid status request: %v", err)
	}
	if err := gs.verifySignature(request.GetIdentity(), signedRequest.GetRequest(), signedRequest.GetSignature()); err != nil {
		return nil, status.Error(codes.PermissionDenied, err.Error())
	}

	for {
		gs.mutex.Lock()
		ch, err := gs.channel(request.GetChannelId())
		if err != nil {
			gs.mutex.Unlock()
			return nil, status.Errorf(codes.FailedPrecondition, "%s", err)
		}
		txStatus, ok := ch.statuses[request.GetTransactionId()]
		committed := gs.committed
		gs.mutex.Unlock()

		if ok {
			return &gp.CommitStatusResponse{
				Result:      txStatus.code,
				BlockNumber: txStatus.blockNumber,
			}, nil
		}

		select {
		case <-committed:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
}
