/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package program

import (
	"fmt"
	"strings"

	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/grpc/status"
)

// Request stages reported in errors and metrics.
const (
	StageEvaluate     = "evaluate"
	StageEndorse      = "endorse"
	StageSubmit       = "submit"
	StageCommitStatus = "commit status"
)

// TransactionError is a failed gateway request. The message includes the
// details reported by each endorsing peer so that the chaincode message is
// the last thing in it.
type TransactionError struct {
	Stage string
	TxID  string
	Err   error
}

func (e *TransactionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed for transaction %s: ", e.Stage, e.TxID)
	st, ok := status.FromError(e.Err)
	if !ok {
		b.WriteString(e.Err.Error())
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %s", st.Code(), st.Message())
	for _, d := range e.Details() {
		fmt.Fprintf(&b, "; %s (%s): %s", d.Address, d.MspId, d.Message)
	}
	return b.String()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// GRPCStatus exposes the gateway status so that status.Code works on the
// wrapped error.
func (e *TransactionError) GRPCStatus() *status.Status {
	st, _ := status.FromError(e.Err)
	return st
}

// Details returns the per peer error details attached by the gateway.
func (e *TransactionError) Details() []*gp.ErrorDetail {
	st, ok := status.FromError(e.Err)
	if !ok {
		return nil
	}
	var details []*gp.ErrorDetail
	for _, d := range st.Details() {
		if detail, ok := d.(*gp.ErrorDetail); ok {
			details = append(details, detail)
		}
	}
	return details
}

// CommitError reports a transaction that was ordered but invalidated.
type CommitError struct {
	TxID string
	Code peer.TxValidationCode
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("transaction %s failed to commit with status code %d (%s)", e.TxID, int32(e.Code), e.Code)
}
