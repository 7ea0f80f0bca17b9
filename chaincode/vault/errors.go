/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"fmt"
	"regexp"
	"strconv"
)

// Code identifies a vault failure. Codes start at 6000 so that clients can
// tell contract rejections apart from shim or peer errors.
type Code uint32

const (
	CodeAboveMinHealthFactor Code = 6000 + iota
	CodeBelowMinHealthFactor
	CodeInvalidPrice
	CodeLiquidationAmountTooHigh
	CodeInsufficientCollateralForLiquidation
	CodeInvalidAmount
	CodeUnauthorized
	CodeInsufficientFunds
	CodeArithmeticOverflow
	CodeAlreadyInitialized
	CodeNotInitialized
	CodeInvalidArgument
)

// ContractError is returned by every vault operation that rejects a
// transaction for a business reason.
type ContractError struct {
	Code Code
	Name string
	Msg  string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s (%s, %d)", e.Msg, e.Name, e.Code)
}

// Is matches on the code so that wrapped and re-created errors compare equal.
func (e *ContractError) Is(target error) bool {
	t, ok := target.(*ContractError)
	return ok && t.Code == e.Code
}

func newContractError(code Code, name, msg string) *ContractError {
	return &ContractError{Code: code, Name: name, Msg: msg}
}

var (
	ErrAboveMinHealthFactor                 = newContractError(CodeAboveMinHealthFactor, "AboveMinHealthFactor", "Above minimum health factor")
	ErrBelowMinHealthFactor                 = newContractError(CodeBelowMinHealthFactor, "BelowMinHealthFactor", "Below minimum health factor")
	ErrInvalidPrice                         = newContractError(CodeInvalidPrice, "InvalidPrice", "Price feed not found")
	ErrLiquidationAmountTooHigh             = newContractError(CodeLiquidationAmountTooHigh, "LiquidationAmountTooHigh", "Amount to burn is greater than amount minted")
	ErrInsufficientCollateralForLiquidation = newContractError(CodeInsufficientCollateralForLiquidation, "InsufficientCollateralForLiquidation", "Insufficient collateral to cover liquidation amount")
	ErrInvalidAmount                        = newContractError(CodeInvalidAmount, "InvalidAmount", "Invalid amount provided. Amount must be greater than zero.")
	ErrUnauthorized                         = newContractError(CodeUnauthorized, "Unauthorized", "Unauthorized")
	ErrInsufficientFunds                    = newContractError(CodeInsufficientFunds, "InsufficientFunds", "Insufficient funds")
	ErrArithmeticOverflow                   = newContractError(CodeArithmeticOverflow, "ArithmeticOverflow", "Price Overflow")
	ErrAlreadyInitialized                   = newContractError(CodeAlreadyInitialized, "AlreadyInitialized", "Vault is already initialized")
	ErrNotInitialized                       = newContractError(CodeNotInitialized, "NotInitialized", "Vault is not initialized")
	ErrInvalidArgument                      = newContractError(CodeInvalidArgument, "InvalidArgument", "Invalid argument")
)

var errorsByCode = map[Code]*ContractError{}

func init() {
	for _, e := range []*ContractError{
		ErrAboveMinHealthFactor,
		ErrBelowMinHealthFactor,
		ErrInvalidPrice,
		ErrLiquidationAmountTooHigh,
		ErrInsufficientCollateralForLiquidation,
		ErrInvalidAmount,
		ErrUnauthorized,
		ErrInsufficientFunds,
		ErrArithmeticOverflow,
		ErrAlreadyInitialized,
		ErrNotInitialized,
		ErrInvalidArgument,
	} {
		errorsByCode[e.Code] = e
	}
}

// LookupCode returns the canonical error for a code, if any.
func LookupCode(code Code) (*ContractError, bool) {
	e, ok := errorsByCode[code]
	return e, ok
}

var codeSuffix = regexp.MustCompile(`\((\w+), (\d+)\)\s*$`)

// ParseError recovers the contract error carried in a chaincode response
// message, such as the message of a failed endorsement.
func ParseError(message string) (*ContractError, bool) {
	m := codeSuffix.FindStringSubmatch(message)
	if m == nil {
		return nil, false
	}
	n, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return nil, false
	}
	e, ok := LookupCode(Code(n))
	if !ok || e.Name != m[1] {
		return nil, false
	}
	return e, true
}
