/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package vaultclient is a typed client for the vault chaincode.
package vaultclient

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/inrcfi/inrc/pkg/program"
	pkgerrors "github.com/pkg/errors"
)

// Committed is the decoded result of a committed transaction.
type Committed[T any] struct {
	TxID        string
	BlockNumber uint64
	Value       T
}

// Client invokes vault functions through a program handle.
type Client struct {
	program *program.Program
}

func New(p *program.Program) *Client {
	return &Client{program: p}
}

func (c *Client) Program() *program.Program {
	return c.program
}

// Initialize creates the vault configuration with the submitter as
// authority.
func (c *Client) Initialize(ctx context.Context) (*Committed[*vault.Config], error) {
	return submit[*vault.Config](ctx, c.program.Method("initialize"))
}

// InitializeConfig is Initialize with a separate USDC mint authority. An
// empty authority keeps the submitter.
func (c *Client) InitializeConfig(ctx context.Context, usdcMintAuthority string) (*Committed[*vault.Config], error) {
	return submit[*vault.Config](ctx, c.program.Method("initializeConfig", usdcMintAuthority))
}

func (c *Client) UpdateConfig(ctx context.Context, update *vault.ConfigUpdate) (*Committed[*vault.Config], error) {
	raw, err := json.Marshal(update)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal config update")
	}
	return submit[*vault.Config](ctx, c.program.Method("updateConfig", string(raw)))
}

func (c *Client) PublishPrice(ctx context.Context, feed *vault.PriceFeed) (*Committed[*vault.PriceFeed], error) {
	return submit[*vault.PriceFeed](ctx, c.program.Method("publishPrice",
		feed.ID,
		strconv.FormatInt(feed.Price, 10),
		strconv.FormatInt(int64(feed.Expo), 10),
		strconv.FormatUint(feed.Conf, 10),
		strconv.FormatInt(feed.PublishTime, 10),
	))
}

func (c *Client) MintUsdc(ctx context.Context, recipient string, amount uint64) (*Committed[*vault.TokenAccount], error) {
	return submit[*vault.TokenAccount](ctx, c.program.Method("mintUsdc", recipient, formatAmount(amount)))
}

// Transfer returns the sender's account after the transfer.
func (c *Client) Transfer(ctx context.Context, symbol, recipient string, amount uint64) (*Committed[*vault.TokenAccount], error) {
	return submit[*vault.TokenAccount](ctx, c.program.Method("transfer", symbol, recipient, formatAmount(amount)))
}

// Deposit locks amount USDC and mints INRC up to the minimum health factor.
func (c *Client) Deposit(ctx context.Context, amount uint64) (*Committed[*vault.UserCollateral], error) {
	return submit[*vault.UserCollateral](ctx, c.program.Method("depositUsdcAndMintInrc", formatAmount(amount)))
}

// Burn repays amount INRC and releases the matching USDC.
func (c *Client) Burn(ctx context.Context, amount uint64) (*Committed[*vault.UserCollateral], error) {
	return submit[*vault.UserCollateral](ctx, c.program.Method("burnInrcAndWithdrawUsdc", formatAmount(amount)))
}

func (c *Client) WithdrawCollateral(ctx context.Context, amount uint64) (*Committed[*vault.UserCollateral], error) {
	return submit[*vault.UserCollateral](ctx, c.program.Method("withdrawCollateral", formatAmount(amount)))
}

// Liquidate repays amount INRC of user's debt. The returned collateral is
// the liquidated position.
func (c *Client) Liquidate(ctx context.Context, user string, amount uint64) (*Committed[*vault.UserCollateral], error) {
	return submit[*vault.UserCollateral](ctx, c.program.Method("liquidate", user, formatAmount(amount)))
}

func (c *Client) Config(ctx context.Context) (*vault.Config, error) {
	return view[*vault.Config](ctx, c.program.Method("getConfig"))
}

func (c *Client) Mint(ctx context.Context, symbol string) (*vault.Mint, error) {
	return view[*vault.Mint](ctx, c.program.Method("getMint", symbol))
}

// Price returns the stored oracle observation. An empty feedID selects the
// configured feed.
func (c *Client) Price(ctx context.Context, feedID string) (*vault.PriceFeed, error) {
	return view[*vault.PriceFeed](ctx, c.program.Method("getPrice", feedID))
}

// Collateral returns owner's position. An empty owner is the submitter.
func (c *Client) Collateral(ctx context.Context, owner string) (*vault.UserCollateral, error) {
	return view[*vault.UserCollateral](ctx, c.program.Method("getCollateral", owner))
}

func (c *Client) HealthFactor(ctx context.Context, owner string) (*vault.HealthReport, error) {
	return view[*vault.HealthReport](ctx, c.program.Method("healthFactor", owner))
}

func (c *Client) Balance(ctx context.Context, symbol, owner string) (*vault.TokenAccount, error) {
	return view[*vault.TokenAccount](ctx, c.program.Method("balanceOf", symbol, owner))
}

func (c *Client) Positions(ctx context.Context) ([]vault.Position, error) {
	return view[[]vault.Position](ctx, c.program.Method("listPositions"))
}

// AccountID returns the account the submitting identity maps to.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	payload, err := c.program.Method("clientAccountID").View(ctx)
	if err != nil {
		return "", wrap(err)
	}
	return string(payload), nil
}

func submit[T any](ctx context.Context, call *program.Call) (*Committed[T], error) {
	res, err := call.Invoke(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	committed := &Committed[T]{TxID: res.TxID, BlockNumber: res.BlockNumber}
	if err := json.Unmarshal(res.Payload, &committed.Value); err != nil {
		return committed, pkgerrors.Wrapf(err, "failed to decode result of transaction %s", res.TxID)
	}
	return committed, nil
}

func view[T any](ctx context.Context, call *program.Call) (T, error) {
	var value T
	payload, err := call.View(ctx)
	if err != nil {
		return value, wrap(err)
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, pkgerrors.Wrap(err, "failed to decode query result")
	}
	return value, nil
}

func formatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

// contractFailure carries the vault error decoded from a gateway error
// alongside the gateway error itself.
type contractFailure struct {
	contract *vault.ContractError
	err      error
}

func (e *contractFailure) Error() string {
	return e.err.Error()
}

func (e *contractFailure) Unwrap() []error {
	return []error{e.contract, e.err}
}

func wrap(err error) error {
	if ce, ok := vault.ParseError(err.Error()); ok {
		return &contractFailure{contract: ce, err: err}
	}
	return err
}

// ContractError extracts the vault error that rejected a call.
func ContractError(err error) (*vault.ContractError, bool) {
	var ce *vault.ContractError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
