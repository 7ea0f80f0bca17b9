/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// HealthReport is returned by the healthFactor query. Infinite is set for
// positions without debt.
type HealthReport struct {
	Owner        string `json:"owner"`
	HealthFactor uint64 `json:"healthFactor"`
	Infinite     bool   `json:"infinite"`
	Liquidatable bool   `json:"liquidatable"`
}

func getConfig(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	return marshal(cfg)
}

func getMint(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	m, err := tx.mint(args[0])
	if err != nil {
		return nil, err
	}
	return marshal(m)
}

func getPrice(tx *txContext, args []string) ([]byte, error) {
	feedID, err := tx.feedArg(args)
	if err != nil {
		return nil, err
	}
	feed, found, err := tx.priceFeed(feedID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidPrice
	}
	return marshal(feed)
}

// getCollateral args: [owner]. The owner defaults to the submitter.
func getCollateral(tx *txContext, args []string) ([]byte, error) {
	owner, err := tx.ownerArg(args, 0)
	if err != nil {
		return nil, err
	}
	uc, found, err := tx.collateral(owner)
	if err != nil {
		return nil, err
	}
	if !found {
		uc = &UserCollateral{Depositor: owner}
	}
	return marshal(uc)
}

func healthFactorQuery(tx *txContext, args []string) ([]byte, error) {
	owner, err := tx.ownerArg(args, 0)
	if err != nil {
		return nil, err
	}
	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	uc, _, err := tx.collateral(owner)
	if err != nil {
		return nil, err
	}
	report := &HealthReport{Owner: owner, HealthFactor: math.MaxUint64, Infinite: true}
	if uc.InrcMinted > 0 {
		price, err := tx.currentPrice(cfg)
		if err != nil {
			return nil, err
		}
		if report.HealthFactor, err = healthFactor(uc.UsdcDeposit, uc.InrcMinted, price); err != nil {
			return nil, err
		}
		report.Infinite = false
		report.Liquidatable = report.HealthFactor < cfg.LiquidationThreshold
	}
	return marshal(report)
}

// balanceOf args: symbol, [owner].
func balanceOf(tx *txContext, args []string) ([]byte, error) {
	if len(args) < 1 {
		return nil, errors.WithMessage(ErrInvalidArgument, "incorrect number of arguments: expecting symbol and optional owner")
	}
	owner, err := tx.ownerArg(args, 1)
	if err != nil {
		return nil, err
	}
	if _, err := tx.mint(args[0]); err != nil {
		return nil, err
	}
	return tx.accountJSON(args[0], owner)
}

// listPositions returns every collateral account with its health at the
// current oracle price.
func listPositions(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	price, err := tx.currentPrice(cfg)
	if err != nil {
		return nil, err
	}

	iter, err := tx.stub.GetStateByPartialCompositeKey(collateralObjectType, []string{})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query collateral accounts")
	}
	defer iter.Close()

	positions := []Position{}
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to iterate collateral accounts")
		}
		p := Position{}
		if err := json.Unmarshal(kv.Value, &p.UserCollateral); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal collateral account %s", kv.Key)
		}
		if p.HealthFactor, err = healthFactor(p.UsdcDeposit, p.InrcMinted, price); err != nil {
			return nil, err
		}
		p.Liquidatable = p.InrcMinted > 0 && p.HealthFactor < cfg.LiquidationThreshold
		positions = append(positions, p)
	}
	return marshal(positions)
}

func clientAccountID(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	id, err := tx.caller()
	if err != nil {
		return nil, err
	}
	return []byte(id), nil
}

func (tx *txContext) accountJSON(symbol, owner string) ([]byte, error) {
	acct, err := tx.account(symbol, owner)
	if err != nil {
		return nil, err
	}
	return marshal(acct)
}

func (tx *txContext) ownerArg(args []string, i int) (string, error) {
	if len(args) > i+1 {
		return "", errors.WithMessagef(ErrInvalidArgument, "incorrect number of arguments: expecting at most %d, got %d", i+1, len(args))
	}
	if len(args) == i+1 && args[i] != "" {
		return args[i], nil
	}
	return tx.caller()
}

func (tx *txContext) feedArg(args []string) (string, error) {
	if len(args) > 1 {
		return "", errors.WithMessagef(ErrInvalidArgument, "incorrect number of arguments: expecting at most 1, got %d", len(args))
	}
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	cfg, err := tx.config()
	if err != nil {
		return "", err
	}
	return cfg.PriceFeedID, nil
}
