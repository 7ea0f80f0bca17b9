/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"github.com/pkg/errors"
)

func (tx *txContext) mint(symbol string) (*Mint, error) {
	key, err := tx.compositeKey(mintObjectType, symbol)
	if err != nil {
		return nil, err
	}
	m := &Mint{}
	found, err := tx.getJSON(key, m)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.WithMessagef(ErrInvalidArgument, "mint %s does not exist", symbol)
	}
	return m, nil
}

func (tx *txContext) createMint(m *Mint) error {
	key, err := tx.compositeKey(mintObjectType, m.Symbol)
	if err != nil {
		return err
	}
	existing, err := tx.getState(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.WithMessagef(ErrAlreadyInitialized, "mint %s already exists", m.Symbol)
	}
	return tx.putJSON(key, m)
}

func (tx *txContext) putMint(m *Mint) error {
	key, err := tx.compositeKey(mintObjectType, m.Symbol)
	if err != nil {
		return err
	}
	return tx.putJSON(key, m)
}

func (tx *txContext) account(symbol, owner string) (*TokenAccount, error) {
	key, err := tx.compositeKey(balanceObjectType, symbol, owner)
	if err != nil {
		return nil, err
	}
	acct := &TokenAccount{Mint: symbol, Owner: owner}
	if _, err := tx.getJSON(key, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (tx *txContext) putAccount(acct *TokenAccount) error {
	key, err := tx.compositeKey(balanceObjectType, acct.Mint, acct.Owner)
	if err != nil {
		return err
	}
	return tx.putJSON(key, acct)
}

func (tx *txContext) balance(symbol, owner string) (uint64, error) {
	acct, err := tx.account(symbol, owner)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

func (tx *txContext) credit(symbol, owner string, amount uint64) error {
	acct, err := tx.account(symbol, owner)
	if err != nil {
		return err
	}
	if acct.Amount, err = addUint64(acct.Amount, amount); err != nil {
		return err
	}
	return tx.putAccount(acct)
}

func (tx *txContext) debit(symbol, owner string, amount uint64) error {
	acct, err := tx.account(symbol, owner)
	if err != nil {
		return err
	}
	if acct.Amount < amount {
		return ErrInsufficientFunds
	}
	acct.Amount -= amount
	return tx.putAccount(acct)
}

func (tx *txContext) transferTokens(symbol, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := tx.debit(symbol, from, amount); err != nil {
		return err
	}
	return tx.credit(symbol, to, amount)
}

// mintTo issues new tokens. authority must match the mint authority.
func (tx *txContext) mintTo(symbol, authority, to string, amount uint64) error {
	m, err := tx.mint(symbol)
	if err != nil {
		return err
	}
	if m.Authority != authority {
		return ErrUnauthorized
	}
	if m.Supply, err = addUint64(m.Supply, amount); err != nil {
		return err
	}
	if err := tx.putMint(m); err != nil {
		return err
	}
	return tx.credit(symbol, to, amount)
}

func (tx *txContext) burnFrom(symbol, from string, amount uint64) error {
	m, err := tx.mint(symbol)
	if err != nil {
		return err
	}
	if err := tx.debit(symbol, from, amount); err != nil {
		return err
	}
	if m.Supply, err = subUint64(m.Supply, amount); err != nil {
		return err
	}
	return tx.putMint(m)
}
