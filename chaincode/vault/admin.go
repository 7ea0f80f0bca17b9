/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"strconv"

	"github.com/pkg/errors"
)

func initialize(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	return tx.initialize(signer, signer)
}

// initializeConfig optionally names a USDC mint authority other than the
// submitter.
func initializeConfig(tx *txContext, args []string) ([]byte, error) {
	if len(args) > 1 {
		return nil, errors.WithMessagef(ErrInvalidArgument, "incorrect number of arguments: expecting at most 1, got %d", len(args))
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	usdcAuthority := signer
	if len(args) == 1 && args[0] != "" {
		usdcAuthority = args[0]
	}
	return tx.initialize(signer, usdcAuthority)
}

func (tx *txContext) initialize(authority, usdcAuthority string) ([]byte, error) {
	existing, err := tx.getState(configKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyInitialized
	}

	cfg := DefaultConfig(authority)
	if err := tx.createMint(&Mint{Symbol: cfg.InrcMint, Decimals: MintDecimals, Authority: cfg.TreasuryAuthority}); err != nil {
		return nil, err
	}
	if err := tx.createMint(&Mint{Symbol: cfg.UsdcMint, Decimals: UsdcDecimals, Authority: usdcAuthority}); err != nil {
		return nil, err
	}
	if err := tx.putJSON(configKey, cfg); err != nil {
		return nil, err
	}

	logger.Infof("Initializing config, authority %s", authority)
	if err := tx.setEvent(EventConfigInitialized, cfg); err != nil {
		return nil, err
	}
	return marshal(cfg)
}

func updateConfig(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	update, err := parseConfigUpdate(args[0])
	if err != nil {
		return nil, err
	}
	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	if signer != cfg.Authority {
		return nil, ErrUnauthorized
	}

	update.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := tx.putJSON(configKey, cfg); err != nil {
		return nil, err
	}
	if err := tx.setEvent(EventConfigUpdated, cfg); err != nil {
		return nil, err
	}
	return marshal(cfg)
}

// publishPrice args: feedID, price, expo, conf, publishTime (unix seconds).
func publishPrice(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 5); err != nil {
		return nil, err
	}
	feed := &PriceFeed{ID: args[0]}
	var err error
	if feed.Price, err = strconv.ParseInt(args[1], 10, 64); err != nil {
		return nil, errors.WithMessagef(ErrInvalidArgument, "price %q is not an integer", args[1])
	}
	expo, err := strconv.ParseInt(args[2], 10, 32)
	if err != nil {
		return nil, errors.WithMessagef(ErrInvalidArgument, "exponent %q is not an integer", args[2])
	}
	feed.Expo = int32(expo)
	if feed.Conf, err = strconv.ParseUint(args[3], 10, 64); err != nil {
		return nil, errors.WithMessagef(ErrInvalidArgument, "confidence %q is not an unsigned integer", args[3])
	}
	if feed.PublishTime, err = strconv.ParseInt(args[4], 10, 64); err != nil {
		return nil, errors.WithMessagef(ErrInvalidArgument, "publish time %q is not an integer", args[4])
	}
	if feed.ID == "" {
		return nil, errors.WithMessage(ErrInvalidArgument, "feed id must be set")
	}
	if _, err := scalePrice(feed.Price, feed.Expo, TargetPriceDecimals); err != nil {
		return nil, err
	}

	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	if signer != cfg.OracleAuthority {
		return nil, ErrUnauthorized
	}
	// a future dated observation would stay fresh and block corrections
	now, err := tx.now()
	if err != nil {
		return nil, err
	}
	if feed.PublishTime > now.Unix()+int64(cfg.MaxPriceAge) {
		return nil, errors.WithMessagef(ErrInvalidArgument, "publish time %d is more than %ds ahead of transaction time %d", feed.PublishTime, cfg.MaxPriceAge, now.Unix())
	}

	previous, found, err := tx.priceFeed(feed.ID)
	if err != nil {
		return nil, err
	}
	if found && previous.PublishTime > feed.PublishTime {
		return nil, errors.WithMessagef(ErrInvalidArgument, "publish time %d precedes stored observation at %d", feed.PublishTime, previous.PublishTime)
	}

	if err := tx.putPriceFeed(feed); err != nil {
		return nil, err
	}
	if err := tx.setEvent(EventPriceUpdated, feed); err != nil {
		return nil, err
	}
	return marshal(feed)
}

func mintUsdc(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 2); err != nil {
		return nil, err
	}
	recipient := args[0]
	amount, err := parseAmount(args[1])
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if recipient == "" || recipient == TreasuryAccount {
		return nil, errors.WithMessagef(ErrInvalidArgument, "invalid recipient %q", recipient)
	}

	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	if err := tx.mintTo(cfg.UsdcMint, signer, recipient, amount); err != nil {
		return nil, err
	}
	if err := tx.setEvent(EventTokensMinted, &TransferEvent{Mint: cfg.UsdcMint, From: signer, To: recipient, Amount: amount}); err != nil {
		return nil, err
	}
	return tx.accountJSON(cfg.UsdcMint, recipient)
}

// transfer args: symbol, recipient, amount.
func transfer(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 3); err != nil {
		return nil, err
	}
	symbol, recipient := args[0], args[1]
	amount, err := parseAmount(args[2])
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if recipient == "" || recipient == TreasuryAccount {
		return nil, errors.WithMessagef(ErrInvalidArgument, "invalid recipient %q", recipient)
	}
	if _, err := tx.mint(symbol); err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	if err := tx.transferTokens(symbol, signer, recipient, amount); err != nil {
		return nil, err
	}
	if err := tx.setEvent(EventTokensTransferred, &TransferEvent{Mint: symbol, From: signer, To: recipient, Amount: amount}); err != nil {
		return nil, err
	}
	return tx.accountJSON(symbol, signer)
}
