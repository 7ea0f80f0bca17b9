/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"math"
)

// priceScale is 10^TargetPriceDecimals.
var priceScale = func() wide {
	w, err := pow10(uint(TargetPriceDecimals))
	if err != nil {
		panic(err)
	}
	return w
}()

// inrValue converts USDC base units into INRC base units. Both tokens use
// six decimals so only the price scale is removed.
func inrValue(usdc uint64, price wide) (wide, error) {
	v, err := widen(usdc).mul(price)
	if err != nil {
		return wide{}, err
	}
	return v.div(priceScale)
}

// usdcFor converts INRC base units into USDC base units, applying a
// percentage premium (100 for none).
func usdcFor(inrc, premiumPct uint64, price wide) (uint64, error) {
	v, err := widen(inrc).mulUint(premiumPct)
	if err != nil {
		return 0, err
	}
	if v, err = v.mul(priceScale); err != nil {
		return 0, err
	}
	if v, err = v.divUint(100); err != nil {
		return 0, err
	}
	if v, err = v.div(price); err != nil {
		return 0, err
	}
	return v.uint64()
}

// healthFactor returns deposit value over minted INRC as a percentage.
// A position without debt is infinitely healthy and reports MaxUint64.
func healthFactor(deposit, minted uint64, price wide) (uint64, error) {
	if minted == 0 {
		return math.MaxUint64, nil
	}
	value, err := widen(deposit).mul(price)
	if err != nil {
		return 0, err
	}
	if value, err = value.mulUint(100); err != nil {
		return 0, err
	}
	debt, err := widen(minted).mul(priceScale)
	if err != nil {
		return 0, err
	}
	hf, err := value.div(debt)
	if err != nil {
		return 0, err
	}
	return hf.saturate(), nil
}

// maxMintable is the INRC a deposit supports at minHealthFactor.
func maxMintable(deposit uint64, price wide, minHealthFactor uint64) (uint64, error) {
	value, err := inrValue(deposit, price)
	if err != nil {
		return 0, err
	}
	if value, err = value.mulUint(100); err != nil {
		return 0, err
	}
	if value, err = value.divUint(minHealthFactor); err != nil {
		return 0, err
	}
	return value.uint64()
}

func depositUsdcAndMintInrc(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}

	uc, found, err := tx.collateral(signer)
	if err != nil {
		return nil, err
	}
	if !found {
		uc = &UserCollateral{Depositor: signer}
		logger.Infof("User collateral account created for %s", signer)
	} else if uc.Depositor != signer {
		return nil, ErrUnauthorized
	}

	price, err := tx.currentPrice(cfg)
	if err != nil {
		return nil, err
	}

	balance, err := tx.balance(cfg.UsdcMint, signer)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	total, err := addUint64(uc.UsdcDeposit, amount)
	if err != nil {
		return nil, err
	}
	maxMint, err := maxMintable(total, price, cfg.MinHealthFactor)
	if err != nil {
		return nil, err
	}
	// a position already past the ratio cannot be topped up by a deposit
	toMint, err := subUint64(maxMint, uc.InrcMinted)
	if err != nil {
		return nil, err
	}

	if err := tx.transferTokens(cfg.UsdcMint, signer, cfg.TreasuryAuthority, amount); err != nil {
		return nil, err
	}
	if toMint > 0 {
		if err := tx.mintTo(cfg.InrcMint, cfg.TreasuryAuthority, signer, toMint); err != nil {
			return nil, err
		}
	}

	uc.UsdcDeposit = total
	if uc.InrcMinted, err = addUint64(uc.InrcMinted, toMint); err != nil {
		return nil, err
	}
	if err := tx.putCollateral(uc); err != nil {
		return nil, err
	}

	if err := tx.setEvent(EventCollateralDeposited, &CollateralEvent{
		Depositor:  signer,
		UsdcAmount: amount,
		InrcAmount: toMint,
		Position:   *uc,
	}); err != nil {
		return nil, err
	}
	return marshal(uc)
}

func burnInrcAndWithdrawUsdc(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	uc, _, err := tx.collateral(signer)
	if err != nil {
		return nil, err
	}
	if amount > uc.InrcMinted {
		return nil, ErrLiquidationAmountTooHigh
	}

	price, err := tx.currentPrice(cfg)
	if err != nil {
		return nil, err
	}

	usdcOut, err := usdcFor(amount, 100, price)
	if err != nil {
		return nil, err
	}
	if usdcOut > uc.UsdcDeposit {
		return nil, ErrBelowMinHealthFactor
	}
	remainingDeposit := uc.UsdcDeposit - usdcOut
	remainingMinted := uc.InrcMinted - amount

	hf, err := healthFactor(remainingDeposit, remainingMinted, price)
	if err != nil {
		return nil, err
	}
	if hf < cfg.MinHealthFactor {
		return nil, ErrBelowMinHealthFactor
	}

	if err := tx.burnFrom(cfg.InrcMint, signer, amount); err != nil {
		return nil, err
	}
	if err := tx.transferTokens(cfg.UsdcMint, cfg.TreasuryAuthority, signer, usdcOut); err != nil {
		return nil, err
	}

	uc.UsdcDeposit = remainingDeposit
	uc.InrcMinted = remainingMinted
	if err := tx.putCollateral(uc); err != nil {
		return nil, err
	}

	if err := tx.setEvent(EventCollateralRedeemed, &CollateralEvent{
		Depositor:  signer,
		UsdcAmount: usdcOut,
		InrcAmount: amount,
		Position:   *uc,
	}); err != nil {
		return nil, err
	}
	return marshal(uc)
}

func withdrawCollateral(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	signer, err := tx.caller()
	if err != nil {
		return nil, err
	}
	uc, _, err := tx.collateral(signer)
	if err != nil {
		return nil, err
	}
	if amount > uc.UsdcDeposit {
		return nil, ErrInsufficientFunds
	}
	remainingDeposit := uc.UsdcDeposit - amount

	if uc.InrcMinted > 0 {
		price, err := tx.currentPrice(cfg)
		if err != nil {
			return nil, err
		}
		hf, err := healthFactor(remainingDeposit, uc.InrcMinted, price)
		if err != nil {
			return nil, err
		}
		if hf < cfg.MinHealthFactor {
			return nil, ErrBelowMinHealthFactor
		}
	}

	if err := tx.transferTokens(cfg.UsdcMint, cfg.TreasuryAuthority, signer, amount); err != nil {
		return nil, err
	}
	uc.UsdcDeposit = remainingDeposit
	if err := tx.putCollateral(uc); err != nil {
		return nil, err
	}

	if err := tx.setEvent(EventCollateralWithdrawn, &CollateralEvent{
		Depositor:  signer,
		UsdcAmount: amount,
		Position:   *uc,
	}); err != nil {
		return nil, err
	}
	return marshal(uc)
}

func liquidate(tx *txContext, args []string) ([]byte, error) {
	if err := expectArgs(args, 2); err != nil {
		return nil, err
	}
	user := args[0]
	amount, err := parseAmount(args[1])
	if err != nil {
		return nil, err
	}

	cfg, err := tx.config()
	if err != nil {
		return nil, err
	}
	liquidator, err := tx.caller()
	if err != nil {
		return nil, err
	}
	uc, found, err := tx.collateral(user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAboveMinHealthFactor
	}

	price, err := tx.currentPrice(cfg)
	if err != nil {
		return nil, err
	}
	hf, err := healthFactor(uc.UsdcDeposit, uc.InrcMinted, price)
	if err != nil {
		return nil, err
	}
	if hf >= cfg.LiquidationThreshold {
		return nil, ErrAboveMinHealthFactor
	}

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if amount > uc.InrcMinted {
		return nil, ErrLiquidationAmountTooHigh
	}

	usdcOut, err := usdcFor(amount, 100+cfg.LiquidationBonus, price)
	if err != nil {
		return nil, err
	}
	if usdcOut > uc.UsdcDeposit {
		return nil, ErrInsufficientCollateralForLiquidation
	}

	if err := tx.burnFrom(cfg.InrcMint, liquidator, amount); err != nil {
		return nil, err
	}
	if err := tx.transferTokens(cfg.UsdcMint, cfg.TreasuryAuthority, liquidator, usdcOut); err != nil {
		return nil, err
	}

	uc.UsdcDeposit -= usdcOut
	uc.InrcMinted -= amount
	if err := tx.putCollateral(uc); err != nil {
		return nil, err
	}

	logger.Infof("Liquidated %d INRC of %s for %d USDC", amount, user, usdcOut)
	if err := tx.setEvent(EventPositionLiquidated, &LiquidationEvent{
		Liquidator: liquidator,
		Depositor:  user,
		InrcBurned: amount,
		UsdcPaid:   usdcOut,
		Position:   *uc,
	}); err != nil {
		return nil, err
	}
	return marshal(uc)
}
