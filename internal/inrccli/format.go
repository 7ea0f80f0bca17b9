/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inrccli

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// parseAmount converts a decimal token amount such as "12.5" into base
// units of a mint with the given decimals.
func parseAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	if d.Sign() <= 0 {
		return 0, errors.Errorf("amount %s must be greater than zero", s)
	}
	units := d.Shift(int32(decimals))
	if !units.IsInteger() {
		return 0, errors.Errorf("amount %s has more than %d decimal places", s, decimals)
	}
	n := units.BigInt()
	if !n.IsUint64() {
		return 0, errors.Errorf("amount %s is too large", s)
	}
	return n.Uint64(), nil
}

// formatAmount renders base units with the mint's decimals.
func formatAmount(units uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals)).StringFixed(int32(decimals))
}

// parsePrice converts a decimal price into an oracle mantissa at expo.
func parsePrice(s string, expo int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Errorf("invalid price %q", s)
	}
	if d.Sign() <= 0 {
		return 0, errors.Errorf("price %s must be greater than zero", s)
	}
	mantissa := d.Shift(-expo)
	if !mantissa.IsInteger() {
		return 0, errors.Errorf("price %s cannot be expressed with exponent %d", s, expo)
	}
	n := mantissa.BigInt()
	if !n.IsInt64() {
		return 0, errors.Errorf("price %s is too large", s)
	}
	return n.Int64(), nil
}

func formatPrice(feed *vault.PriceFeed) string {
	return decimal.New(feed.Price, feed.Expo).String()
}

func formatHealth(r *vault.HealthReport) string {
	if r.Infinite || r.HealthFactor == math.MaxUint64 {
		return "infinite"
	}
	return strconv.FormatUint(r.HealthFactor, 10) + "%"
}

func renderConfig(w io.Writer, c *vault.Config) {
	fmt.Fprintf(w, "Authority: %s\n", c.Authority)
	fmt.Fprintf(w, "Oracle authority: %s\n", c.OracleAuthority)
	fmt.Fprintf(w, "Mints: %s, %s (treasury %s)\n", c.InrcMint, c.UsdcMint, c.TreasuryAuthority)
	fmt.Fprintf(w, "Price feed: %s\n", c.PriceFeedID)
	fmt.Fprintf(w, "Minimum health factor: %d%%\n", c.MinHealthFactor)
	fmt.Fprintf(w, "Liquidation threshold: %d%%\n", c.LiquidationThreshold)
	fmt.Fprintf(w, "Liquidation bonus: %d%%\n", c.LiquidationBonus)
	fmt.Fprintf(w, "Maximum price age: %ds\n", c.MaxPriceAge)
}

func renderCollateral(w io.Writer, uc *vault.UserCollateral) {
	fmt.Fprintf(w, "Depositor: %s\n", uc.Depositor)
	fmt.Fprintf(w, "USDC deposited: %s\n", formatAmount(uc.UsdcDeposit, vault.UsdcDecimals))
	fmt.Fprintf(w, "INRC minted: %s\n", formatAmount(uc.InrcMinted, vault.MintDecimals))
}

func renderAccount(w io.Writer, acct *vault.TokenAccount) {
	fmt.Fprintf(w, "%s %s: %s\n", acct.Owner, acct.Mint, formatAmount(acct.Amount, decimalsOf(acct.Mint)))
}

func renderPrice(w io.Writer, feed *vault.PriceFeed) {
	fmt.Fprintf(w, "Feed %s: %s (conf %d, expo %d) published at %d\n", feed.ID, formatPrice(feed), feed.Conf, feed.Expo, feed.PublishTime)
}

func renderHealth(w io.Writer, r *vault.HealthReport) {
	fmt.Fprintf(w, "Health factor of %s: %s", r.Owner, formatHealth(r))
	if r.Liquidatable {
		fmt.Fprint(w, " (liquidatable)")
	}
	fmt.Fprintln(w)
}

func renderPositions(w io.Writer, positions []vault.Position) {
	if len(positions) == 0 {
		fmt.Fprintln(w, "No open positions")
		return
	}
	for _, p := range positions {
		health := formatHealth(&vault.HealthReport{HealthFactor: p.HealthFactor, Infinite: p.InrcMinted == 0})
		flag := ""
		if p.Liquidatable {
			flag = " liquidatable"
		}
		fmt.Fprintf(w, "%s usdc=%s inrc=%s health=%s%s\n",
			p.Depositor,
			formatAmount(p.UsdcDeposit, vault.UsdcDecimals),
			formatAmount(p.InrcMinted, vault.MintDecimals),
			health,
			flag,
		)
	}
}

func decimalsOf(symbol string) uint8 {
	if symbol == vault.UsdcSymbol {
		return vault.UsdcDecimals
	}
	return vault.MintDecimals
}
