/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	// LiquidationBonus is the percentage paid on top of the burned INRC value
	// to a liquidator.
	LiquidationBonus uint64 = 5
	// LiquidationThreshold is the health factor (percent) below which a
	// position can be liquidated.
	LiquidationThreshold uint64 = 120
	// MinHealthFactor is the health factor (percent) a position must keep
	// after minting or withdrawing.
	MinHealthFactor uint64 = 150
	// MaxPriceAge is the oldest oracle observation, in seconds, accepted
	// relative to the transaction timestamp.
	MaxPriceAge uint64 = 60

	MintDecimals        uint8 = 6
	UsdcDecimals        uint8 = 6
	TargetPriceDecimals int32 = 8

	InrcSymbol = "INRC"
	UsdcSymbol = "USDC"

	// TreasuryAccount owns deposited USDC and is the INRC mint authority.
	// Only vault logic moves funds on its behalf.
	TreasuryAccount = "treasury"

	// UsdcInrFeedID is the oracle feed quoting INR per USD.
	UsdcInrFeedID = "0x2d3a776c7c2e4f014168c07e0b57e7a7f45b7e8d641d4c2b92d6e3f5b7e8d641"
)

// DefaultConfig returns the configuration written by initialize.
func DefaultConfig(authority string) *Config {
	return &Config{
		Authority:            authority,
		OracleAuthority:      authority,
		InrcMint:             InrcSymbol,
		UsdcMint:             UsdcSymbol,
		TreasuryAuthority:    TreasuryAccount,
		PriceFeedID:          UsdcInrFeedID,
		LiquidationThreshold: LiquidationThreshold,
		LiquidationBonus:     LiquidationBonus,
		MinHealthFactor:      MinHealthFactor,
		MaxPriceAge:          MaxPriceAge,
	}
}

// Validate checks the risk parameters for consistency.
func (c *Config) Validate() error {
	switch {
	case c.Authority == "":
		return errors.WithMessage(ErrInvalidArgument, "authority must be set")
	case c.OracleAuthority == "":
		return errors.WithMessage(ErrInvalidArgument, "oracle authority must be set")
	case c.PriceFeedID == "":
		return errors.WithMessage(ErrInvalidArgument, "price feed id must be set")
	case c.MinHealthFactor < 100:
		return errors.WithMessagef(ErrInvalidArgument, "min health factor %d is below 100", c.MinHealthFactor)
	case c.LiquidationThreshold == 0 || c.LiquidationThreshold > c.MinHealthFactor:
		return errors.WithMessagef(ErrInvalidArgument, "liquidation threshold %d must be in (0, %d]", c.LiquidationThreshold, c.MinHealthFactor)
	case c.LiquidationBonus >= 100:
		return errors.WithMessagef(ErrInvalidArgument, "liquidation bonus %d must be below 100", c.LiquidationBonus)
	case c.MaxPriceAge == 0:
		return errors.WithMessage(ErrInvalidArgument, "max price age must be positive")
	}
	return nil
}

// ConfigUpdate carries the fields updateConfig may change. Nil fields are
// left untouched.
type ConfigUpdate struct {
	OracleAuthority      *string `json:"oracleAuthority,omitempty"`
	PriceFeedID          *string `json:"priceFeedId,omitempty"`
	LiquidationThreshold *uint64 `json:"liquidationThreshold,omitempty"`
	LiquidationBonus     *uint64 `json:"liquidationBonus,omitempty"`
	MinHealthFactor      *uint64 `json:"minHealthFactor,omitempty"`
	MaxPriceAge          *uint64 `json:"maxPriceAge,omitempty"`
}

func (u *ConfigUpdate) apply(c *Config) {
	if u.OracleAuthority != nil {
		c.OracleAuthority = *u.OracleAuthority
	}
	if u.PriceFeedID != nil {
		c.PriceFeedID = *u.PriceFeedID
	}
	if u.LiquidationThreshold != nil {
		c.LiquidationThreshold = *u.LiquidationThreshold
	}
	if u.LiquidationBonus != nil {
		c.LiquidationBonus = *u.LiquidationBonus
	}
	if u.MinHealthFactor != nil {
		c.MinHealthFactor = *u.MinHealthFactor
	}
	if u.MaxPriceAge != nil {
		c.MaxPriceAge = *u.MaxPriceAge
	}
}

func parseConfigUpdate(raw string) (*ConfigUpdate, error) {
	u := &ConfigUpdate{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		return nil, errors.WithMessagef(ErrInvalidArgument, "malformed config update: %s", err)
	}
	return u, nil
}
