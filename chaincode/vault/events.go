/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

// Chaincode event names. Fabric keeps only the last event set in a
// transaction, so each operation sets at most one.
const (
	EventConfigInitialized   = "ConfigInitialized"
	EventConfigUpdated       = "ConfigUpdated"
	EventPriceUpdated        = "PriceUpdated"
	EventTokensMinted        = "TokensMinted"
	EventTokensTransferred   = "TokensTransferred"
	EventCollateralDeposited = "CollateralDeposited"
	EventCollateralRedeemed  = "CollateralRedeemed"
	EventCollateralWithdrawn = "CollateralWithdrawn"
	EventPositionLiquidated  = "PositionLiquidated"
)

type CollateralEvent struct {
	Depositor  string         `json:"depositor"`
	UsdcAmount uint64         `json:"usdcAmount"`
	InrcAmount uint64         `json:"inrcAmount"`
	Position   UserCollateral `json:"position"`
}

type LiquidationEvent struct {
	Liquidator string         `json:"liquidator"`
	Depositor  string         `json:"depositor"`
	InrcBurned uint64         `json:"inrcBurned"`
	UsdcPaid   uint64         `json:"usdcPaid"`
	Position   UserCollateral `json:"position"`
}

type TransferEvent struct {
	Mint   string `json:"mint"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}
