/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"encoding/json"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/pkg/errors"
)

const (
	configKey = "config"

	mintObjectType       = "mint"
	balanceObjectType    = "balance"
	collateralObjectType = "user_collateral"
	priceFeedObjectType  = "price_feed"
)

// Config is the single vault configuration document.
type Config struct {
	Authority            string `json:"authority"`
	OracleAuthority      string `json:"oracleAuthority"`
	InrcMint             string `json:"inrcMint"`
	UsdcMint             string `json:"usdcMint"`
	TreasuryAuthority    string `json:"treasuryAuthority"`
	PriceFeedID          string `json:"priceFeedId"`
	LiquidationThreshold uint64 `json:"liquidationThreshold"`
	LiquidationBonus     uint64 `json:"liquidationBonus"`
	MinHealthFactor      uint64 `json:"minHealthFactor"`
	MaxPriceAge          uint64 `json:"maxPriceAge"`
}

// Mint describes a fungible token tracked by the vault.
type Mint struct {
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	Authority string `json:"authority"`
	Supply    uint64 `json:"supply"`
}

// TokenAccount is the balance of one owner for one mint.
type TokenAccount struct {
	Mint   string `json:"mint"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

// UserCollateral is a depositor's position.
type UserCollateral struct {
	Depositor   string `json:"depositor"`
	UsdcDeposit uint64 `json:"usdcDeposit"`
	InrcMinted  uint64 `json:"inrcMinted"`
}

// PriceFeed is the latest oracle observation for a feed. The value is
// Price * 10^Expo.
type PriceFeed struct {
	ID          string `json:"id"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publishTime"`
}

// Position is a collateral account annotated with its current health.
type Position struct {
	UserCollateral
	HealthFactor uint64 `json:"healthFactor"`
	Liquidatable bool   `json:"liquidatable"`
}

// txContext wraps the stub for a single invocation. Writes are cached so
// that later reads in the same transaction observe them; the peer only
// returns committed state from GetState.
type txContext struct {
	stub     shim.ChaincodeStubInterface
	identify IdentityFunc
	writes   map[string][]byte
}

// IdentityFunc resolves the account ID of the transaction submitter.
type IdentityFunc func(stub shim.ChaincodeStubInterface) (string, error)

// clientID adapts cid.GetID, which takes the narrower cid stub interface.
func clientID(stub shim.ChaincodeStubInterface) (string, error) {
	return cid.GetID(stub)
}

func newTxContext(stub shim.ChaincodeStubInterface, identify IdentityFunc) *txContext {
	if identify == nil {
		identify = clientID
	}
	return &txContext{
		stub:     stub,
		identify: identify,
		writes:   map[string][]byte{},
	}
}

func (tx *txContext) caller() (string, error) {
	id, err := tx.identify(tx.stub)
	if err != nil {
		return "", errors.WithMessage(err, "failed to resolve submitter identity")
	}
	return id, nil
}

func (tx *txContext) now() (time.Time, error) {
	ts, err := tx.stub.GetTxTimestamp()
	if err != nil {
		return time.Time{}, errors.WithMessage(err, "failed to get transaction timestamp")
	}
	return ts.AsTime(), nil
}

func (tx *txContext) getState(key string) ([]byte, error) {
	if b, ok := tx.writes[key]; ok {
		return b, nil
	}
	b, err := tx.stub.GetState(key)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to get state for %s", key)
	}
	return b, nil
}

// getJSON loads key into v and reports whether the key existed.
func (tx *txContext) getJSON(key string, v interface{}) (bool, error) {
	b, err := tx.getState(key)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, errors.Wrapf(err, "failed to unmarshal state for %s", key)
	}
	return true, nil
}

func (tx *txContext) putJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal state for %s", key)
	}
	if err := tx.stub.PutState(key, b); err != nil {
		return errors.WithMessagef(err, "failed to put state for %s", key)
	}
	tx.writes[key] = b
	return nil
}

func (tx *txContext) compositeKey(objectType string, attrs ...string) (string, error) {
	key, err := tx.stub.CreateCompositeKey(objectType, attrs)
	if err != nil {
		return "", errors.WithMessagef(err, "failed to create %s key", objectType)
	}
	return key, nil
}

func (tx *txContext) config() (*Config, error) {
	cfg := &Config{}
	found, err := tx.getJSON(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (tx *txContext) collateral(owner string) (*UserCollateral, bool, error) {
	key, err := tx.compositeKey(collateralObjectType, owner)
	if err != nil {
		return nil, false, err
	}
	uc := &UserCollateral{}
	found, err := tx.getJSON(key, uc)
	if err != nil {
		return nil, false, err
	}
	return uc, found, nil
}

func (tx *txContext) putCollateral(uc *UserCollateral) error {
	key, err := tx.compositeKey(collateralObjectType, uc.Depositor)
	if err != nil {
		return err
	}
	return tx.putJSON(key, uc)
}

func (tx *txContext) setEvent(name string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s event", name)
	}
	return errors.WithMessagef(tx.stub.SetEvent(name, b), "failed to set %s event", name)
}
