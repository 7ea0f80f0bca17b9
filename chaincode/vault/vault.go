/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

/*
Package vault implements the INRC collateral vault chaincode.

Depositors lock USDC with the vault treasury and receive INRC, a rupee
denominated token, up to MinHealthFactor percent collateralization at the
oracle USDC/INR price. INRC is burned to redeem collateral, and positions
whose health falls below LiquidationThreshold can be repaid by anyone in
exchange for collateral plus LiquidationBonus.

Functions (Args[0]):

	initialize
	initializeConfig [usdcMintAuthority]
	updateConfig <json>
	publishPrice <feedID> <price> <expo> <conf> <publishTime>
	mintUsdc <recipient> <amount>
	transfer <symbol> <recipient> <amount>
	depositUsdcAndMintInrc <amount>
	burnInrcAndWithdrawUsdc <amount>
	withdrawCollateral <amount>
	liquidate <user> <amount>
	getConfig | getMint <symbol> | getPrice [feedID]
	getCollateral [owner] | healthFactor [owner] | balanceOf <symbol> [owner]
	listPositions | clientAccountID
*/
package vault

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

var logger = flogging.MustGetLogger("inrc.vault")

type function func(tx *txContext, args []string) ([]byte, error)

// function dispatch map used by Invoke()
var functions = map[string]function{
	"initialize":              initialize,
	"initializeConfig":        initializeConfig,
	"updateConfig":            updateConfig,
	"publishPrice":            publishPrice,
	"mintUsdc":                mintUsdc,
	"transfer":                transfer,
	"depositUsdcAndMintInrc":  depositUsdcAndMintInrc,
	"burnInrcAndWithdrawUsdc": burnInrcAndWithdrawUsdc,
	"withdrawCollateral":      withdrawCollateral,
	"liquidate":               liquidate,
	"getConfig":               getConfig,
	"getMint":                 getMint,
	"getPrice":                getPrice,
	"getCollateral":           getCollateral,
	"healthFactor":            healthFactorQuery,
	"balanceOf":               balanceOf,
	"listPositions":           listPositions,
	"clientAccountID":         clientAccountID,
}

// Functions returns the names Invoke dispatches on.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	return names
}

// Vault is the chaincode entry point.
type Vault struct {
	Metrics *Metrics
	// Identify resolves the submitter account; cid.GetID when nil.
	Identify IdentityFunc
}

// New returns a Vault reporting to the given metrics provider.
func New(p metrics.Provider) *Vault {
	if p == nil {
		p = &disabled.Provider{}
	}
	return &Vault{Metrics: NewMetrics(p)}
}

// Init callback. Configuration happens through initialize so that the
// submitter identity becomes the vault authority.
func (v *Vault) Init(stub shim.ChaincodeStubInterface) pb.Response {
	return shim.Success(nil)
}

// Invoke dispatcher
func (v *Vault) Invoke(stub shim.ChaincodeStubInterface) pb.Response {
	name, args := stub.GetFunctionAndParameters()
	fn, ok := functions[name]
	if !ok {
		return shim.Error(fmt.Sprintf("Unknown function %s", name))
	}

	start := time.Now()
	payload, err := fn(newTxContext(stub, v.Identify), args)
	v.observe(name, err, time.Since(start))
	if err != nil {
		logger.Debugf("[%s] %s failed: %s", shortTxID(stub.GetTxID()), name, err)
		return shim.Error(err.Error())
	}
	logger.Debugf("[%s] %s succeeded", shortTxID(stub.GetTxID()), name)
	return shim.Success(payload)
}

func (v *Vault) observe(name string, err error, elapsed time.Duration) {
	if v.Metrics == nil {
		return
	}
	success := strconv.FormatBool(err == nil)
	v.Metrics.InvocationsCompleted.With("function", name, "success", success).Add(1)
	v.Metrics.InvocationDuration.With("function", name, "success", success).Observe(elapsed.Seconds())
}

func shortTxID(txID string) string {
	if len(txID) < 8 {
		return txID
	}
	return txID[0:8]
}

func expectArgs(args []string, n int) error {
	if len(args) != n {
		return errors.WithMessagef(ErrInvalidArgument, "incorrect number of arguments: expecting %d, got %d", n, len(args))
	}
	return nil
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.WithMessagef(ErrInvalidArgument, "amount %q is not an unsigned integer", s)
	}
	return amount, nil
}

func marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, errors.Wrap(err, "failed to marshal response")
}
