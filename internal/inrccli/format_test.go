/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inrccli

import (
	"bytes"
	"math"
	"testing"

	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected uint64
		err      string
	}{
		{in: "1", expected: 1_000_000},
		{in: "12.5", expected: 12_500_000},
		{in: "0.000001", expected: 1},
		{in: "18446744073709.551615", expected: math.MaxUint64},
		{in: "0.0000001", err: "amount 0.0000001 has more than 6 decimal places"},
		{in: "0", err: "amount 0 must be greater than zero"},
		{in: "-3", err: "amount -3 must be greater than zero"},
		{in: "18446744073709.551616", err: "amount 18446744073709.551616 is too large"},
		{in: "ten", err: `invalid amount "ten"`},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseAmount(tc.in, 6)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "5541.563785", formatAmount(5_541_563_785, 6))
	require.Equal(t, "0.000000", formatAmount(0, 6))
	require.Equal(t, "18446744073709.551615", formatAmount(math.MaxUint64, 6))
}

func TestParsePrice(t *testing.T) {
	p, err := parsePrice("83.12345678", -8)
	require.NoError(t, err)
	require.EqualValues(t, 8312345678, p)

	p, err = parsePrice("83", 0)
	require.NoError(t, err)
	require.EqualValues(t, 83, p)

	_, err = parsePrice("83.123", -2)
	require.EqualError(t, err, "price 83.123 cannot be expressed with exponent -2")

	require.Equal(t, "83.12345678", formatPrice(&vault.PriceFeed{Price: 8312345678, Expo: -8}))
}

func TestRenderPositions(t *testing.T) {
	buf := &bytes.Buffer{}
	renderPositions(buf, nil)
	require.Equal(t, "No open positions\n", buf.String())

	buf.Reset()
	p := vault.Position{HealthFactor: 108, Liquidatable: true}
	p.Depositor = "alice"
	p.UsdcDeposit = 100_000_000
	p.InrcMinted = 5_541_563_785
	renderPositions(buf, []vault.Position{p})
	require.Equal(t, "alice usdc=100.000000 inrc=5541.563785 health=108% liquidatable\n", buf.String())

	buf.Reset()
	renderHealth(buf, &vault.HealthReport{Owner: "bob", HealthFactor: math.MaxUint64, Infinite: true})
	require.Equal(t, "Health factor of bob: infinite\n", buf.String())
}
