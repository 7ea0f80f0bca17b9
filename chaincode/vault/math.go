/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"math"
	"math/big"
)

var maxWide = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// wide is an unsigned 128-bit intermediate. Every operation is checked and
// reports ErrArithmeticOverflow instead of wrapping or truncating.
type wide struct {
	n *big.Int
}

func widen(x uint64) wide {
	return wide{n: new(big.Int).SetUint64(x)}
}

func pow10(exp uint) (wide, error) {
	n := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return checked(n)
}

func checked(n *big.Int) (wide, error) {
	if n.Sign() < 0 || n.Cmp(maxWide) > 0 {
		return wide{}, ErrArithmeticOverflow
	}
	return wide{n: n}, nil
}

func (w wide) mul(o wide) (wide, error) {
	return checked(new(big.Int).Mul(w.n, o.n))
}

func (w wide) mulUint(x uint64) (wide, error) {
	return w.mul(widen(x))
}

func (w wide) div(o wide) (wide, error) {
	if o.n.Sign() == 0 {
		return wide{}, ErrArithmeticOverflow
	}
	return wide{n: new(big.Int).Quo(w.n, o.n)}, nil
}

func (w wide) divUint(x uint64) (wide, error) {
	return w.div(widen(x))
}

func (w wide) isZero() bool {
	return w.n.Sign() == 0
}

// uint64 narrows the value, failing when it does not fit.
func (w wide) uint64() (uint64, error) {
	if !w.n.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return w.n.Uint64(), nil
}

// saturate narrows the value, clamping at math.MaxUint64.
func (w wide) saturate() uint64 {
	if !w.n.IsUint64() {
		return math.MaxUint64
	}
	return w.n.Uint64()
}

func (w wide) String() string {
	return w.n.String()
}

func addUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

func subUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}
