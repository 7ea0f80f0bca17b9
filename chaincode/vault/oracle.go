/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import (
	"github.com/pkg/errors"
)

func (tx *txContext) priceFeed(feedID string) (*PriceFeed, bool, error) {
	key, err := tx.compositeKey(priceFeedObjectType, feedID)
	if err != nil {
		return nil, false, err
	}
	feed := &PriceFeed{}
	found, err := tx.getJSON(key, feed)
	if err != nil {
		return nil, false, err
	}
	return feed, found, nil
}

func (tx *txContext) putPriceFeed(feed *PriceFeed) error {
	key, err := tx.compositeKey(priceFeedObjectType, feed.ID)
	if err != nil {
		return err
	}
	return tx.putJSON(key, feed)
}

// currentPrice returns the configured feed scaled to TargetPriceDecimals,
// rejecting observations older than the configured maximum age.
func (tx *txContext) currentPrice(cfg *Config) (wide, error) {
	feed, found, err := tx.priceFeed(cfg.PriceFeedID)
	if err != nil {
		return wide{}, err
	}
	if !found {
		return wide{}, ErrInvalidPrice
	}
	now, err := tx.now()
	if err != nil {
		return wide{}, err
	}
	if !feed.freshAt(now.Unix(), cfg.MaxPriceAge) {
		return wide{}, errors.WithMessagef(ErrInvalidPrice, "price published at %d is older than %ds", feed.PublishTime, cfg.MaxPriceAge)
	}
	return scalePrice(feed.Price, feed.Expo, TargetPriceDecimals)
}

func (f *PriceFeed) freshAt(now int64, maxAge uint64) bool {
	if now <= f.PublishTime {
		return true
	}
	return uint64(now-f.PublishTime) <= maxAge
}

// scalePrice converts price*10^expo into an integer with targetDecimals
// decimal places.
func scalePrice(price int64, expo, targetDecimals int32) (wide, error) {
	if price <= 0 {
		return wide{}, ErrInvalidPrice
	}
	p := widen(uint64(price))
	shift := targetDecimals + expo
	var (
		scaled wide
		err    error
	)
	switch {
	case shift > 0:
		var factor wide
		if factor, err = pow10(uint(shift)); err != nil {
			return wide{}, err
		}
		scaled, err = p.mul(factor)
	case shift < 0:
		var factor wide
		if factor, err = pow10(uint(-shift)); err != nil {
			return wide{}, ErrInvalidPrice
		}
		scaled, err = p.div(factor)
	default:
		scaled = p
	}
	if err != nil {
		return wide{}, err
	}
	if scaled.isZero() {
		return wide{}, ErrInvalidPrice
	}
	return scaled, nil
}
