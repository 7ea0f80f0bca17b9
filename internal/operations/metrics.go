/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operations

import (
	"sync"

	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/prometheus"
)

var (
	inrcVersion = metrics.GaugeOpts{
		Namespace:    "inrc",
		Name:         "version",
		Help:         "The active version of the INRC vault chaincode.",
		LabelNames:   []string{"version"},
		StatsdFormat: "%{#fqname}.%{version}",
	}

	gaugeLock        sync.Mutex
	promVersionGauge metrics.Gauge
)

// The prometheus provider registers collectors globally, so the gauge is
// created once per process.
func versionGauge(provider metrics.Provider) metrics.Gauge {
	switch provider.(type) {
	case *prometheus.Provider:
		gaugeLock.Lock()
		defer gaugeLock.Unlock()
		if promVersionGauge == nil {
			promVersionGauge = provider.NewGauge(inrcVersion)
		}
		return promVersionGauge

	default:
		return provider.NewGauge(inrcVersion)
	}
}
