/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package program

import "github.com/hyperledger/fabric-lib-go/common/metrics"

var (
	requestsCompleted = metrics.CounterOpts{
		Namespace:    "program",
		Name:         "requests_completed",
		Help:         "The number of gateway requests completed.",
		LabelNames:   []string{"method", "stage", "success"},
		StatsdFormat: "%{#fqname}.%{method}.%{stage}.%{success}",
	}
	requestDuration = metrics.HistogramOpts{
		Namespace:    "program",
		Name:         "request_duration",
		Help:         "The time to complete a gateway request.",
		LabelNames:   []string{"method", "stage"},
		StatsdFormat: "%{#fqname}.%{method}.%{stage}",
	}
)

type Metrics struct {
	RequestsCompleted metrics.Counter
	RequestDuration   metrics.Histogram
}

func NewMetrics(p metrics.Provider) *Metrics {
	return &Metrics{
		RequestsCompleted: p.NewCounter(requestsCompleted),
		RequestDuration:   p.NewHistogram(requestDuration),
	}
}
