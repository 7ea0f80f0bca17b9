/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vault

import "github.com/hyperledger/fabric-lib-go/common/metrics"

var (
	invocationsCompleted = metrics.CounterOpts{
		Namespace:    "inrc",
		Subsystem:    "vault",
		Name:         "invocations_completed",
		Help:         "The number of vault invocations completed.",
		LabelNames:   []string{"function", "success"},
		StatsdFormat: "%{#fqname}.%{function}.%{success}",
	}
	invocationDuration = metrics.HistogramOpts{
		Namespace:    "inrc",
		Subsystem:    "vault",
		Name:         "invocation_duration",
		Help:         "The time to complete vault invocations.",
		LabelNames:   []string{"function", "success"},
		StatsdFormat: "%{#fqname}.%{function}.%{success}",
	}
)

type Metrics struct {
	InvocationsCompleted metrics.Counter
	InvocationDuration   metrics.Histogram
}

func NewMetrics(p metrics.Provider) *Metrics {
	return &Metrics{
		InvocationsCompleted: p.NewCounter(invocationsCompleted),
		InvocationDuration:   p.NewHistogram(invocationDuration),
	}
}
