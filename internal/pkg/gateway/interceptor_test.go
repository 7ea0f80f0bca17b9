/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"testing"

	"github.com/hyperledger/fabric-lib-go/common/metrics/metricsfakes"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newFakeServerMetrics() (*ServerMetrics, *metricsfakes.Counter, *metricsfakes.Counter, *metricsfakes.Histogram) {
	received := &metricsfakes.Counter{}
	received.WithReturns(received)
	completed := &metricsfakes.Counter{}
	completed.WithReturns(completed)
	duration := &metricsfakes.Histogram{}
	duration.WithReturns(duration)
	return &ServerMetrics{RequestsReceived: received, RequestsCompleted: completed, RequestDuration: duration}, received, completed, duration
}

func TestUnaryServerInterceptor(t *testing.T) {
	m, received, completed, duration := newFakeServerMetrics()
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := UnaryServerInterceptor(zap.New(core), m)
	info := &grpc.UnaryServerInfo{FullMethod: "/gateway.Gateway/Endorse"}

	resp, err := interceptor(context.Background(), "request", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "response", nil
	})
	require.NoError(t, err)
	require.Equal(t, "response", resp)

	require.Equal(t, 1, received.WithCallCount())
	require.Equal(t, []string{"service", "gateway_Gateway", "method", "Endorse"}, received.WithArgsForCall(0))
	require.Equal(t, []string{"service", "gateway_Gateway", "method", "Endorse", "code", "OK"}, completed.WithArgsForCall(0))
	require.Equal(t, 1, duration.ObserveCallCount())

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "OK", entries[0].ContextMap()["grpc.code"])

	_, err = interceptor(context.Background(), "request", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Aborted, "failed to endorse transaction")
	})
	require.Equal(t, codes.Aborted, status.Code(err))
	require.Equal(t, []string{"service", "gateway_Gateway", "method", "Endorse", "code", "Aborted"}, completed.WithArgsForCall(1))

	entries = logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Contains(t, entries[1].ContextMap()["error"], "failed to endorse transaction")
}

func TestServiceMethod(t *testing.T) {
	service, method := serviceMethod("/gateway.Gateway/CommitStatus")
	require.Equal(t, "gateway_Gateway", service)
	require.Equal(t, "CommitStatus", method)

	service, method = serviceMethod("bogus")
	require.Equal(t, "unknown", service)
	require.Equal(t, "unknown", method)
}
