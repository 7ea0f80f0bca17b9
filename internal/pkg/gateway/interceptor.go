/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

var (
	requestsReceived = metrics.CounterOpts{
		Namespace:    "grpc",
		Subsystem:    "server",
		Name:         "unary_requests_received",
		Help:         "The number of unary requests received.",
		LabelNames:   []string{"service", "method"},
		StatsdFormat: "%{#fqname}.%{service}.%{method}",
	}
	requestsCompleted = metrics.CounterOpts{
		Namespace:    "grpc",
		Subsystem:    "server",
		Name:         "unary_requests_completed",
		Help:         "The number of unary requests completed.",
		LabelNames:   []string{"service", "method", "code"},
		StatsdFormat: "%{#fqname}.%{service}.%{method}.%{code}",
	}
	requestDuration = metrics.HistogramOpts{
		Namespace:    "grpc",
		Subsystem:    "server",
		Name:         "unary_request_duration",
		Help:         "The time to complete a unary request.",
		LabelNames:   []string{"service", "method", "code"},
		StatsdFormat: "%{#fqname}.%{service}.%{method}.%{code}",
	}
)

// ServerMetrics count and time the gateway calls.
type ServerMetrics struct {
	RequestsReceived  metrics.Counter
	RequestsCompleted metrics.Counter
	RequestDuration   metrics.Histogram
}

func NewServerMetrics(p metrics.Provider) *ServerMetrics {
	return &ServerMetrics{
		RequestsReceived:  p.NewCounter(requestsReceived),
		RequestsCompleted: p.NewCounter(requestsCompleted),
		RequestDuration:   p.NewHistogram(requestDuration),
	}
}

// UnaryServerInterceptor records metrics for every call and logs its
// outcome. Failed calls are logged at info, the rest at debug.
func UnaryServerInterceptor(logger *zap.Logger, m *ServerMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := serviceMethod(info.FullMethod)
		m.RequestsReceived.With("service", service, "method", method).Add(1)

		startTime := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(startTime)
		st, _ := status.FromError(err)
		code := st.Code().String()

		m.RequestDuration.With("service", service, "method", method, "code", code).Observe(duration.Seconds())
		m.RequestsCompleted.With("service", service, "method", method, "code", code).Add(1)

		level := zapcore.DebugLevel
		if err != nil {
			level = zapcore.InfoLevel
		}
		if ce := logger.Check(level, "unary call completed"); ce != nil {
			fields := []zap.Field{
				zap.String("grpc.service", service),
				zap.String("grpc.method", method),
				zap.String("grpc.code", code),
				zap.Duration("grpc.call_duration", duration),
			}
			if p, ok := peer.FromContext(ctx); ok {
				fields = append(fields, zap.String("grpc.peer_address", p.Addr.String()))
			}
			if err != nil {
				// strip fmt.Formatter so zap does not attach a stack trace
				fields = append(fields, zap.Error(struct{ error }{err}))
			}
			ce.Write(fields...)
		}
		return resp, err
	}
}

func serviceMethod(fullMethod string) (service, method string) {
	parts := strings.Split(strings.ReplaceAll(fullMethod, ".", "_"), "/")
	if len(parts) != 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}
