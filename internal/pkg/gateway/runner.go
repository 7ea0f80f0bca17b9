/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"net"
	"os"
	"sync"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Runner serves a gateway on a TCP address. It implements ifrit.Runner.
type Runner struct {
	Address string
	Server  *Server
	Options []grpc.ServerOption
	// Metrics of the served calls. Calls are not measured when nil.
	Metrics metrics.Provider

	mutex    sync.Mutex
	listener net.Listener
}

// Addr returns the bound address while the runner is serving.
func (r *Runner) Addr() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

func (r *Runner) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	listener, err := net.Listen("tcp", r.Address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", r.Address)
	}
	r.mutex.Lock()
	r.listener = listener
	r.mutex.Unlock()

	interceptors := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(recoverPanic)),
	}
	if r.Metrics != nil {
		interceptors = append(interceptors, UnaryServerInterceptor(logger.Zap(), NewServerMetrics(r.Metrics)))
	}
	opts := append([]grpc.ServerOption{grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(interceptors...))}, r.Options...)
	server := grpc.NewServer(opts...)
	gp.RegisterGatewayServer(server, r.Server)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()
	logger.Infof("Gateway listening on %s", listener.Addr())
	close(ready)

	select {
	case <-signals:
		server.GracefulStop()
		r.mutex.Lock()
		r.listener = nil
		r.mutex.Unlock()
		return nil
	case err := <-serveErr:
		return err
	}
}

// recoverPanic turns a panicking chaincode into an Internal error for the
// one call instead of taking the gateway down.
func recoverPanic(p interface{}) error {
	logger.Errorf("Recovered from panic serving gateway call: %v", p)
	return status.Errorf(codes.Internal, "panic serving request: %v", p)
}
