/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package comm_test

import (
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/inrcfi/inrc/internal/pkg/comm"
	"github.com/inrcfi/inrc/internal/pkg/identity/identitytest"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

func startServer(t *testing.T, opts ...grpc.ServerOption) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer(opts...)
	go server.Serve(lis)
	t.Cleanup(server.Stop)
	return lis.Addr().String()
}

func TestNewConnectionInsecure(t *testing.T) {
	address := startServer(t)

	client, err := comm.NewGRPCClient(comm.ClientConfig{
		KaOpts:      comm.DefaultKeepaliveOptions,
		DialTimeout: time.Second,
	})
	require.NoError(t, err)

	conn, err := client.NewConnection(address)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestNewConnectionTLS(t *testing.T) {
	server, err := identitytest.NewEnrollment(t.TempDir(), "peer0", identitytest.PKCS8)
	require.NoError(t, err)
	serverCert, err := tls.X509KeyPair(server.CertPEM, server.KeyPEM)
	require.NoError(t, err)
	address := startServer(t, grpc.Creds(credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12,
	})))

	client, err := comm.NewGRPCClient(comm.ClientConfig{
		SecOpts: comm.SecureOptions{
			UseTLS:             true,
			ServerRootCAs:      [][]byte{server.CertPEM},
			ServerNameOverride: "localhost",
		},
		DialTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	conn, err := client.NewConnection(address)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	other, err := identitytest.NewEnrollment(t.TempDir(), "stranger", identitytest.PKCS8)
	require.NoError(t, err)
	untrusted, err := comm.NewGRPCClient(comm.ClientConfig{
		SecOpts: comm.SecureOptions{
			UseTLS:             true,
			ServerRootCAs:      [][]byte{other.CertPEM},
			ServerNameOverride: "localhost",
		},
		DialTimeout: time.Second,
	})
	require.NoError(t, err)
	_, err = untrusted.NewConnection(address)
	require.ErrorContains(t, err, "failed to create new connection to "+address)
}

func TestNewGRPCClientBadConfig(t *testing.T) {
	_, err := comm.NewGRPCClient(comm.ClientConfig{
		SecOpts: comm.SecureOptions{UseTLS: true, RequireClientCert: true},
	})
	require.EqualError(t, err, "failed to load client certificate: both Key and Certificate are required when using mutual TLS")
}
