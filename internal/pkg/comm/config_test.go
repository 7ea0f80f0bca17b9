/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package comm

import (
	"crypto/tls"
	"crypto/x509"
	"testing"
	"time"

	"github.com/inrcfi/inrc/internal/pkg/identity/identitytest"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const badPEM = `-----BEGIN CERTIFICATE-----
MIICRDCCAemgAwIBAgIJALwW//dz2ZBvMAoGCCqGSM49BAMCMH4xCzAJBgNVBAYT
AlVTMRMwEQYDVQQIDApDYWxpZm9ybmlhMRYwFAYDVQQHDA1TYW4gRnJhbmNpc2Nv
-----END CERTIFICATE-----
`

func TestClientKeepaliveOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultKeepaliveOptions.ClientKeepaliveOptions()

	// Unable to test equality of options since the option methods return
	// functions and each instance is a different func.
	require.Len(t, opts, 1)
	require.IsType(t, grpc.WithKeepaliveParams(keepalive.ClientParameters{}), opts[0])
}

func TestClientConfigClone(t *testing.T) {
	origin := ClientConfig{
		KaOpts: KeepaliveOptions{
			ClientInterval: time.Second,
		},
		SecOpts: SecureOptions{
			Key: []byte{1, 2, 3},
		},
		DialTimeout:  time.Second,
		AsyncConnect: true,
	}

	clone := origin

	// Same content, different inner fields references.
	require.Equal(t, origin, clone)

	origin.AsyncConnect = false
	origin.KaOpts.ClientInterval = time.Hour
	origin.SecOpts.Certificate = []byte{1, 2, 3}
	origin.DialTimeout = time.Second * 2
	clone.SecOpts.UseTLS = true

	require.Equal(t, ClientConfig{
		KaOpts:      KeepaliveOptions{ClientInterval: time.Hour},
		SecOpts:     SecureOptions{Key: []byte{1, 2, 3}, Certificate: []byte{1, 2, 3}},
		DialTimeout: time.Second * 2,
	}, origin)
	require.Equal(t, ClientConfig{
		KaOpts:       KeepaliveOptions{ClientInterval: time.Second},
		SecOpts:      SecureOptions{Key: []byte{1, 2, 3}, UseTLS: true},
		DialTimeout:  time.Second,
		AsyncConnect: true,
	}, clone)
}

func TestSecureOptionsTLSConfig(t *testing.T) {
	ca1, err := identitytest.NewEnrollment(t.TempDir(), "ca1", identitytest.PKCS8)
	require.NoError(t, err, "failed to create CA1")
	ca2, err := identitytest.NewEnrollment(t.TempDir(), "ca2", identitytest.SEC1)
	require.NoError(t, err, "failed to create CA2")
	clientCert, err := tls.X509KeyPair(ca1.CertPEM, ca1.KeyPEM)
	require.NoError(t, err, "failed to create client certificate")

	newCertPool := func(cas ...*identitytest.Enrollment) *x509.CertPool {
		cp := x509.NewCertPool()
		for _, ca := range cas {
			ok := cp.AppendCertsFromPEM(ca.CertPEM)
			require.True(t, ok, "failed to add cert to pool")
		}
		return cp
	}

	tests := []struct {
		desc        string
		so          SecureOptions
		tc          *tls.Config
		expectedErr string
	}{
		{desc: "TLSDisabled"},
		{desc: "TLSEnabled", so: SecureOptions{UseTLS: true}, tc: &tls.Config{MinVersion: tls.VersionTLS12}},
		{
			desc: "ServerNameOverride",
			so:   SecureOptions{UseTLS: true, ServerNameOverride: "peer0.org1"},
			tc:   &tls.Config{MinVersion: tls.VersionTLS12, ServerName: "peer0.org1"},
		},
		{
			desc: "WithServerRootCAs",
			so:   SecureOptions{UseTLS: true, ServerRootCAs: [][]byte{ca1.CertPEM, ca2.CertPEM}},
			tc:   &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: newCertPool(ca1, ca2)},
		},
		{
			desc:        "BadServerRootCertificate",
			so:          SecureOptions{UseTLS: true, ServerRootCAs: [][]byte{[]byte(badPEM)}},
			expectedErr: "error adding root certificate",
		},
		{
			desc:        "EmptyServerRootCertificate",
			so:          SecureOptions{UseTLS: true, ServerRootCAs: [][]byte{[]byte("not pem")}},
			expectedErr: "no certificates found in PEM data",
		},
		{
			desc: "WithRequiredClientKeyPair",
			so:   SecureOptions{UseTLS: true, RequireClientCert: true, Key: ca1.KeyPEM, Certificate: ca1.CertPEM},
			tc:   &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{clientCert}},
		},
		{
			desc:        "MissingClientKey",
			so:          SecureOptions{UseTLS: true, RequireClientCert: true, Certificate: ca1.CertPEM},
			expectedErr: "both Key and Certificate are required when using mutual TLS",
		},
		{
			desc:        "MismatchedClientKey",
			so:          SecureOptions{UseTLS: true, RequireClientCert: true, Certificate: ca1.CertPEM, Key: ca2.KeyPEM},
			expectedErr: "failed to load client certificate",
		},
		{
			desc: "WithTimeShift",
			so:   SecureOptions{UseTLS: true, TimeShift: 2 * time.Hour},
			tc:   &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			tc, err := tt.so.TLSConfig()
			if tt.expectedErr != "" {
				require.ErrorContainsf(t, err, tt.expectedErr, "got %v, want %s", err, tt.expectedErr)
				return
			}
			require.NoError(t, err)

			if len(tt.so.ServerRootCAs) != 0 {
				require.NotNil(t, tc.RootCAs)
				require.True(t, tt.tc.RootCAs.Equal(tc.RootCAs))
				tt.tc.RootCAs, tc.RootCAs = nil, nil
			}

			if tt.so.TimeShift != 0 {
				require.NotNil(t, tc.Time)
				require.WithinDuration(t, time.Now().Add(-1*tt.so.TimeShift), tc.Time(), 10*time.Second)
				tc.Time = nil
			}

			require.Equal(t, tt.tc, tc)
		})
	}
}

func TestClientConfigDialOptions(t *testing.T) {
	opts := ClientConfig{}.DialOptions()
	// keepalive, block, fail fast and call options
	require.Len(t, opts, 4)

	opts = ClientConfig{AsyncConnect: true}.DialOptions()
	require.Len(t, opts, 2)
}
