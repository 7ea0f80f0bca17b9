/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identitytest writes throwaway enrollment material for tests.
package identitytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Enrollment is a self-signed certificate and its EC private key.
type Enrollment struct {
	CertPEM  []byte
	KeyPEM   []byte
	Key      *ecdsa.PrivateKey
	CertPath string
	KeyPath  string
}

// KeyEncoding selects the PEM encoding of the private key.
type KeyEncoding int

const (
	PKCS8 KeyEncoding = iota
	SEC1
)

// NewEnrollment generates a P-256 key and a self-signed certificate for
// commonName and writes them under dir as cert.pem and key_sk.
func NewEnrollment(dir, commonName string, enc KeyEncoding) (*Enrollment, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"Org1"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create certificate")
	}

	var keyBlock *pem.Block
	switch enc {
	case SEC1:
		b, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal key")
		}
		keyBlock = &pem.Block{Type: "EC PRIVATE KEY", Bytes: b}
	default:
		b, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal key")
		}
		keyBlock = &pem.Block{Type: "PRIVATE KEY", Bytes: b}
	}

	e := &Enrollment{
		CertPEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:   pem.EncodeToMemory(keyBlock),
		Key:      key,
		CertPath: filepath.Join(dir, "cert.pem"),
		KeyPath:  filepath.Join(dir, "key_sk"),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.WriteFile(e.CertPath, e.CertPEM, 0o644); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.WriteFile(e.KeyPath, e.KeyPEM, 0o600); err != nil {
		return nil, errors.WithStack(err)
	}
	return e, nil
}
