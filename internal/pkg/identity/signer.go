/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/msp"
	"github.com/pkg/errors"
)

// Config holds the configuration for
// creation of a Signer
type Config struct {
	MSPID        string
	IdentityPath string
	KeyPath      string
}

// ECDSASigner signs messages with an X.509 enrollment key and carries the
// serialized identity the ledger attributes them to.
type ECDSASigner struct {
	key     *ecdsa.PrivateKey
	Creator []byte
}

// NewSigner creates a new Signer out of the given configuration
func NewSigner(conf Config) (*ECDSASigner, error) {
	sId, err := serializeIdentity(conf.IdentityPath, conf.MSPID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	key, err := loadPrivateKey(conf.KeyPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ECDSASigner{
		Creator: sId,
		key:     key,
	}, nil
}

// NewSignerFromKey builds a signer from an in-memory key and certificate.
func NewSignerFromKey(mspID string, certPEM []byte, key *ecdsa.PrivateKey) (*ECDSASigner, error) {
	sId, err := proto.Marshal(&msp.SerializedIdentity{Mspid: mspID, IdBytes: certPEM})
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize identity")
	}
	return &ECDSASigner{Creator: sId, key: key}, nil
}

func serializeIdentity(clientCert string, mspID string) ([]byte, error) {
	b, err := os.ReadFile(clientCert)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if block, _ := pem.Decode(b); block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.Errorf("failed to decode certificate PEM from %s", clientCert)
	}
	sId := &msp.SerializedIdentity{
		Mspid:   mspID,
		IdBytes: b,
	}
	return proto.Marshal(sId)
}

// Serialize returns the serialized msp.SerializedIdentity.
func (si *ECDSASigner) Serialize() ([]byte, error) {
	return si.Creator, nil
}

// Sign signs the SHA-256 digest of msg with a low-S ECDSA signature.
func (si *ECDSASigner) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return signECDSA(si.key, digest[:])
}

// Public returns the verification key.
func (si *ECDSASigner) Public() *ecdsa.PublicKey {
	return &si.key.PublicKey
}

func loadPrivateKey(file string) (*ecdsa.PrivateKey, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	bl, _ := pem.Decode(b)
	if bl == nil {
		return nil, errors.Errorf("failed to decode PEM block from %s", file)
	}
	key, err := parsePrivateKey(bl.Bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse private key from %s", file)
	}
	return key, nil
}

// Based on crypto/tls/tls.go but modified for Fabric:
func parsePrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	// OpenSSL 1.0.0 generates PKCS#8 keys.
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		// Fabric only supports ECDSA at the moment.
		case *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, errors.Errorf("found unknown private key type (%T) in PKCS#8 wrapping", key)
		}
	}

	// OpenSSL ecparam generates SEC1 EC private keys for ECDSA.
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, errors.Errorf("failed to parse private key: %v", err)
	}
	return key, nil
}

type ecdsaSignature struct {
	R, S *big.Int
}

func signECDSA(k *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, k, digest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign digest")
	}
	s = toLowS(k.Curve, s)
	return asn1.Marshal(ecdsaSignature{R: r, S: s})
}

// toLowS folds s into the lower half of the curve order; peers reject
// high-S signatures.
func toLowS(curve elliptic.Curve, s *big.Int) *big.Int {
	n := curve.Params().N
	halfOrder := new(big.Int).Rsh(n, 1)
	if s.Cmp(halfOrder) == 1 {
		return new(big.Int).Sub(n, s)
	}
	return s
}

// UnmarshalSignature decodes an ASN.1 ECDSA signature.
func UnmarshalSignature(raw []byte) (*big.Int, *big.Int, error) {
	sig := &ecdsaSignature{}
	if _, err := asn1.Unmarshal(raw, sig); err != nil {
		return nil, nil, errors.Wrap(err, "failed unmarshalling signature")
	}
	if sig.R == nil || sig.S == nil {
		return nil, nil, errors.New("invalid signature, R and S must be set")
	}
	return sig.R, sig.S, nil
}
