/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity signs vault proposals, transactions and commit status
// requests on behalf of a client, and checks those signatures on the
// gateway side.
package identity

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/msp"
	"github.com/pkg/errors"
)

// Signer signs the bytes of a proposal, transaction or commit status request.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Serializer returns the creator bytes embedded in signature headers.
type Serializer interface {
	Serialize() ([]byte, error)
}

// SignerSerializer is the submitting identity of a vault client.
type SignerSerializer interface {
	Signer
	Serializer
}

// Creator is a deserialized msp.SerializedIdentity backed by an X.509
// certificate.
type Creator struct {
	MSPID       string
	Certificate *x509.Certificate
}

// Deserialize parses creator bytes produced by a Serializer.
func Deserialize(serialized []byte) (*Creator, error) {
	sid := &msp.SerializedIdentity{}
	if err := proto.Unmarshal(serialized, sid); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize creator identity")
	}
	block, _ := pem.Decode(sid.IdBytes)
	if block == nil {
		return nil, errors.Errorf("creator identity of %s is not PEM encoded", sid.Mspid)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse creator certificate")
	}
	return &Creator{MSPID: sid.Mspid, Certificate: cert}, nil
}

// Verify checks an ASN.1 ECDSA signature over the SHA-256 digest of msg.
func (c *Creator) Verify(msg, signature []byte) error {
	pub, ok := c.Certificate.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return errors.Errorf("unsupported public key type %T", c.Certificate.PublicKey)
	}
	digest := sha256.Sum256(msg)
	if !ecdsa.VerifyASN1(pub, digest[:], signature) {
		return errors.Errorf("signature by %s (%s) is invalid", c.Certificate.Subject.CommonName, c.MSPID)
	}
	return nil
}
