/*
Copyright IBM Corp All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package smoke

import (
	"context"

	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/inrcfi/inrc/pkg/program"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Vault", func() {
	It("Is initialized!", func() {
		for _, name := range ws.Names() {
			entry, err := ws.Lookup(name)
			Expect(err).NotTo(HaveOccurred())

			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())

			txID, err := prog.Method("initialize").RPC(context.Background())
			if err != nil {
				ce, ok := vault.ParseError(err.Error())
				Expect(ok).To(BeTrue(), "program %s: %s", name, err)
				Expect(ce.Code).To(Equal(vault.ErrAlreadyInitialized.Code), "program %s: %s", name, err)
				logger.Infof("Program %s is already initialized", name)
				continue
			}
			logger.Infof("Your transaction signature %s", txID)
			Expect(txID).NotTo(BeEmpty())
		}
	})
})
