/*
Copyright IBM Corp All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operations_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	"github.com/hyperledger/fabric-lib-go/common/metrics/statsd"
	"github.com/inrcfi/inrc/internal/operations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/tedsuo/ifrit"
)

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("ledger unreachable") }

var _ = Describe("System", func() {
	var (
		options operations.Options
		system  *operations.System
		client  *http.Client
	)

	get := func(path string) (int, string) {
		resp, err := client.Get(fmt.Sprintf("http://%s%s", system.Addr(), path))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(body)
	}

	BeforeEach(func() {
		client = &http.Client{Timeout: 5 * time.Second}
		options = operations.Options{
			ListenAddress: "127.0.0.1:0",
			Metrics:       operations.MetricsOptions{Provider: "prometheus"},
			Version:       "1.0.0",
			CommitSHA:     "abc123",
		}
	})

	JustBeforeEach(func() {
		system = operations.NewSystem(options)
		Expect(system.Start()).To(Succeed())
	})

	AfterEach(func() {
		Expect(system.Stop()).To(Succeed())
	})

	It("serves health checks", func() {
		code, body := get("/healthz")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"status":"OK"`))

		Expect(system.RegisterChecker("ledger", failingChecker{})).To(Succeed())
		code, body = get("/healthz")
		Expect(code).To(Equal(http.StatusServiceUnavailable))
		Expect(body).To(ContainSubstring("ledger unreachable"))
	})

	It("serves version information", func() {
		code, body := get("/version")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"CommitSHA": "abc123", "Version": "1.0.0"}`))
	})

	It("exposes prometheus metrics", func() {
		system.NewCounter(countingOpts).With("function", "initialize").Add(1)

		code, body := get("/metrics")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`inrc_version{version="1.0.0"} 1`))
		Expect(body).To(ContainSubstring(`inrc_test_calls{function="initialize"} 1`))
	})

	It("recovers from panicking handlers", func() {
		system.RegisterHandler("/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		code, _ := get("/boom")
		Expect(code).To(Equal(http.StatusInternalServerError))

		code, _ = get("/healthz")
		Expect(code).To(Equal(http.StatusOK))
	})

	Context("when metrics are disabled", func() {
		BeforeEach(func() {
			options.Metrics.Provider = "disabled"
		})

		It("does not serve /metrics", func() {
			Expect(system.Provider).To(BeAssignableToTypeOf(&disabled.Provider{}))
			code, _ := get("/metrics")
			Expect(code).To(Equal(http.StatusNotFound))
		})
	})

	Context("when the provider is unknown", func() {
		BeforeEach(func() {
			options.Metrics.Provider = "graphite"
		})

		It("falls back to disabled", func() {
			Expect(system.Provider).To(BeAssignableToTypeOf(&disabled.Provider{}))
		})
	})

	Context("when using statsd", func() {
		var packets net.PacketConn

		BeforeEach(func() {
			var err error
			packets, err = net.ListenPacket("udp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			options.Metrics = operations.MetricsOptions{
				Provider: "statsd",
				Statsd: &operations.Statsd{
					Network:       "udp",
					Address:       packets.LocalAddr().String(),
					WriteInterval: 100 * time.Millisecond,
					Prefix:        "vault",
				},
			}
		})

		AfterEach(func() {
			packets.Close()
		})

		It("sends the version gauge", func() {
			Expect(system.Provider).To(BeAssignableToTypeOf(&statsd.Provider{}))

			buf := make([]byte, 4096)
			Eventually(func() string {
				packets.SetReadDeadline(time.Now().Add(time.Second))
				n, _, err := packets.ReadFrom(buf)
				if err != nil {
					return ""
				}
				return string(buf[:n])
			}, 5*time.Second).Should(ContainSubstring("vault.inrc.version.1_0_0:1"))
		})
	})

	Context("when the listen address is taken", func() {
		It("fails to start a second system", func() {
			other := operations.NewSystem(operations.Options{ListenAddress: system.Addr()})
			err := other.Start()
			Expect(err).To(MatchError(ContainSubstring("failed to listen on " + system.Addr())))
		})
	})
})

var _ = Describe("Run", func() {
	It("serves until signaled", func() {
		system := operations.NewSystem(operations.Options{ListenAddress: "127.0.0.1:0"})
		process := ifrit.Invoke(system)
		Eventually(process.Ready()).Should(BeClosed())
		Expect(system.Addr()).NotTo(BeEmpty())

		process.Signal(syscall.SIGTERM)
		Eventually(process.Wait()).Should(Receive(BeNil()))
		Expect(system.Addr()).To(BeEmpty())
	})

	It("returns start errors", func() {
		system := operations.NewSystem(operations.Options{
			ListenAddress: "127.0.0.1:0",
			Metrics:       operations.MetricsOptions{Provider: "statsd"},
		})
		err := system.Run(make(chan os.Signal), make(chan struct{}))
		Expect(err).To(MatchError("statsd metrics require an address"))
	})
})

var countingOpts = metrics.CounterOpts{
	Namespace:  "inrc",
	Subsystem:  "test",
	Name:       "calls",
	Help:       "Calls made by the operations tests.",
	LabelNames: []string{"function"},
}
