/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package program_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/hyperledger/fabric-lib-go/common/metrics/metricsfakes"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/inrcfi/inrc/internal/devnet"
	"github.com/inrcfi/inrc/internal/pkg/gateway"
	"github.com/inrcfi/inrc/internal/pkg/identity"
	"github.com/inrcfi/inrc/pkg/program"
	"github.com/inrcfi/inrc/pkg/provider"
	"github.com/inrcfi/inrc/pkg/workspace"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tedsuo/ifrit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func startNetwork(ws *workspace.Workspace) (*devnet.Network, *provider.Provider) {
	network, err := devnet.New(devnet.Config{CryptoDir: GinkgoT().TempDir(), Workspace: ws})
	Expect(err).NotTo(HaveOccurred())
	process := ifrit.Invoke(network.Runner)
	DeferCleanup(func() {
		process.Signal(syscall.SIGTERM)
		Eventually(process.Wait()).Should(Receive())
	})

	prov, err := provider.New(network.ProviderConfig())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(prov.Close)
	return network, prov
}

func mustParse(doc string) *workspace.Workspace {
	ws, err := workspace.Parse([]byte(doc))
	Expect(err).NotTo(HaveOccurred())
	return ws
}

var _ = Describe("Program", func() {
	var (
		network *devnet.Network
		prov    *provider.Provider
		entry   workspace.Entry
	)

	BeforeEach(func() {
		ws := mustParse("programs:\n  inrc: {}\n")
		network, prov = startNetwork(ws)
		var err error
		entry, err = ws.Lookup("inrc")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("binds the workspace entry", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Name).To(Equal("inrc"))
			Expect(prog.Channel).To(Equal(workspace.DefaultChannel))
			Expect(prog.Chaincode).To(Equal("inrc"))
		})

		It("requires a provider", func() {
			_, err := program.New(nil, entry)
			Expect(err).To(MatchError("provider is required"))
		})

		It("requires a chaincode", func() {
			_, err := program.New(prov, workspace.Entry{Name: "bare", Channel: "mychannel"})
			Expect(err).To(MatchError(`program "bare" requires a channel and a chaincode`))
		})
	})

	Describe("RPC", func() {
		It("initializes the vault and returns the transaction id", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())

			txID, err := prog.Method("initialize").RPC(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(txID).To(MatchRegexp("^[0-9a-f]{64}$"))
			Expect(network.Server.Height(entry.Channel)).To(BeEquivalentTo(2))
		})

		It("surfaces the chaincode error with its code", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())
			_, err = prog.Method("initialize").RPC(context.Background())
			Expect(err).NotTo(HaveOccurred())

			_, err = prog.Method("initialize").RPC(context.Background())
			Expect(err).To(HaveOccurred())

			var txErr *program.TransactionError
			Expect(errors.As(err, &txErr)).To(BeTrue())
			Expect(txErr.Stage).To(Equal(program.StageEndorse))
			Expect(txErr.Details()).To(HaveLen(1))
			Expect(status.Code(err)).To(Equal(codes.Aborted))
			Expect(err.Error()).To(HavePrefix("endorse failed for transaction " + txErr.TxID + ": Aborted: failed to endorse transaction"))

			ce, ok := vault.ParseError(err.Error())
			Expect(ok).To(BeTrue())
			Expect(ce).To(MatchError(vault.ErrAlreadyInitialized))
		})
	})

	Describe("Invoke", func() {
		It("returns the chaincode payload and block", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())

			res, err := prog.Method("initialize").Invoke(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.BlockNumber).To(BeEquivalentTo(1))

			cfg := &vault.Config{}
			Expect(json.Unmarshal(res.Payload, cfg)).To(Succeed())
			Expect(cfg.MinHealthFactor).To(Equal(vault.MinHealthFactor))
		})

		It("reports invalidated transactions as commit errors", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())

			// endorsed before the competing initialize commits
			sim, err := prog.Method("initialize").Simulate(context.Background())
			Expect(err).NotTo(HaveOccurred())
			_, err = prog.Method("initialize").RPC(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(sim.Payload).NotTo(BeEmpty())
			_, err = sim.Submit(context.Background())
			Expect(err).To(MatchError(&program.CommitError{TxID: sim.TxID, Code: peer.TxValidationCode_MVCC_READ_CONFLICT}))
		})
	})

	Describe("View", func() {
		It("evaluates without writing", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())

			payload, err := prog.Method("initialize").View(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(payload).To(ContainSubstring(`"authority"`))

			_, err = prog.Method("getConfig").View(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(HaveSuffix("Vault is not initialized (NotInitialized, 6010)"))

			var txErr *program.TransactionError
			Expect(errors.As(err, &txErr)).To(BeTrue())
			Expect(txErr.Stage).To(Equal(program.StageEvaluate))
			Expect(network.Server.Height(entry.Channel)).To(BeEquivalentTo(1))
		})

		It("passes arguments after the method name", func() {
			prog, err := program.New(prov, entry)
			Expect(err).NotTo(HaveOccurred())
			_, err = prog.Method("initialize").RPC(context.Background())
			Expect(err).NotTo(HaveOccurred())

			payload, err := prog.Method("getMint", vault.UsdcSymbol).View(context.Background())
			Expect(err).NotTo(HaveOccurred())
			mint := &vault.Mint{}
			Expect(json.Unmarshal(payload, mint)).To(Succeed())
			Expect(mint.Symbol).To(Equal(vault.UsdcSymbol))
			Expect(mint.Decimals).To(Equal(vault.UsdcDecimals))
		})
	})

	Describe("Metrics", func() {
		It("counts and times every stage", func() {
			counter := &metricsfakes.Counter{}
			counter.WithReturns(counter)
			histogram := &metricsfakes.Histogram{}
			histogram.WithReturns(histogram)
			fakeProvider := &metricsfakes.Provider{}
			fakeProvider.NewCounterReturns(counter)
			fakeProvider.NewHistogramReturns(histogram)
			clock := fakeclock.NewFakeClock(time.Unix(1700000000, 0))

			prog, err := program.New(prov, entry, program.WithMetricsProvider(fakeProvider), program.WithClock(clock))
			Expect(err).NotTo(HaveOccurred())
			_, err = prog.Method("initialize").RPC(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(counter.WithCallCount()).To(Equal(3))
			Expect(counter.WithArgsForCall(0)).To(Equal([]string{"method", "initialize", "stage", "endorse", "success", "true"}))
			Expect(counter.WithArgsForCall(1)).To(Equal([]string{"method", "initialize", "stage", "submit", "success", "true"}))
			Expect(counter.WithArgsForCall(2)).To(Equal([]string{"method", "initialize", "stage", "commit status", "success", "true"}))
			Expect(histogram.ObserveCallCount()).To(Equal(3))
			Expect(histogram.ObserveArgsForCall(0)).To(Equal(0.0))

			_, err = prog.Method("getConfig", "extra").View(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(counter.WithArgsForCall(3)).To(Equal([]string{"method", "getConfig", "stage", "evaluate", "success", "false"}))
		})
	})
})

// stallingGateway holds Endorse and CommitStatus calls until released.
type stallingGateway struct {
	*gateway.Server
	endorsing chan struct{}
	release   chan struct{}
}

func (s *stallingGateway) Endorse(ctx context.Context, req *gp.EndorseRequest) (*gp.EndorseResponse, error) {
	s.endorsing <- struct{}{}
	<-s.release
	return s.Server.Endorse(ctx, req)
}

func (s *stallingGateway) CommitStatus(ctx context.Context, req *gp.SignedCommitStatusRequest) (*gp.CommitStatusResponse, error) {
	<-ctx.Done()
	return nil, status.FromContextError(ctx.Err()).Err()
}

type staticProvider struct {
	conn   *grpc.ClientConn
	signer identity.SignerSerializer
}

func (s *staticProvider) Conn() *grpc.ClientConn { return s.conn }
func (s *staticProvider) Signer() identity.SignerSerializer { return s.signer }

var _ = Describe("Flow control", func() {
	var (
		stalling *stallingGateway
		prov     *staticProvider
		entry    workspace.Entry
	)

	BeforeEach(func() {
		ws := mustParse("programs:\n  inrc: {}\n")
		network, devProvider := startNetwork(ws)
		entry, _ = ws.Lookup("inrc")

		stalling = &stallingGateway{
			Server:    network.Server,
			endorsing: make(chan struct{}, 8),
			release:   make(chan struct{}),
		}
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		server := grpc.NewServer()
		gp.RegisterGatewayServer(server, stalling)
		go server.Serve(lis)
		DeferCleanup(server.Stop)

		conn, err := grpc.Dial(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(conn.Close)
		prov = &staticProvider{conn: conn, signer: devProvider.Signer()}
	})

	It("bounds the calls in flight", func() {
		prog, err := program.New(prov, entry, program.WithMaxInFlight(1))
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			_, err := prog.Method("initialize").Simulate(context.Background())
			done <- err
		}()
		Eventually(stalling.endorsing).Should(Receive())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err = prog.Method("getConfig").View(ctx)
		Expect(err).To(MatchError(ContainSubstring("failed to acquire in-flight slot")))

		close(stalling.release)
		Eventually(done).Should(Receive(BeNil()))
	})

	It("gives up waiting for commit after the commit timeout", func() {
		close(stalling.release)
		prog, err := program.New(prov, entry, program.WithCommitTimeout(100*time.Millisecond))
		Expect(err).NotTo(HaveOccurred())

		_, err = prog.Method("initialize").RPC(context.Background())
		var txErr *program.TransactionError
		Expect(errors.As(err, &txErr)).To(BeTrue())
		Expect(txErr.Stage).To(Equal(program.StageCommitStatus))
		Expect(status.Code(err)).To(Equal(codes.DeadlineExceeded))
	})
})

var _ = Describe("CommitError", func() {
	It("names the validation code", func() {
		err := &program.CommitError{TxID: "abc", Code: peer.TxValidationCode_MVCC_READ_CONFLICT}
		Expect(err).To(MatchError("transaction abc failed to commit with status code 11 (MVCC_READ_CONFLICT)"))
	})
})
