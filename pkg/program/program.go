/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package program invokes chaincode methods through a peer gateway.
//
// A Program is bound to one chaincode on one channel. Method builds a Call
// that can be evaluated (View), endorsed only (Simulate) or submitted and
// awaited until commit (RPC, Invoke).
package program

import (
	"context"
	"strconv"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	cb "github.com/hyperledger/fabric-protos-go/common"
	gp "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/inrcfi/inrc/internal/pkg/identity"
	"github.com/inrcfi/inrc/pkg/workspace"
	"github.com/inrcfi/inrc/protoutil"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
)

var logger = flogging.MustGetLogger("inrc.program")

const (
	DefaultMaxInFlight   = 16
	DefaultCommitTimeout = time.Minute
)

// Provider supplies the gateway connection and the submitting identity.
type Provider interface {
	Conn() *grpc.ClientConn
	Signer() identity.SignerSerializer
}

type Option func(*Program)

// WithMetricsProvider records request counts and latencies.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(prog *Program) {
		prog.metrics = NewMetrics(p)
	}
}

func WithClock(c clock.Clock) Option {
	return func(prog *Program) {
		prog.clock = c
	}
}

// WithMaxInFlight bounds the number of concurrent calls.
func WithMaxInFlight(n int64) Option {
	return func(prog *Program) {
		prog.sem = semaphore.NewWeighted(n)
	}
}

// WithCommitTimeout bounds the wait for a submitted transaction to commit.
func WithCommitTimeout(d time.Duration) Option {
	return func(prog *Program) {
		prog.commitTimeout = d
	}
}

// Program is a handle on a deployed chaincode.
type Program struct {
	Name      string
	Channel   string
	Chaincode string

	client        gp.GatewayClient
	signer        identity.SignerSerializer
	sem           *semaphore.Weighted
	clock         clock.Clock
	metrics       *Metrics
	commitTimeout time.Duration
}

// New returns a handle on the program described by entry.
func New(p Provider, entry workspace.Entry, opts ...Option) (*Program, error) {
	if p == nil {
		return nil, errors.New("provider is required")
	}
	if entry.Channel == "" || entry.Chaincode == "" {
		return nil, errors.Errorf("program %q requires a channel and a chaincode", entry.Name)
	}
	prog := &Program{
		Name:          entry.Name,
		Channel:       entry.Channel,
		Chaincode:     entry.Chaincode,
		client:        gp.NewGatewayClient(p.Conn()),
		signer:        p.Signer(),
		sem:           semaphore.NewWeighted(DefaultMaxInFlight),
		clock:         clock.NewClock(),
		metrics:       NewMetrics(&disabled.Provider{}),
		commitTimeout: DefaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(prog)
	}
	if prog.signer == nil {
		return nil, errors.New("provider has no signing identity")
	}
	return prog, nil
}

// Method prepares an invocation of the named chaincode function.
func (p *Program) Method(name string, args ...string) *Call {
	input := make([][]byte, 0, len(args))
	for _, a := range args {
		input = append(input, []byte(a))
	}
	return &Call{program: p, method: name, args: input}
}

func (p *Program) observe(method, stage string, start time.Time, err error) {
	p.metrics.RequestsCompleted.With("method", method, "stage", stage, "success", strconv.FormatBool(err == nil)).Add(1)
	p.metrics.RequestDuration.With("method", method, "stage", stage).Observe(p.clock.Since(start).Seconds())
}

// Call is a single chaincode invocation.
type Call struct {
	program *Program
	method  string
	args    [][]byte
}

// Result is a committed transaction.
type Result struct {
	TxID        string
	Payload     []byte
	BlockNumber uint64
}

// Simulation is an endorsed transaction that was not submitted.
type Simulation struct {
	TxID     string
	Payload  []byte
	Envelope *cb.Envelope

	call *Call
}

// Submit signs and submits the endorsed transaction and waits for it to
// commit.
func (s *Simulation) Submit(ctx context.Context) (*Result, error) {
	p := s.call.program
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "failed to acquire in-flight slot")
	}
	defer p.sem.Release(1)
	return s.submit(ctx)
}

func (s *Simulation) submit(ctx context.Context) (*Result, error) {
	c := s.call
	p := c.program
	if err := protoutil.SignEnvelope(s.Envelope, p.signer); err != nil {
		return nil, err
	}

	start := p.clock.Now()
	_, err := p.client.Submit(ctx, &gp.SubmitRequest{
		TransactionId:       s.TxID,
		ChannelId:           p.Channel,
		PreparedTransaction: s.Envelope,
	})
	p.observe(c.method, StageSubmit, start, err)
	if err != nil {
		return nil, &TransactionError{Stage: StageSubmit, TxID: s.TxID, Err: err}
	}

	st, err := c.commitStatus(ctx, s.TxID)
	if err != nil {
		return nil, err
	}
	if st.Result != peer.TxValidationCode_VALID {
		return nil, &CommitError{TxID: s.TxID, Code: st.Result}
	}

	logger.Debugw("Transaction committed", "program", p.Name, "method", c.method, "txid", s.TxID, "block", st.BlockNumber)
	return &Result{TxID: s.TxID, Payload: s.Payload, BlockNumber: st.BlockNumber}, nil
}

// RPC submits the call, waits for it to commit and returns the
// transaction ID.
func (c *Call) RPC(ctx context.Context) (string, error) {
	res, err := c.Invoke(ctx)
	if err != nil {
		return "", err
	}
	return res.TxID, nil
}

// Invoke submits the call and waits for it to commit.
func (c *Call) Invoke(ctx context.Context) (*Result, error) {
	p := c.program
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "failed to acquire in-flight slot")
	}
	defer p.sem.Release(1)

	sim, err := c.endorse(ctx)
	if err != nil {
		return nil, err
	}
	return sim.submit(ctx)
}

// Simulate endorses the call without submitting it.
func (c *Call) Simulate(ctx context.Context) (*Simulation, error) {
	if err := c.program.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "failed to acquire in-flight slot")
	}
	defer c.program.sem.Release(1)
	return c.endorse(ctx)
}

// View evaluates the call on a peer and returns the chaincode payload.
// Nothing is written to the ledger.
func (c *Call) View(ctx context.Context) ([]byte, error) {
	p := c.program
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "failed to acquire in-flight slot")
	}
	defer p.sem.Release(1)

	sp, txID, err := c.proposal()
	if err != nil {
		return nil, err
	}
	start := p.clock.Now()
	resp, err := p.client.Evaluate(ctx, &gp.EvaluateRequest{
		TransactionId:       txID,
		ChannelId:           p.Channel,
		ProposedTransaction: sp,
	})
	p.observe(c.method, StageEvaluate, start, err)
	if err != nil {
		return nil, &TransactionError{Stage: StageEvaluate, TxID: txID, Err: err}
	}
	return resp.GetResult().GetPayload(), nil
}

func (c *Call) endorse(ctx context.Context) (*Simulation, error) {
	p := c.program
	sp, txID, err := c.proposal()
	if err != nil {
		return nil, err
	}

	start := p.clock.Now()
	resp, err := p.client.Endorse(ctx, &gp.EndorseRequest{
		TransactionId:       txID,
		ChannelId:           p.Channel,
		ProposedTransaction: sp,
	})
	p.observe(c.method, StageEndorse, start, err)
	if err != nil {
		return nil, &TransactionError{Stage: StageEndorse, TxID: txID, Err: err}
	}

	env := resp.GetPreparedTransaction()
	response, err := protoutil.GetResponseFromEnvelopeMsg(env)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid endorsement for transaction %s", txID)
	}
	return &Simulation{TxID: txID, Payload: response.Payload, Envelope: env, call: c}, nil
}

func (c *Call) commitStatus(ctx context.Context, txID string) (*gp.CommitStatusResponse, error) {
	p := c.program
	req, err := protoutil.CreateSignedCommitStatusRequest(p.Channel, txID, p.signer)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.commitTimeout)
	defer cancel()

	start := p.clock.Now()
	st, err := p.client.CommitStatus(ctx, req)
	p.observe(c.method, StageCommitStatus, start, err)
	if err != nil {
		return nil, &TransactionError{Stage: StageCommitStatus, TxID: txID, Err: err}
	}
	return st, nil
}

func (c *Call) proposal() (*peer.SignedProposal, string, error) {
	p := c.program
	creator, err := p.signer.Serialize()
	if err != nil {
		return nil, "", errors.WithMessage(err, "failed to serialize identity")
	}
	prop, txID, err := protoutil.CreateChaincodeProposal(p.Channel, protoutil.NewInvocationSpec(p.Chaincode, c.method, c.args...), creator)
	if err != nil {
		return nil, "", errors.WithMessage(err, "failed to create proposal")
	}
	sp, err := protoutil.GetSignedProposal(prop, p.signer)
	if err != nil {
		return nil, "", errors.WithMessage(err, "failed to create signed proposal")
	}
	return sp, txID, nil
}
