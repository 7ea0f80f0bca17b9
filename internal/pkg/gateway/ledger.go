/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"bytes"
	"container/list"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

// channel holds the chaincodes, pending endorsements and commit history of
// one channel.
type channel struct {
	id         string
	height     uint64
	chaincodes map[string]*deployment
	pending    map[string]*endorsement
	statuses   map[string]*txStatus
}

type txStatus struct {
	code        peer.TxValidationCode
	blockNumber uint64
}

// deployment is a chaincode instance and its world state. version counts
// committed write sets and stands in for per-key read versions.
type deployment struct {
	name    string
	stub    *shimtest.MockStub
	version uint64
}

type worldState struct {
	state map[string][]byte
	keys  *list.List
}

// endorsement is a simulated transaction awaiting submission.
type endorsement struct {
	chaincode   string
	readVersion uint64
	writes      *worldState
	payload     []byte
}

// simulation is the outcome of running a proposal.
type simulation struct {
	response *peer.Response
	event    *peer.ChaincodeEvent
	writes   *worldState
	version  uint64
}

func newChannel(id string) *channel {
	return &channel{
		id:         id,
		height:     1, // genesis
		chaincodes: map[string]*deployment{},
		pending:    map[string]*endorsement{},
		statuses:   map[string]*txStatus{},
	}
}

func (ch *channel) deploy(name string, cc shim.Chaincode) error {
	if _, ok := ch.chaincodes[name]; ok {
		return errors.Errorf("chaincode %s already deployed on channel %s", name, ch.id)
	}
	stub := shimtest.NewMockStub(name, cc)
	stub.ChannelID = ch.id
	if resp := stub.MockInit(fmt.Sprintf("init-%s", name), nil); resp.Status != shim.OK {
		return errors.Errorf("chaincode %s failed to initialize: %s", name, resp.Message)
	}
	ch.chaincodes[name] = &deployment{name: name, stub: stub}
	return nil
}

func (ch *channel) chaincode(name string) (*deployment, error) {
	d, ok := ch.chaincodes[name]
	if !ok {
		return nil, errors.Errorf("chaincode %s not found on channel %s", name, ch.id)
	}
	return d, nil
}

// simulate runs the invocation and rolls the world state back, returning
// the state the invocation produced.
func (d *deployment) simulate(txID string, creator []byte, args [][]byte, sp *peer.SignedProposal) *simulation {
	before := d.snapshot()
	d.stub.Creator = creator
	response := d.stub.MockInvokeWithSignedProposal(txID, args, sp)
	sim := &simulation{
		response: &response,
		event:    d.drainEvents(),
		writes:   d.snapshot(),
		version:  d.version,
	}
	d.restore(before)
	return sim
}

func (d *deployment) apply(writes *worldState) {
	d.restore(writes)
	d.version++
}

// drainEvents returns the last event set by the invocation.
func (d *deployment) drainEvents() *peer.ChaincodeEvent {
	var last *peer.ChaincodeEvent
	for {
		select {
		case event := <-d.stub.ChaincodeEventsChannel:
			last = event
		default:
			return last
		}
	}
}

func (d *deployment) snapshot() *worldState {
	ws := &worldState{state: make(map[string][]byte, len(d.stub.State)), keys: list.New()}
	for k, v := range d.stub.State {
		ws.state[k] = append([]byte(nil), v...)
	}
	for e := d.stub.Keys.Front(); e != nil; e = e.Next() {
		ws.keys.PushBack(e.Value)
	}
	return ws
}

func (d *deployment) restore(ws *worldState) {
	state := make(map[string][]byte, len(ws.state))
	for k, v := range ws.state {
		state[k] = append([]byte(nil), v...)
	}
	keys := list.New()
	for e := ws.keys.Front(); e != nil; e = e.Next() {
		keys.PushBack(e.Value)
	}
	d.stub.State = state
	d.stub.Keys = keys
}

// commit validates a signed transaction against its endorsement and
// appends it to the chain. The returned code is recorded for CommitStatus.
func (ch *channel) commit(txID string, payload []byte) peer.TxValidationCode {
	code := peer.TxValidationCode_VALID
	pending, ok := ch.pending[txID]
	delete(ch.pending, txID)

	switch {
	case !ok:
		code = peer.TxValidationCode_ENDORSEMENT_POLICY_FAILURE
	case !bytes.Equal(pending.payload, payload):
		code = peer.TxValidationCode_BAD_PAYLOAD
	default:
		d, err := ch.chaincode(pending.chaincode)
		if err != nil {
			code = peer.TxValidationCode_INVALID_CHAINCODE
			break
		}
		if d.version != pending.readVersion {
			code = peer.TxValidationCode_MVCC_READ_CONFLICT
			break
		}
		d.apply(pending.writes)
	}

	ch.statuses[txID] = &txStatus{code: code, blockNumber: ch.height}
	ch.height++
	return code
}

func (ch *channel) seen(txID string) bool {
	_, pending := ch.pending[txID]
	_, committed := ch.statuses[txID]
	return pending || committed
}
