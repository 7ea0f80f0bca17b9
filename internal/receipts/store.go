/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package receipts keeps a local journal of submitted transactions.
package receipts

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	goleveldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

var logger = flogging.MustGetLogger("inrc.receipts")

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Receipt records one transaction submitted from this machine.
type Receipt struct {
	TxID        string    `json:"txId"`
	Program     string    `json:"program"`
	Method      string    `json:"method"`
	Args        []string  `json:"args,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	Status      Status    `json:"status"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Error       string    `json:"error,omitempty"`
}

var ErrNotFound = errors.New("receipt not found")

var (
	// r/<inverted submit time><txid> -> receipt, so iteration is newest first
	recordPrefix = []byte("r/")
	// t/<txid> -> record key
	indexPrefix = []byte("t/")
)

// Store is a leveldb backed receipt journal.
type Store struct {
	path  string
	mutex sync.RWMutex
	db    *leveldb.DB

	readOpts      *opt.ReadOptions
	writeOptsSync *opt.WriteOptions
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "error creating dir %s", path)
	}
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if errors.Is(err, syscall.EAGAIN) {
		return nil, errors.Errorf("receipt store %s is in use by another process", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error opening leveldb at %s", path)
	}
	return &Store{
		path:          path,
		db:            db,
		readOpts:      &opt.ReadOptions{},
		writeOptsSync: &opt.WriteOptions{Sync: true},
	}, nil
}

func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Wrapf(err, "error closing leveldb at %s", s.path)
}

// Put inserts or replaces the receipt for r.TxID.
func (s *Store) Put(r *Receipt) error {
	if r.TxID == "" {
		return errors.New("receipt requires a transaction id")
	}
	value, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to marshal receipt")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.db == nil {
		return errors.New("receipt store is closed")
	}

	batch := &leveldb.Batch{}
	key := recordKey(r.SubmittedAt, r.TxID)
	old, err := s.db.Get(indexKey(r.TxID), s.readOpts)
	switch {
	case err == leveldb.ErrNotFound:
	case err != nil:
		return errors.Wrapf(err, "error retrieving receipt index for %s", r.TxID)
	default:
		batch.Delete(old)
	}
	batch.Put(key, value)
	batch.Put(indexKey(r.TxID), key)
	if err := s.db.Write(batch, s.writeOptsSync); err != nil {
		return errors.Wrap(err, "error writing batch to leveldb")
	}
	logger.Debugf("Recorded receipt for %s (%s)", r.TxID, r.Status)
	return nil
}

// Get returns the receipt for txID or ErrNotFound.
func (s *Store) Get(txID string) (*Receipt, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.db == nil {
		return nil, errors.New("receipt store is closed")
	}

	key, err := s.db.Get(indexKey(txID), s.readOpts)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error retrieving receipt index for %s", txID)
	}
	value, err := s.db.Get(key, s.readOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "error retrieving receipt %s", txID)
	}
	return unmarshal(value)
}

// List returns up to limit receipts, newest first. A limit of zero or less
// returns every receipt.
func (s *Store) List(limit int) ([]*Receipt, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.db == nil {
		return nil, errors.New("receipt store is closed")
	}

	itr := s.db.NewIterator(goleveldbutil.BytesPrefix(recordPrefix), s.readOpts)
	defer itr.Release()

	var receipts []*Receipt
	for itr.Next() {
		if limit > 0 && len(receipts) == limit {
			break
		}
		r, err := unmarshal(itr.Value())
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, errors.Wrapf(itr.Error(), "error iterating receipts in %s", s.path)
}

func unmarshal(value []byte) (*Receipt, error) {
	r := &Receipt{}
	if err := json.Unmarshal(value, r); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal receipt")
	}
	return r, nil
}

func recordKey(submittedAt time.Time, txID string) []byte {
	key := make([]byte, 0, len(recordPrefix)+8+len(txID))
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint64(key, math.MaxUint64-uint64(submittedAt.UnixNano()))
	return append(key, txID...)
}

func indexKey(txID string) []byte {
	return append(append([]byte{}, indexPrefix...), txID...)
}
