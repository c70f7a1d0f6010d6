package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ssgreg/repeat"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/TxnLab/stakeledger/internal/lib/asset"
	"github.com/TxnLab/stakeledger/internal/lib/ledger"
	"github.com/TxnLab/stakeledger/internal/lib/misc"
)

var (
	ErrNotInitialized = errors.New("no ledger state saved yet")
	ErrSchemaMismatch = errors.New("unsupported store schema version")
)

// State is everything persisted for one pool: the ledger and the two asset
// ledgers it holds custody in.
type State struct {
	Ledger ledger.Snapshot
	Tokens []asset.TokenSnapshot
}

// Token returns the snapshot of the named token, if present.
func (s *State) Token(symbol string) (asset.TokenSnapshot, bool) {
	for _, tok := range s.Tokens {
		if tok.Symbol == symbol {
			return tok, true
		}
	}
	return asset.TokenSnapshot{}, false
}

type Store struct {
	log  *slog.Logger
	once sync.Once
	db   *leveldb.DB
}

// Open opens (creating if needed) the LevelDB store in dir. LevelDB holds an
// exclusive file lock, so opening while the daemon is mid-refresh is retried
// for a while before giving up.
func Open(ctx context.Context, logger *slog.Logger, dir string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	err = repeat.Repeat(
		repeat.Fn(func() error {
			db, err = leveldb.OpenFile(dir, nil)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(10),
		repeat.FnOnError(func(err error) error {
			misc.Debugf(logger, "retrying open of store %s, error:%v", dir, err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContext(ctx),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 100 * time.Millisecond,
				MaxDelay:  2 * time.Second,
			}).Set(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	return &Store{log: logger, db: db}, nil
}

// OpenMem returns a store backed by memory only.
func OpenMem(logger *slog.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	return &Store{log: logger, db: db}, nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// SaveState writes the pool, every account and every token in one batch, so
// readers see either the previous or the new state.
func (s *Store) SaveState(state State) error {
	batch := new(leveldb.Batch)
	batch.Put(keySchemaVer, []byte(schemaVersion))

	put := func(key []byte, val any) error {
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("error encoding %s: %w", key, err)
		}
		batch.Put(key, data)
		return nil
	}
	if err := put(keyPool, state.Ledger.Pool); err != nil {
		return err
	}
	for id, acct := range state.Ledger.Accounts {
		if err := put(accountKey(id), acct); err != nil {
			return err
		}
	}
	for _, tok := range state.Tokens {
		if err := put(tokenKey(tok.Symbol), tok); err != nil {
			return err
		}
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("error saving state: %w", err)
	}
	misc.Debugf(s.log, "state saved, accounts:%d, tokens:%d", len(state.Ledger.Accounts), len(state.Tokens))
	return nil
}

func (s *Store) LoadState() (*State, error) {
	ver, err := s.db.Get(keySchemaVer, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("error reading schema version: %w", err)
	}
	if string(ver) != schemaVersion {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, ver)
	}

	state := &State{Ledger: ledger.Snapshot{Accounts: map[string]ledger.AccountSnapshot{}}}
	data, err := s.db.Get(keyPool, nil)
	if err != nil {
		return nil, fmt.Errorf("error reading pool: %w", err)
	}
	if err = json.Unmarshal(data, &state.Ledger.Pool); err != nil {
		return nil, fmt.Errorf("error decoding pool: %w", err)
	}

	err = s.iteratePrefix(prefixAcct, func(key, value []byte) error {
		var acct ledger.AccountSnapshot
		if err := json.Unmarshal(value, &acct); err != nil {
			return fmt.Errorf("error decoding account %s: %w", key, err)
		}
		state.Ledger.Accounts[string(key[len(prefixAcct):])] = acct
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.iteratePrefix(prefixToken, func(key, value []byte) error {
		var tok asset.TokenSnapshot
		if err := json.Unmarshal(value, &tok); err != nil {
			return fmt.Errorf("error decoding token %s: %w", key, err)
		}
		state.Tokens = append(state.Tokens, tok)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) iteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
