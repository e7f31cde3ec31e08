// Package store persists catalog records in an embedded BadgerDB.
//
// Each component is kept under its own key as a JSON-encoded record together
// with the sequence number it was first stored at, so Load returns records in
// their original registration order.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"

	"github.com/anvil-platform/semverx/internal/registry"
)

var prefix = []byte("component/")

var seqKey = []byte("meta/seq")

type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// SyncWrites trades write latency for durability.
	SyncWrites bool
	Log        logr.Logger
}

// Badger is a record store. It is safe for concurrent use.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
	log logr.Logger
}

type entry struct {
	Seq    uint64          `json:"seq"`
	Record registry.Record `json:"record"`
}

func Open(cfg Config) (*Badger, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("store: path is required for a persistent database")
	default:
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Log.GetSink() != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Log.WithName("badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sequence: %w", err)
	}
	return &Badger{db: db, seq: seq, log: cfg.Log}, nil
}

func (s *Badger) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

// Put stores rec, keeping the original sequence of an existing record.
func (s *Badger) Put(rec registry.Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.put(txn, rec)
	})
}

func (s *Badger) put(txn *badger.Txn, rec registry.Record) error {
	key := append(append([]byte(nil), prefix...), rec.Name...)
	e := entry{Record: rec}

	item, err := txn.Get(key)
	switch {
	case err == nil:
		var old entry
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &old) }); err != nil {
			return fmt.Errorf("store: decode %q: %w", rec.Name, err)
		}
		e.Seq = old.Seq
	case errors.Is(err, badger.ErrKeyNotFound):
		if e.Seq, err = s.seq.Next(); err != nil {
			return fmt.Errorf("store: sequence: %w", err)
		}
	default:
		return fmt.Errorf("store: get %q: %w", rec.Name, err)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", rec.Name, err)
	}
	return txn.Set(key, raw)
}

func (s *Badger) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(append(append([]byte(nil), prefix...), name...))
	})
}

// SaveAll replaces the stored set with records.
func (s *Badger) SaveAll(records []registry.Record) error {
	keep := make(map[string]bool, len(records))
	for _, rec := range records {
		keep[rec.Name] = true
	}
	return s.db.Update(func(txn *badger.Txn) error {
		stale, err := s.names(txn)
		if err != nil {
			return err
		}
		for _, name := range stale {
			if !keep[name] {
				if err := txn.Delete(append(append([]byte(nil), prefix...), name...)); err != nil {
					return err
				}
			}
		}
		for _, rec := range records {
			if err := s.put(txn, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns every stored record in the order they were first stored.
func (s *Badger) Load() ([]registry.Record, error) {
	var entries []entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e entry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return fmt.Errorf("store: decode %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	out := make([]registry.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record
	}
	return out, nil
}

func (s *Badger) names(txn *badger.Txn) ([]string, error) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out, nil
}

// RunGC triggers value log garbage collection every interval until ctx is
// done. It fits manager.RunnableFunc.
func (s *Badger) RunGC(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Info("value log GC failed", "error", err.Error())
			}
		}
	}
}

// badgerLogger adapts logr to badger's logger interface.
type badgerLogger struct {
	log logr.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(nil, fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.V(1).Info(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.V(2).Info(fmt.Sprintf(format, args...))
}
