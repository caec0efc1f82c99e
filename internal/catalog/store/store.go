// Package store persists the function catalog and synthesized harness
// records in BadgerDB so successive runs can reuse and extend them.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/fuzzlens/calltree/internal/catalog"
)

// Key prefixes for the BadgerDB key scheme.
const (
	prefixRecord  = "rec:"
	prefixHarness = "harness:"
	keySequence   = "meta:seq"
)

// Stats summarises the store contents.
type Stats struct {
	Records   int64
	Names     int64
	Harnesses int64
	Edges     int64
}

// Store is a BadgerDB-backed catalog store.
type Store struct {
	db *badger.DB
	// seqMu serialises appends so concurrent writers never reuse a sequence.
	seqMu sync.Mutex
}

// Open opens (or creates) a store at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // suppress badger logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only for the process lifetime.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey orders records by registration sequence.
func recordKey(seq uint64) []byte {
	key := make([]byte, len(prefixRecord)+8)
	copy(key, prefixRecord)
	binary.BigEndian.PutUint64(key[len(prefixRecord):], seq)
	return key
}

func harnessKey(path string) []byte { return []byte(prefixHarness + path) }

// PutRecords appends records after any already stored, preserving their
// order. Duplicate names are kept; Catalog construction applies
// last-write-wins. Records go through a WriteBatch, which splits large
// catalogs across as many transactions as badger needs.
func (s *Store) PutRecords(records []catalog.FunctionRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		seq, err = readSequence(txn)
		return err
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.Name, err)
		}
		if err := wb.Set(recordKey(seq), data); err != nil {
			return fmt.Errorf("write record %s: %w", rec.Name, err)
		}
		seq++
	}
	if err := wb.Set([]byte(keySequence), encodeSequence(seq)); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush records: %w", err)
	}
	return nil
}

// DeleteByFile removes the records defined in file, returning how many
// were removed. Remaining records keep their relative order.
func (s *Store) DeleteByFile(file string) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixRecord), func(key string, val []byte) error {
			var rec struct {
				File string `json:"file"`
			}
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			if rec.File == file {
				keys = append(keys, []byte(key))
			}
			return nil
		})
	})
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	return len(keys), nil
}

// Reset removes every stored record and harness record.
func (s *Store) Reset() error {
	return s.db.DropPrefix([]byte(prefixRecord), []byte(prefixHarness), []byte(keySequence))
}

// PutHarnessRecords stores synthesized harness records keyed by entry-point
// path, replacing earlier records for the same path.
func (s *Store) PutHarnessRecords(records map[string]catalog.FunctionRecord) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for path, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal harness record %s: %w", path, err)
		}
		if err := wb.Set(harnessKey(path), data); err != nil {
			return fmt.Errorf("write harness record %s: %w", path, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush harness records: %w", err)
	}
	return nil
}

// Records returns all stored catalog records in registration order.
func (s *Store) Records() ([]catalog.FunctionRecord, error) {
	var out []catalog.FunctionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixRecord), func(_ string, val []byte) error {
			var rec catalog.FunctionRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// Harnesses returns stored harness records keyed by entry-point path.
func (s *Store) Harnesses() (map[string]catalog.FunctionRecord, error) {
	out := make(map[string]catalog.FunctionRecord)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixHarness), func(key string, val []byte) error {
			var rec catalog.FunctionRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("unmarshal harness record %s: %w", key, err)
			}
			out[strings.TrimPrefix(key, prefixHarness)] = rec
			return nil
		})
	})
	return out, err
}

// Catalog builds an immutable catalog snapshot from the stored records,
// merged with the stored harness records.
func (s *Store) Catalog() (*catalog.Catalog, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	harnesses, err := s.Harnesses()
	if err != nil {
		return nil, err
	}
	return catalog.New(records).Merge(harnesses), nil
}

// Stats counts stored records, distinct names, harnesses and call edges.
func (s *Store) Stats() (*Stats, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	harnesses, err := s.Harnesses()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Records:   int64(len(records)),
		Harnesses: int64(len(harnesses)),
	}
	names := make(map[string]struct{}, len(records))
	for _, rec := range records {
		names[rec.Name] = struct{}{}
		stats.Edges += int64(len(rec.Callsites))
	}
	stats.Names = int64(len(names))
	return stats, nil
}

func readSequence(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keySequence))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt sequence value (%d bytes)", len(val))
		}
		seq = binary.BigEndian.Uint64(val)
		return nil
	})
	return seq, err
}

func encodeSequence(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// scanPrefix calls fn for every key under prefix, in key order.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil))
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}
