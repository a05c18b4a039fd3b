package store

import (
	"fmt"
	"sync"
)

// Store is the durable hash-indexed key-value store. It owns the table,
// the bloom filter, and the write-ahead log, and guards all of them with
// a single mutex: every public operation acquires it for its entire
// duration. There is no read/write distinction and no suspension point
// beyond the lock and synchronous file I/O.
type Store struct {
	mu sync.Mutex

	table *table
	bloom *bloomFilter
	log   *log

	logPath      string
	snapshotPath string
}

// New runs the recovery procedure and returns a ready-to-use Store with
// its write-ahead log open in append mode.
func New(logPath, snapshotPath string, bloomBits, bloomHashes uint) (*Store, error) {
	tbl, err := recoverTable(logPath, snapshotPath)
	if err != nil {
		return nil, err
	}

	bf := newBloomFilter(bloomBits, bloomHashes)
	for i := range tbl.entries {
		if tbl.entries[i].state == slotOccupied {
			bf.add([]byte(tbl.entries[i].key))
		}
	}

	l, err := openLog(logPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open write-ahead log for appending: %w", err)
	}

	return &Store{
		table:        tbl,
		bloom:        bf,
		log:          l,
		logPath:      logPath,
		snapshotPath: snapshotPath,
	}, nil
}

// recoverTable loads the snapshot if one exists (otherwise starts from an
// empty table), then always replays the log tail on top. Because
// compaction truncates the log immediately after a snapshot commits, the
// log at this point holds only post-snapshot records, so replaying it
// unconditionally is always safe and idempotent.
func recoverTable(logPath, snapshotPath string) (*table, error) {
	var tbl *table
	if snapshotExists(snapshotPath) {
		loaded, err := loadSnapshot(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("fatal: malformed snapshot: %w", err)
		}
		tbl = loaded
	} else {
		tbl = newTable(initialCapacity)
	}

	l, err := openLog(logPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open write-ahead log for replay: %w", err)
	}

	err = l.replay(
		func(key string, value []byte) {
			if tbl.loadFactorExceeded() {
				tbl.rehash()
			}
			tbl.insertUnlocked(key, value)
		},
		func(key string) {
			tbl.deleteUnlocked(key)
		},
	)
	l.close()
	if err != nil {
		return nil, fmt.Errorf("failed replaying write-ahead log: %w", err)
	}

	return tbl, nil
}

// Set inserts or updates key. It logs intent before mutating in-memory
// state, registers key with the bloom filter, and resizes the table first
// if the projected load factor would exceed the maximum.
func (s *Store) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if err := s.log.appendSet(k, value); err != nil {
		return fmt.Errorf("write-ahead log append failed: %w", err)
	}

	if s.table.loadFactorExceeded() {
		s.table.rehash()
	}
	s.table.insertUnlocked(k, value)
	s.bloom.add(key)
	return nil
}

// Get returns the current value for key, or (nil, false) if it is absent.
// A bloom filter miss short-circuits the table probe entirely.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bloom.contains(key) {
		return nil, false
	}
	return s.table.lookupUnlocked(string(key))
}

// Del removes key if present, logging the attempt before checking whether
// the key actually exists - the log is a record of intent, not effect.
// Returns true iff a live entry was removed. A bloom filter miss skips the
// table probe, as in Get.
func (s *Store) Del(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if err := s.log.appendDel(k); err != nil {
		return false, fmt.Errorf("write-ahead log append failed: %w", err)
	}

	if !s.bloom.contains(key) {
		return false, nil
	}
	return s.table.deleteUnlocked(k), nil
}

// CreateSnapshot serializes the table to disk atomically and compacts the
// log. If the temp file cannot be written, the existing snapshot (if any)
// is left in place and the log is not truncated - the store keeps serving
// requests either way.
func (s *Store) CreateSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeSnapshot(s.snapshotPath, s.table); err != nil {
		return fmt.Errorf("snapshot write failed, log not compacted: %w", err)
	}
	return s.log.truncate()
}

// Stats is a point-in-time snapshot of store sizing, used by the HTTP
// introspection surface.
type Stats struct {
	CurrentSize int
	Capacity    int
	LoadFactor  float64
	BloomBits   uint
	BloomHashes uint
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		CurrentSize: s.table.currentSize,
		Capacity:    s.table.capacity,
		LoadFactor:  float64(s.table.currentSize) / float64(s.table.capacity),
		BloomBits:   s.bloom.m,
		BloomHashes: s.bloom.hashes,
	}
}

// Close releases the write-ahead log file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.close()
}
