package store

// table is the open-addressed, double-hashed hash index. Every method here
// is unlocked: callers (Store) hold the single coarse mutex for the
// duration of a public operation, and the rehash/replay paths run either
// inside an operation that already holds it or single-threaded at startup.
type table struct {
	entries     []entry
	capacity    int
	currentSize int
}

func newTable(capacity int) *table {
	if capacity < 2 {
		capacity = initialCapacity
	}
	return &table{
		entries:  make([]entry, capacity),
		capacity: capacity,
	}
}

// h1 computes a djb2-style digest over the key bytes, reduced mod capacity.
func h1(key string, capacity int) int {
	h := uint32(5381)
	for i := 0; i < len(key); i++ {
		h = (h * 33) + uint32(key[i])
	}
	return int(h) % capacity
}

// h2 computes an sdbm-style digest, reduced into [1, capacity-1] so the
// probe step is never zero. Requires capacity >= 2.
func h2(key string, capacity int) int {
	h := uint32(0)
	for i := 0; i < len(key); i++ {
		h = uint32(key[i]) + (h << 6) + (h << 16) - h
	}
	return int(h%uint32(capacity-1)) + 1
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// insertUnlocked probes until it finds an occupied match (overwrite) or
// an empty slot (insert, preferring the first tombstone seen along the
// way). It does not touch the log or the bloom filter and does not check
// the load factor itself - callers that need those side effects
// (Store.Set, rehash) arrange them around this call.
func (t *table) insertUnlocked(key string, value []byte) {
	base := h1(key, t.capacity)
	step := h2(key, t.capacity)

	firstDeleted := -1
	for i := 0; i < t.capacity; i++ {
		idx := mod(base+i*step, t.capacity)
		slot := &t.entries[idx]

		switch slot.state {
		case slotOccupied:
			if slot.key == key {
				slot.value = value
				return
			}
		case slotDeleted:
			if firstDeleted == -1 {
				firstDeleted = idx
			}
		case slotEmpty:
			target := idx
			if firstDeleted != -1 {
				target = firstDeleted
			}
			t.entries[target] = entry{key: key, value: value, state: slotOccupied}
			t.currentSize++
			return
		}
	}

	// Probe sequence exhausted without an empty slot: every slot it visits
	// is occupied or a tombstone. When the step shares a factor with the
	// capacity the sequence covers only part of the table, so this can
	// happen even under the load-factor bound. Fall back to the first
	// tombstone we saw, or else grow the table and retry, rather than
	// silently dropping the write.
	if firstDeleted != -1 {
		t.entries[firstDeleted] = entry{key: key, value: value, state: slotOccupied}
		t.currentSize++
		return
	}
	t.rehash()
	t.insertUnlocked(key, value)
}

// lookupUnlocked probes for key and returns (value, true) on an occupied
// match, or (nil, false) once an empty slot or the full probe sequence is
// exhausted.
func (t *table) lookupUnlocked(key string) ([]byte, bool) {
	base := h1(key, t.capacity)
	step := h2(key, t.capacity)

	for i := 0; i < t.capacity; i++ {
		idx := mod(base+i*step, t.capacity)
		slot := &t.entries[idx]

		switch slot.state {
		case slotEmpty:
			return nil, false
		case slotOccupied:
			if slot.key == key {
				return slot.value, true
			}
		}
	}
	return nil, false
}

// deleteUnlocked probes for key and, on an occupied match, tombstones the
// slot and returns true. Returns false if the key is absent.
func (t *table) deleteUnlocked(key string) bool {
	base := h1(key, t.capacity)
	step := h2(key, t.capacity)

	for i := 0; i < t.capacity; i++ {
		idx := mod(base+i*step, t.capacity)
		slot := &t.entries[idx]

		switch slot.state {
		case slotEmpty:
			return false
		case slotOccupied:
			if slot.key == key {
				slot.state = slotDeleted
				slot.key = ""
				slot.value = nil
				t.currentSize--
				return true
			}
		}
	}
	return false
}

// loadFactorExceeded reports whether inserting one more live key would push
// current_size/capacity past maxLoadFactor.
func (t *table) loadFactorExceeded() bool {
	return float64(t.currentSize+1)/float64(t.capacity) > maxLoadFactor
}

// rehash doubles capacity and re-inserts every occupied entry from the old
// array via insertUnlocked. Tombstones are discarded; the bloom filter is
// deliberately not touched here (see design notes - every key being
// re-inserted was already registered on its original Set).
func (t *table) rehash() {
	old := t.entries
	t.capacity *= 2
	t.entries = make([]entry, t.capacity)
	t.currentSize = 0

	for i := range old {
		if old[i].state == slotOccupied {
			t.insertUnlocked(old[i].key, old[i].value)
		}
	}
}
