package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"
)

const snapshotTempSuffix = ".tmp"

// writeSnapshot serializes the full table to a sibling temp file and
// atomically renames it into place. The on-disk bytes are framed with
// zstd; the logical layout they decompress to is capacity, current_size,
// then one record per slot.
func writeSnapshot(path string, t *table) error {
	tmpPath := path + snapshotTempSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}

	if err := encodeTable(f, t); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	os.Remove(path)
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func encodeTable(w io.Writer, t *table) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to open snapshot compressor: %w", err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(t.capacity))
	binary.LittleEndian.PutUint64(header[8:16], uint64(t.currentSize))
	buf.Write(header[:])

	var lenBuf [4]byte
	for i := range t.entries {
		e := &t.entries[i]
		buf.WriteByte(byte(e.state))
		if e.state != slotOccupied {
			continue
		}

		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.key)))
		buf.Write(lenBuf[:])
		buf.WriteString(e.key)

		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.value)))
		buf.Write(lenBuf[:])
		buf.Write(e.value)
	}

	if _, err := enc.Write(buf.B); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write snapshot body: %w", err)
	}
	return enc.Close()
}

// loadSnapshot reads a snapshot file written by writeSnapshot and
// reconstructs the table it describes, including current_size from the
// header (not recomputed by counting occupied slots).
func loadSnapshot(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot decompressor: %w", err)
	}
	defer dec.Close()

	var header [16]byte
	if _, err := io.ReadFull(dec, header[:]); err != nil {
		return nil, fmt.Errorf("malformed snapshot header: %w", err)
	}
	capacity := int(binary.LittleEndian.Uint64(header[0:8]))
	currentSize := int(binary.LittleEndian.Uint64(header[8:16]))

	if capacity < 2 {
		return nil, fmt.Errorf("malformed snapshot header: capacity %d < 2", capacity)
	}

	t := &table{
		entries:     make([]entry, capacity),
		capacity:    capacity,
		currentSize: currentSize,
	}

	var stateByte [1]byte
	var lenBuf [4]byte
	for i := 0; i < capacity; i++ {
		if _, err := io.ReadFull(dec, stateByte[:]); err != nil {
			return nil, fmt.Errorf("malformed snapshot body at slot %d: %w", i, err)
		}
		state := slotState(stateByte[0])
		if state != slotOccupied {
			t.entries[i] = entry{state: state}
			continue
		}

		if _, err := io.ReadFull(dec, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("malformed snapshot body at slot %d: %w", i, err)
		}
		keyLen := binary.LittleEndian.Uint32(lenBuf[:])
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(dec, key); err != nil {
			return nil, fmt.Errorf("malformed snapshot body at slot %d: %w", i, err)
		}

		if _, err := io.ReadFull(dec, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("malformed snapshot body at slot %d: %w", i, err)
		}
		valLen := binary.LittleEndian.Uint32(lenBuf[:])
		val := make([]byte, valLen)
		if _, err := io.ReadFull(dec, val); err != nil {
			return nil, fmt.Errorf("malformed snapshot body at slot %d: %w", i, err)
		}

		t.entries[i] = entry{key: string(key), value: val, state: slotOccupied}
	}

	return t, nil
}

func snapshotExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
