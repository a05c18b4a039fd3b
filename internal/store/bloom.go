package store

import (
	"hash/crc32"
	"strconv"
)

// bloomFilter is a fixed-size bit vector summarizing the live keys in a
// Table. It has no false negatives: once a key is added, contains(key)
// is guaranteed true until the next structural reset (there is none in
// this design - see the rehash note on rebuild). It may answer true for a
// key that was never added.
//
// It is not sharded and carries no internal lock: every call happens
// while the owning Store already holds its single coarse mutex (see
// store.go).
type bloomFilter struct {
	bits   []uint64
	m      uint
	hashes uint
}

func newBloomFilter(m, hashes uint) *bloomFilter {
	if m == 0 {
		m = 1
	}
	if hashes == 0 {
		hashes = 1
	}
	return &bloomFilter{
		bits:   make([]uint64, (m+63)/64),
		m:      m,
		hashes: hashes,
	}
}

// bitIndex computes the i-th derivation: a hash of key concatenated with
// the textual form of i, reduced modulo m.
func (bf *bloomFilter) bitIndex(key []byte, i uint) uint {
	buf := make([]byte, 0, len(key)+4)
	buf = append(buf, key...)
	buf = append(buf, strconv.FormatUint(uint64(i), 10)...)
	h := crc32.ChecksumIEEE(buf)
	return uint(h) % bf.m
}

func (bf *bloomFilter) add(key []byte) {
	for i := uint(0); i < bf.hashes; i++ {
		idx := bf.bitIndex(key, i)
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
}

func (bf *bloomFilter) contains(key []byte) bool {
	for i := uint(0); i < bf.hashes; i++ {
		idx := bf.bitIndex(key, i)
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}
