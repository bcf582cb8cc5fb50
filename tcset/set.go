// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package tcset implements a compact testcase-id set: a dynamically
// resized bit field, 64 ids per machine word, supporting add,
// remove, copy, copy-without, ascending membership iteration, cardinality,
// and a content hash that two sets of different capacities but equal
// contents agree on.
package tcset

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
)

// ID is a dense, small nonnegative integer identifying one testcase.
type ID uint32

// A Set is a testcase-id set backed by a popcount-friendly bit field, the
// same representational idiom gaissmai/bart uses for its prefix and child
// index sets.
type Set struct {
	bits *bitset.BitSet
}

// New returns an empty set.
func New() *Set {
	return &Set{bits: bitset.New(0)}
}

// NewWithID returns a set containing exactly id.
func NewWithID(id ID) *Set {
	s := New()
	s.Add(id)
	return s
}

// Add inserts id into the set.
func (s *Set) Add(id ID) {
	s.bits.Set(uint(id))
}

// Remove deletes id from the set, if present.
func (s *Set) Remove(id ID) {
	s.bits.Clear(uint(id))
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id ID) bool {
	return s.bits.Test(uint(id))
}

// Len returns the set's cardinality (population count).
func (s *Set) Len() int {
	return int(s.bits.Count())
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	return &Set{bits: s.bits.Clone()}
}

// CloneWithout returns an independent copy of s with id removed.
func (s *Set) CloneWithout(id ID) *Set {
	c := s.Clone()
	c.Remove(id)
	return c
}

// Iterate calls f for every member of s in ascending order. It stops early
// if f returns false.
func (s *Set) Iterate(f func(ID) bool) {
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		if !f(ID(i)) {
			return
		}
	}
}

// Slice returns the members of s in ascending order.
func (s *Set) Slice() []ID {
	out := make([]ID, 0, s.Len())
	s.Iterate(func(id ID) bool {
		out = append(out, id)
		return true
	})
	return out
}

// Union adds every member of other into s.
func (s *Set) Union(other *Set) {
	s.bits.InPlaceUnion(other.bits)
}

// Hash returns a 64-bit content hash of the set: xxhash64 over the packed
// words, with the meaningful suffix normalized (trailing zero words
// ignored) so that two sets of different capacities but equal contents
// hash identically.
func (s *Set) Hash() uint64 {
	words := s.bits.Bytes()
	n := len(words)
	for n > 0 && words[n-1] == 0 {
		n--
	}
	buf := make([]byte, n*8)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], words[i])
	}
	return xxhash.Sum64(buf)
}

// Equal reports whether s and other contain the same members.
func (s *Set) Equal(other *Set) bool {
	return s.bits.Equal(other.bits)
}
