// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.

// Package stackhash computes the running 64-bit call-stack id hashes used
// by callstackleak and cfgleak: xxhash64 chaining (parent stack id, target
// address) for callstackleak (CallStack) and (parent stack id, source
// address, target address) for cfgleak (Node), byte-for-byte reproducible
// across runs and across implementations.
package stackhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// CallStack hashes (parentStackID, target) into a new 16-byte-layout
// call-stack id, as used by the per-testcase call tree maintained during
// ingest. target is the destination instruction id of the taken call.
func CallStack(parentStackID, target uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], parentStackID)
	binary.LittleEndian.PutUint64(buf[8:16], target)
	return xxhash.Sum64(buf[:])
}

// Node hashes (parentStackID, src, tgt) into a new 24-byte-layout call-tree
// node id, as used by the radix-trie call nodes in cfgleak.
func Node(parentStackID, src, tgt uint64) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], parentStackID)
	binary.LittleEndian.PutUint64(buf[8:16], src)
	binary.LittleEndian.PutUint64(buf[16:24], tgt)
	return xxhash.Sum64(buf[:])
}

// Digest is the 16-byte rolling per-instruction memory-address digest:
// an order-sensitive, collision-resistant summary of the sequence of
// addresses an instruction has accessed in one testcase.
type Digest [16]byte

// Roll folds addr into d: writes addr little-endian into bytes [8,16) and
// overwrites bytes [0,8) with xxhash64(d, 16).
func (d *Digest) Roll(addr uint64) {
	binary.LittleEndian.PutUint64(d[8:16], addr)
	sum := xxhash.Sum64(d[:])
	binary.LittleEndian.PutUint64(d[0:8], sum)
}
