package bbl

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
)

const perfectHashDegree = 32

type hashEntry struct {
	Hash uint32
	Bin  uint32
}

func lessHashEntry(a, b hashEntry) bool {
	return a.Hash < b.Hash
}

//PerfectHash is an exact mapping from a raw hashed categorical value to a dense bin id.
//Entries are kept ordered by hash so that serialization and checksums are deterministic.
//Concurrent Find calls are safe as long as nobody mutates the mapping.
type PerfectHash struct {
	tree *btree.BTreeG[hashEntry]
}

//NewPerfectHash builds a PerfectHash from a plain map.
func NewPerfectHash(mapping map[uint32]uint32) *PerfectHash {
	h := &PerfectHash{tree: btree.NewG[hashEntry](perfectHashDegree, lessHashEntry)}
	for hash, bin := range mapping {
		h.tree.ReplaceOrInsert(hashEntry{Hash: hash, Bin: bin})
	}
	return h
}

func newEmptyPerfectHash() *PerfectHash {
	return &PerfectHash{tree: btree.NewG[hashEntry](perfectHashDegree, lessHashEntry)}
}

//Find returns the bin of a raw hashed value.
func (h *PerfectHash) Find(hash uint32) (uint32, bool) {
	if h == nil {
		return 0, false
	}
	e, ok := h.tree.Get(hashEntry{Hash: hash})
	return e.Bin, ok
}

func (h *PerfectHash) Len() int {
	if h == nil {
		return 0
	}
	return h.tree.Len()
}

//Ascend calls fn for every entry in increasing hash order until fn returns false.
func (h *PerfectHash) Ascend(fn func(hash, bin uint32) bool) {
	if h == nil {
		return
	}
	h.tree.Ascend(func(e hashEntry) bool {
		return fn(e.Hash, e.Bin)
	})
}

//ToMap copies the mapping into a plain map.
func (h *PerfectHash) ToMap() map[uint32]uint32 {
	result := make(map[uint32]uint32, h.Len())
	h.Ascend(func(hash, bin uint32) bool {
		result[hash] = bin
		return true
	})
	return result
}

//Equal compares two mappings entry by entry.
func (h *PerfectHash) Equal(other *PerfectHash) bool {
	if h.Len() != other.Len() {
		return false
	}
	equal := true
	h.Ascend(func(hash, bin uint32) bool {
		otherBin, ok := other.Find(hash)
		equal = ok && otherBin == bin
		return equal
	})
	return equal
}

func (h *PerfectHash) updateDigest(d *xxhash.Digest) {
	var buf [8]byte
	h.Ascend(func(hash, bin uint32) bool {
		putUint32Pair(buf[:], hash, bin)
		_, _ = d.Write(buf[:])
		return true
	})
}

//ExtendPerfectHash returns a mapping that keeps every entry of existing and assigns
//the next dense ids to unseen values in order of first occurrence.
func ExtendPerfectHash(existing *PerfectHash, values []uint32) map[uint32]uint32 {
	result := existing.ToMap()
	next := uint32(len(result))
	for _, value := range values {
		if _, ok := result[value]; !ok {
			result[value] = next
			next++
		}
	}
	return result
}

//HashCatValue converts a raw categorical token into the 32-bit value stored in categorical columns.
func HashCatValue(token string) uint32 {
	return uint32(xxhash.Sum64String(token))
}
