package vm

import (
	"fmt"
	"math"
	"slices"

	"fortio.org/safecast"
)

// ---------------------------------------------------------------------------
// Heap layout
// ---------------------------------------------------------------------------
//
// The heap is one growable array of 32-bit words. A block is
//
//	[header][refcount][payload ...]
//
// and a pointer is the offset of the header. Header bit 31 is the in-use
// flag and bits 0-30 hold the payload size, so the next block starts at
// ptr + size + 2. Freed blocks go onto one of three free lists chosen by
// payload size.

const (
	MediumBlockSize = 256
	LargeBlockSize  = 8192

	blockOverhead = 2
	inUseBit      = uint32(1) << 31
	maxBlockSize  = inUseBit - 1

	// heapGrowChunk is the minimum number of words added when no free
	// block fits.
	heapGrowChunk = 1024
)

type sizeClass int

const (
	classSmall sizeClass = iota
	classMedium
	classLarge
	classCount
)

func classOf(size uint32) sizeClass {
	switch {
	case size < MediumBlockSize:
		return classSmall
	case size < LargeBlockSize:
		return classMedium
	}
	return classLarge
}

func (c sizeClass) String() string {
	return [...]string{"small", "medium", "large"}[c]
}

// HeapCorruption is the panic value for a broken heap invariant: double free,
// use after free, a pointer that is not a block, or a failed integrity scan.
type HeapCorruption struct {
	Op     string
	Ptr    uint32
	Reason string
}

func (e *HeapCorruption) Error() string {
	return fmt.Sprintf("heap corruption: %s(%d): %s", e.Op, e.Ptr, e.Reason)
}

func corrupt(op string, ptr uint32, format string, args ...any) {
	panic(&HeapCorruption{Op: op, Ptr: ptr, Reason: fmt.Sprintf(format, args...)})
}

// allocation is the side-table record of an in-use block.
type allocation struct {
	size   uint32 // payload words in the block
	length uint32 // payload words requested
	ptrs   []bool // which payload words hold heap pointers
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Heap is a size-classed free-list allocator with reference counting.
// It is not safe for concurrent use.
type Heap struct {
	data   []uint32
	allocs map[uint32]*allocation
	free   [classCount][]uint32
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{allocs: make(map[uint32]*allocation)}
}

// Reset drops every block.
func (h *Heap) Reset() {
	h.data = h.data[:0]
	clear(h.allocs)
	for c := range h.free {
		h.free[c] = h.free[c][:0]
	}
}

func (h *Heap) size(ptr uint32) uint32 { return h.data[ptr] &^ inUseBit }

func (h *Heap) pushFree(ptr uint32) {
	c := classOf(h.size(ptr))
	h.free[c] = append(h.free[c], ptr)
}

// Alloc returns a block with room for n payload words, zeroed, with
// refcount 1. Requests for zero words still get a one-word block.
func (h *Heap) Alloc(n uint32) uint32 {
	if n > maxBlockSize-blockOverhead {
		corrupt("alloc", 0, "request of %d words is too large", n)
	}
	need := max(n, 1)

	for c := classOf(need); c < classCount; c++ {
		for i, ptr := range h.free[c] {
			size := h.size(ptr)
			if size < need {
				continue
			}
			h.free[c] = slices.Delete(h.free[c], i, i+1)
			if size-need >= blockOverhead+1 {
				rest := ptr + blockOverhead + need
				h.data[rest] = size - need - blockOverhead
				h.data[rest+1] = 0
				h.pushFree(rest)
				size = need
			}
			return h.claim(ptr, size, n)
		}
	}

	// Nothing fits: grow and carve from the new tail.
	grow := max(need+blockOverhead, heapGrowChunk)
	start, err := safecast.Convert[uint32](len(h.data))
	if err != nil || uint64(start)+uint64(grow) > uint64(maxBlockSize) {
		corrupt("alloc", 0, "heap exhausted at %d words", len(h.data))
	}
	h.data = append(h.data, make([]uint32, grow)...)

	size := grow - blockOverhead
	if rem := grow - need - blockOverhead; rem >= blockOverhead+1 {
		rest := start + blockOverhead + need
		h.data[rest] = rem - blockOverhead
		h.data[rest+1] = 0
		h.pushFree(rest)
		size = need
	}
	return h.claim(start, size, n)
}

func (h *Heap) claim(ptr, size, length uint32) uint32 {
	h.data[ptr] = size | inUseBit
	h.data[ptr+1] = 1
	clear(h.data[ptr+blockOverhead : ptr+blockOverhead+size])
	h.allocs[ptr] = &allocation{size: size, length: length, ptrs: make([]bool, size)}
	return ptr
}

// block validates that ptr is the header of an in-use block.
func (h *Heap) block(op string, ptr uint32) *allocation {
	if uint64(ptr)+blockOverhead > uint64(len(h.data)) {
		corrupt(op, ptr, "pointer out of range (heap is %d words)", len(h.data))
	}
	a, ok := h.allocs[ptr]
	if h.data[ptr]&inUseBit == 0 {
		if op == "free" {
			corrupt(op, ptr, "double free")
		}
		corrupt(op, ptr, "use after free")
	}
	if !ok {
		corrupt(op, ptr, "not the start of an allocated block")
	}
	return a
}

// Len is the number of payload words requested when ptr was allocated.
func (h *Heap) Len(ptr uint32) uint32 { return h.block("len", ptr).length }

// RefCount returns the block's current reference count.
func (h *Heap) RefCount(ptr uint32) uint32 {
	h.block("rc", ptr)
	return h.data[ptr+1]
}

// Store writes payload word i. When isPtr is set the word is a heap
// pointer whose reference the block now owns; no count is changed.
func (h *Heap) Store(ptr, i, w uint32, isPtr bool) {
	a := h.block("store", ptr)
	if i >= a.length {
		corrupt("store", ptr, "index %d out of bounds (len %d)", i, a.length)
	}
	h.data[ptr+blockOverhead+i] = w
	a.ptrs[i] = isPtr
}

// Load reads payload word i and whether it is a heap pointer.
func (h *Heap) Load(ptr, i uint32) (uint32, bool) {
	a := h.block("load", ptr)
	if i >= a.length {
		corrupt("load", ptr, "index %d out of bounds (len %d)", i, a.length)
	}
	return h.data[ptr+blockOverhead+i], a.ptrs[i]
}

// IncRC adds a reference to ptr.
func (h *Heap) IncRC(ptr uint32) {
	h.block("inc_rc", ptr)
	if h.data[ptr+1] == math.MaxUint32 {
		corrupt("inc_rc", ptr, "refcount overflow")
	}
	h.data[ptr+1]++
}

// Clone copies ptr's payload into a new block with refcount 1. Pointers in
// the payload gain a reference each, shared with the original.
func (h *Heap) Clone(ptr uint32) uint32 {
	n := h.block("clone", ptr).length
	cp := h.Alloc(n)
	src := h.allocs[ptr]
	for i := uint32(0); i < n; i++ {
		w := h.data[ptr+blockOverhead+i]
		if src.ptrs[i] {
			h.IncRC(w)
		}
		h.data[cp+blockOverhead+i] = w
		h.allocs[cp].ptrs[i] = src.ptrs[i]
	}
	return cp
}

// DecRC drops a reference to ptr. At zero the block is freed and every
// pointer it holds is released in turn.
func (h *Heap) DecRC(ptr uint32) {
	work := []uint32{ptr}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		a := h.block("dec_rc", p)
		if h.data[p+1] == 0 {
			corrupt("dec_rc", p, "refcount already zero")
		}
		h.data[p+1]--
		if h.data[p+1] > 0 {
			continue
		}
		for i, isPtr := range a.ptrs {
			if isPtr {
				work = append(work, h.data[p+blockOverhead+uint32(i)])
			}
		}
		h.Free(p)
	}
}

// Free returns the block to its free list without touching the blocks it
// points to. DecRC is the usual way to release memory.
func (h *Heap) Free(ptr uint32) {
	h.block("free", ptr)
	h.data[ptr] &^= inUseBit
	h.data[ptr+1] = 0
	delete(h.allocs, ptr)
	h.pushFree(ptr)
}

// HeapStats summarizes heap occupancy. Words = UsedWords + FreeWords +
// 2 * (UsedBlocks + FreeBlocks).
type HeapStats struct {
	Words      int
	UsedBlocks int
	UsedWords  int
	FreeBlocks int
	FreeWords  int
}

func (h *Heap) Stats() HeapStats {
	s := HeapStats{Words: len(h.data), UsedBlocks: len(h.allocs)}
	for _, a := range h.allocs {
		s.UsedWords += int(a.size)
	}
	for _, list := range h.free {
		s.FreeBlocks += len(list)
		for _, p := range list {
			s.FreeWords += int(h.size(p))
		}
	}
	return s
}
