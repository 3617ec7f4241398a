package vm

import "fmt"

// CheckIntegrity walks the heap from offset 0, block by block. Every header
// must have a nonzero size; an in-use block must be in the allocation table
// with the same size; a free block must appear exactly once, in the free
// list of its size class. The walk must end exactly at the end of the array,
// and neither table may hold entries the walk did not visit.
func (h *Heap) CheckIntegrity() error {
	type freeEntry struct {
		class sizeClass
		count int
	}
	listed := make(map[uint32]*freeEntry)
	listedTotal := 0
	for c, list := range h.free {
		for _, p := range list {
			listedTotal++
			e, ok := listed[p]
			if !ok {
				listed[p] = &freeEntry{class: sizeClass(c), count: 1}
				continue
			}
			e.count++
			if e.class != sizeClass(c) {
				return fmt.Errorf("block %d is on the %s and %s free lists", p, e.class, sizeClass(c))
			}
		}
	}

	var used, free int
	end := uint64(len(h.data))
	cursor := uint64(0)
	for cursor < end {
		if cursor+blockOverhead > end {
			return fmt.Errorf("truncated block header at %d", cursor)
		}
		ptr := uint32(cursor)
		size := h.size(ptr)
		if size == 0 {
			return fmt.Errorf("block %d has size 0", ptr)
		}

		if h.data[ptr]&inUseBit != 0 {
			a, ok := h.allocs[ptr]
			if !ok {
				return fmt.Errorf("in-use block %d missing from allocation table", ptr)
			}
			if a.size != size {
				return fmt.Errorf("block %d: header size %d, table size %d", ptr, size, a.size)
			}
			if _, dup := listed[ptr]; dup {
				return fmt.Errorf("in-use block %d is on a free list", ptr)
			}
			used++
		} else {
			e, ok := listed[ptr]
			switch {
			case !ok:
				return fmt.Errorf("free block %d is on no free list", ptr)
			case e.count != 1:
				return fmt.Errorf("free block %d is listed %d times", ptr, e.count)
			case e.class != classOf(size):
				return fmt.Errorf("free block %d (size %d) is on the %s list, want %s",
					ptr, size, e.class, classOf(size))
			}
			free++
		}

		cursor += blockOverhead + uint64(size)
	}
	if cursor != end {
		return fmt.Errorf("last block overruns the heap: ends at %d, heap is %d words", cursor, end)
	}
	if used != len(h.allocs) {
		return fmt.Errorf("allocation table has %d entries, walk found %d in-use blocks", len(h.allocs), used)
	}
	if free != listedTotal {
		return fmt.Errorf("free lists hold %d entries, walk found %d free blocks", listedTotal, free)
	}
	return nil
}

// MustCheckIntegrity panics with *HeapCorruption when CheckIntegrity fails.
func (h *Heap) MustCheckIntegrity() {
	if err := h.CheckIntegrity(); err != nil {
		log.Errorf("%s", err)
		corrupt("check_integrity", 0, "%s", err)
	}
}
