package pmm

import (
	"sync"
	"unsafe"

	"riscvkernel/kernel/mem"
)

// tinyAlign is the alignment every tiny payload is rounded up to.
const tinyAlign = 16

// tinyHeader immediately precedes every tiny payload (in-use) or sits alone
// on the free-list (free). The same layout serves both roles; size means
// "bytes available starting right after this header" in either case.
type tinyHeader struct {
	next uintptr
	size uintptr
}

var tinyHeaderSize = unsafe.Sizeof(tinyHeader{})

// bypassThreshold mirrors the teacher's PageSize-minus-overhead guards:
// requests at or above it skip tiny bookkeeping entirely and go straight to
// the frame allocator.
func bypassThreshold() uintptr {
	return uintptr(mem.PageSize) - 2*tinyHeaderSize
}

func headerAt(addr uintptr) *tinyHeader {
	return (*tinyHeader)(unsafe.Pointer(addr))
}

func roundUpTiny(n uintptr) uintptr {
	return (n + tinyAlign - 1) &^ (tinyAlign - 1)
}

// TinyAllocator carves arbitrary small allocations out of pages obtained
// from the package's FrameAllocator singleton. It never coalesces freed
// blocks; a page's fragments live until the whole page itself is never
// referenced again, which this allocator does not attempt to detect.
type TinyAllocator struct {
	mu       sync.Mutex
	freeHead uintptr
}

// Heap is the kernel-wide sub-page allocator singleton.
var Heap TinyAllocator

// Alloc returns a pointer to at least size bytes, aligned to align. Requests
// at or above the tiny threshold, or with alignment above tinyAlign, bypass
// straight to PFA and hand back a whole page; PFA rejects requests larger or
// more aligned than a page. Returns 0 on failure.
func (h *TinyAllocator) Alloc(size mem.Size, align uintptr) uintptr {
	if uintptr(size) >= bypassThreshold() || align > tinyAlign {
		f := PFA.Alloc(size, align)
		return f.Address()
	}

	req := roundUpTiny(uintptr(size))

	h.mu.Lock()
	defer h.mu.Unlock()

	if addr := h.allocFromFreelist(req); addr != 0 {
		return addr
	}
	return h.grow(req)
}

// allocFromFreelist performs the first-fit search with split described by
// the tiny allocator's contract. Callers must hold h.mu.
func (h *TinyAllocator) allocFromFreelist(req uintptr) uintptr {
	var prev uintptr
	for cur := h.freeHead; cur != 0; cur = headerAt(cur).next {
		hdr := headerAt(cur)
		if hdr.size < req {
			prev = cur
			continue
		}

		remaining := hdr.size - req
		if remaining > tinyHeaderSize {
			// Split: shrink the free block in place and place a new
			// in-use header at the tail end of its shrunken body.
			hdr.size = remaining - tinyHeaderSize
			allocHeaderAddr := cur + tinyHeaderSize + hdr.size
			headerAt(allocHeaderAddr).size = req
			return allocHeaderAddr + tinyHeaderSize
		}

		// Not enough room left to carve out a header: hand over the
		// whole block and unlink it.
		if prev == 0 {
			h.freeHead = hdr.next
		} else {
			headerAt(prev).next = hdr.next
		}
		return cur + tinyHeaderSize
	}
	return 0
}

// grow pulls a fresh page from PFA and carves it into an in-use header of
// size req followed by a free header covering the remainder, which is
// pushed onto the free-list head.
func (h *TinyAllocator) grow(req uintptr) uintptr {
	f := PFA.Alloc(mem.PageSize, uintptr(mem.PageSize))
	if !f.Valid() {
		return 0
	}

	pageAddr := f.Address()
	headerAt(pageAddr).size = req

	remainderAddr := pageAddr + tinyHeaderSize + req
	remainder := headerAt(remainderAddr)
	remainder.size = uintptr(mem.PageSize) - 2*tinyHeaderSize - req
	remainder.next = h.freeHead
	h.freeHead = remainderAddr

	return pageAddr + tinyHeaderSize
}

// Free prepends the block preceding ptr back onto the free-list. It does
// not coalesce with neighboring blocks. A page-aligned ptr is assumed to be
// a bypass allocation and is returned to PFA directly, since the tiny
// allocator never places a header immediately before a page-aligned
// address it handed out itself.
func (h *TinyAllocator) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	if ptr%uintptr(mem.PageSize) == 0 {
		PFA.Dealloc(ptr)
		return
	}

	headerAddr := ptr - tinyHeaderSize

	h.mu.Lock()
	defer h.mu.Unlock()

	hdr := headerAt(headerAddr)
	hdr.next = h.freeHead
	h.freeHead = headerAddr
}

// Realloc returns ptr unchanged if its current block already satisfies
// newSize; otherwise it allocates fresh, copies min(old, new) bytes, and
// frees the original.
func (h *TinyAllocator) Realloc(ptr uintptr, newSize mem.Size) uintptr {
	if ptr == 0 {
		return h.Alloc(newSize, tinyAlign)
	}

	if ptr%uintptr(mem.PageSize) == 0 {
		if uintptr(newSize) <= uintptr(mem.PageSize) {
			return ptr
		}
		newPtr := h.Alloc(newSize, tinyAlign)
		if newPtr == 0 {
			return 0
		}
		copyOverlay(newPtr, ptr, uintptr(mem.PageSize))
		PFA.Dealloc(ptr)
		return newPtr
	}

	hdr := headerAt(ptr - tinyHeaderSize)
	if hdr.size >= uintptr(newSize) {
		return ptr
	}

	newPtr := h.Alloc(newSize, tinyAlign)
	if newPtr == 0 {
		return 0
	}
	copyOverlay(newPtr, ptr, hdr.size)
	h.Free(ptr)
	return newPtr
}

func copyOverlay(dst, src, n uintptr) {
	copy(frameOverlay(dst, int(n)), frameOverlay(src, int(n)))
}
