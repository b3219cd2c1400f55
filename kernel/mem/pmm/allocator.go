// Package pmm implements the boot-time physical memory managers: the page
// frame allocator that owns [end, phystop) and the tiny allocator layered on
// top of it.
package pmm

import (
	"reflect"
	"sync"
	"unsafe"

	"riscvkernel/kernel"
	"riscvkernel/kernel/mem"
)

// Frame is the page-aligned physical base address of a single PageSize
// frame handed out by FrameAllocator.
type Frame uintptr

// InvalidFrame is returned by Alloc when the request is rejected or the
// freelist is empty.
const InvalidFrame = Frame(0)

// Valid reports whether f was actually handed out by Alloc.
func (f Frame) Valid() bool { return f != InvalidFrame }

// Address returns the physical address backing f.
func (f Frame) Address() uintptr { return uintptr(f) }

const (
	// PoisonAlloc is written across a frame's contents the moment it
	// leaves the freelist, so an uninitialized read is easy to spot.
	PoisonAlloc = 0x05

	// PoisonFree is written across a frame's contents the moment it is
	// pushed back onto the freelist; the first word is then overwritten
	// with the freelist link.
	PoisonFree = 0x01
)

// FrameAllocator owns the physical region [base, limit) and hands out
// PageSize frames from a LIFO freelist threaded through the free pages
// themselves, alongside a per-frame refcount byte used for future
// copy-on-write sharing.
//
// freelistMu guards the freelist head; refcountMu guards the refcount
// table. The only path that holds both is alloc/dealloc, which always
// acquires freelistMu first and releases refcountMu before mutating the
// freelist head. No other code path may hold both locks at once.
type FrameAllocator struct {
	freelistMu sync.Mutex
	refcountMu sync.Mutex

	freeHead uintptr
	base     uintptr // first frame address covered by refcount, i.e. pgroundup(end)
	limit    uintptr // phystop, rounded down
	refcount []byte  // refcount[i] is the refcount of the frame at base+i*PageSize
}

// PFA is the kernel-wide physical frame allocator singleton.
var PFA FrameAllocator

// Init places the refcount table at end, seeds it so that every in-range
// frame appears to already carry a single reference, then dealloc's every
// frame from the first one past the table up to phystop. This is the only
// sanctioned way to populate the freelist: by the time Init returns, every
// usable frame has gone through the same Dealloc path production code uses
// later, so its poisoning and refcount bookkeeping are identical.
func (a *FrameAllocator) Init(end, phystop uintptr) {
	base := mem.PageRoundUp(end)
	limit := mem.PageRoundDown(phystop)

	var pageCount uintptr
	if limit > base {
		pageCount = (limit - base) / uintptr(mem.PageSize)
	}

	a.base = base
	a.limit = limit
	a.freeHead = 0
	a.refcount = frameOverlay(end, int(pageCount))
	a.seedRefcounts()

	start := mem.PageRoundUp(end + pageCount)
	for ptr := start; ptr < limit; ptr += uintptr(mem.PageSize) {
		a.Dealloc(ptr)
	}
}

// Alloc rejects requests wider or more aligned than a single page, then
// pops the freelist head. The popped frame's refcount goes from 0 to 1 and
// its contents are poisoned with PoisonAlloc. Returns InvalidFrame if the
// freelist is empty.
func (a *FrameAllocator) Alloc(size mem.Size, align uintptr) Frame {
	if size > mem.PageSize || align > uintptr(mem.PageSize) {
		return InvalidFrame
	}

	a.freelistMu.Lock()
	defer a.freelistMu.Unlock()

	head := a.freeHead
	if head == 0 {
		return InvalidFrame
	}
	next := *(*uintptr)(unsafe.Pointer(head))

	a.refcountMu.Lock()
	a.refcount[a.index(head)] = 1
	a.refcountMu.Unlock()

	mem.Memset(head, PoisonAlloc, mem.PageSize)
	a.freeHead = next

	return Frame(head)
}

// Dealloc decrements ptr's refcount and, if it reaches zero, poisons the
// page with PoisonFree and pushes it back onto the freelist. Panics if ptr
// is not page-aligned, falls outside [base, limit), or already carries a
// zero refcount.
func (a *FrameAllocator) Dealloc(ptr uintptr) {
	if ptr%uintptr(mem.PageSize) != 0 || ptr < a.base || ptr >= a.limit {
		panic(&kernel.Error{Module: "pmm", Message: "dealloc of address outside the managed region"})
	}

	a.freelistMu.Lock()
	defer a.freelistMu.Unlock()

	a.refcountMu.Lock()
	idx := a.index(ptr)
	if a.refcount[idx] == 0 {
		a.refcountMu.Unlock()
		panic(&kernel.Error{Module: "pmm", Message: "dealloc of a frame with zero refcount"})
	}
	a.refcount[idx]--
	justFreed := a.refcount[idx] == 0
	a.refcountMu.Unlock()

	if !justFreed {
		return
	}

	mem.Memset(ptr, PoisonFree, mem.PageSize)
	*(*uintptr)(unsafe.Pointer(ptr)) = a.freeHead
	a.freeHead = ptr
}

// FreeCount traverses the freelist and returns its length in bytes.
func (a *FrameAllocator) FreeCount() mem.Size {
	a.freelistMu.Lock()
	defer a.freelistMu.Unlock()

	var count mem.Size
	for p := a.freeHead; p != 0; p = *(*uintptr)(unsafe.Pointer(p)) {
		count += mem.PageSize
	}
	return count
}

// frameOverlay reinterprets the n bytes starting at addr as a []byte
// without copying, the same trick kernel/mem.Memset uses to address raw
// physical memory before any allocator is available.
func frameOverlay(addr uintptr, n int) []byte {
	var s []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&s))
	hdr.Data = addr
	hdr.Len = n
	hdr.Cap = n
	return s
}
