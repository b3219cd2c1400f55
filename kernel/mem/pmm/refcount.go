package pmm

import (
	"riscvkernel/kernel"
	"riscvkernel/kernel/mem"
)

// refcountCeiling is the maximum value an 8-bit refcount byte can hold.
// InPlaceCopy panics rather than silently wrapping past it.
const refcountCeiling = 0xFF

// seedRefcounts sets every entry to 1 before Init's dealloc loop walks the
// same range, so each frame goes through the ordinary 1->0 transition that
// Dealloc uses to decide a page is free. Frames never reached by that loop
// (the pages between base and the first frame past the table, which hold
// the table itself) keep their seeded value instead of reading back as a
// silent zero.
func (a *FrameAllocator) seedRefcounts() {
	for i := range a.refcount {
		a.refcount[i] = 1
	}
}

// index returns the refcount slot for a page-aligned physical address.
func (a *FrameAllocator) index(addr uintptr) uintptr {
	return (addr - a.base) / uintptr(mem.PageSize)
}

// InPlaceCopy increments paddr's refcount, modeling a future copy-on-write
// share. Panics if paddr is unaligned or its refcount is already at the
// 8-bit ceiling.
func (a *FrameAllocator) InPlaceCopy(paddr uintptr) {
	if paddr%uintptr(mem.PageSize) != 0 {
		panic(&kernel.Error{Module: "pmm", Message: "in-place copy of an unaligned address"})
	}

	a.refcountMu.Lock()
	defer a.refcountMu.Unlock()

	idx := a.index(paddr)
	if a.refcount[idx] == refcountCeiling {
		panic(&kernel.Error{Module: "pmm", Message: "refcount ceiling reached"})
	}
	a.refcount[idx]++
}

// ExactlyOneReference reports whether paddr's frame currently carries a
// single reference.
func (a *FrameAllocator) ExactlyOneReference(paddr uintptr) bool {
	a.refcountMu.Lock()
	defer a.refcountMu.Unlock()

	return a.refcount[a.index(paddr)] == 1
}
