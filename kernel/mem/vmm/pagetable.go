package vmm

import (
	"riscvkernel/kernel"
	"riscvkernel/kernel/errors"
	"riscvkernel/kernel/mem"
	"riscvkernel/kernel/mem/pmm"
)

// MaxVA bounds every virtual address this engine will walk: one bit below
// Sv39's architectural limit, to keep the high-bit sign-extension behavior
// mandated by the ISA out of scope here. A walk past it is a caller bug.
const MaxVA = uintptr(1) << 38

const (
	sv39Levels   = 3
	sv39IdxBits  = 9
	sv39IdxMask  = (1 << sv39IdxBits) - 1
	entriesPerPT = 1 << sv39IdxBits
)

// heapAllocFn obtains a PageSize frame for a new page-table level; callers
// zero it before use.
// It is backed by the tiny allocator's bypass-to-PFA path and is mocked by
// tests so PageTable can be exercised without a real frame allocator.
var heapAllocFn = func() uintptr { return pmm.Heap.Alloc(mem.PageSize, uintptr(mem.PageSize)) }

// PageTable owns the root frame of a Sv39 three-level radix tree. Inner
// frames are owned by the entry that points at them: an entry with V=1 and
// R=W=X=0 all clear is an inner node, everything else with V=1 is a leaf.
type PageTable struct {
	root uintptr
}

// New allocates a zeroed root frame from the heap and returns a PageTable
// rooted on it.
func New() (*PageTable, *kernel.Error) {
	root := heapAllocFn()
	if root == 0 {
		return nil, &kernel.Error{Module: "vmm", Message: "out of memory allocating page table root"}
	}
	zeroPage(root)
	return &PageTable{root: root}, nil
}

// index returns the 9-bit Sv39 index into level's table for va.
func index(va uintptr, level int) uintptr {
	return (va >> (mem.PageShift + sv39IdxBits*uintptr(level))) & sv39IdxMask
}

// walk descends the tree for va, creating inner tables along the way when
// create is true, and applies edit to the L0 leaf entry it lands on.
func (pt *PageTable) walk(va uintptr, create bool, edit func(*PTE)) *kernel.Error {
	if va >= MaxVA {
		panic(&kernel.Error{Module: "vmm", Message: "virtual address exceeds MAX_VA"})
	}

	table := pt.root
	for level := sv39Levels - 1; level > 0; level-- {
		entries := PAMut[PTE](table)
		entry := &entries[index(va, level)]

		if entry.Valid() {
			table = entry.Address()
			continue
		}

		if !create {
			return &kernel.Error{Module: "vmm", Message: string(errors.ErrUnallocated)}
		}

		child := heapAllocFn()
		if child == 0 {
			return &kernel.Error{Module: "vmm", Message: string(errors.ErrOutOfMemory)}
		}
		zeroPage(child)

		entry.SetMapping(child)
		entry.SetFlags(FlagValid)
		table = child
	}

	entries := PAMut[PTE](table)
	edit(&entries[index(va, 0)])
	return nil
}

// walkConst performs a read-only descent and hands read the L0 leaf it
// finds, or ErrUnallocated if no mapping exists.
func (pt *PageTable) walkConst(va uintptr, read func(PTE)) *kernel.Error {
	if va >= MaxVA {
		panic(&kernel.Error{Module: "vmm", Message: "virtual address exceeds MAX_VA"})
	}

	table := pt.root
	for level := sv39Levels - 1; level > 0; level-- {
		entries := PAConst[PTE](table)
		entry := entries[index(va, level)]
		if !entry.Valid() {
			return &kernel.Error{Module: "vmm", Message: string(errors.ErrUnallocated)}
		}
		table = entry.Address()
	}

	entries := PAConst[PTE](table)
	leaf := entries[index(va, 0)]
	if !leaf.Valid() {
		return &kernel.Error{Module: "vmm", Message: string(errors.ErrUnallocated)}
	}
	read(leaf)
	return nil
}

// Map installs [pgrounddown(va), pgrounddown(va+len-1)] (inclusive of the
// final page) to the matching run of physical pages starting at pa, with
// the given flags. Panics on a zero-length request or on finding an
// already-valid leaf (double mapping); returns an error if an inner table
// allocation fails along the way.
func (pt *PageTable) Map(va uintptr, length mem.Size, pa uintptr, flags PTEFlag) *kernel.Error {
	if length == 0 {
		panic(&kernel.Error{Module: "vmm", Message: "map called with zero length"})
	}

	vaStart := mem.PageRoundDown(va)
	vaEnd := mem.PageRoundDown(va + uintptr(length) - 1)

	for v := vaStart; ; v += uintptr(mem.PageSize) {
		target := pa + (v - vaStart)

		err := pt.walk(v, true, func(leaf *PTE) {
			if leaf.Valid() {
				panic(&kernel.Error{Module: "vmm", Message: "double mapping of a virtual address"})
			}
			leaf.SetMapping(target)
			leaf.SetFlags(flags | FlagValid)
		})
		if err != nil {
			return err
		}

		if v == vaEnd {
			break
		}
	}

	return nil
}

// WalkConst exposes walkConst for read-only lookups from outside the
// package (used by tests and by the kernel address space builder to verify
// its own mappings).
func (pt *PageTable) WalkConst(va uintptr, read func(PTE)) *kernel.Error {
	return pt.walkConst(va, read)
}

// Root returns the physical address of the table's root frame.
func (pt *PageTable) Root() uintptr { return pt.root }

const (
	satpModeSv39 = uintptr(8)
	satpModeShift = 60
	satpPPNShift  = 0
)

// writeSatpFn is mocked by tests and is automatically inlined by the
// compiler in the production build.
var writeSatpFn = writeSatp

// Activate writes satp with mode Sv39, ASID 0, and this table's root PPN,
// then issues the architectural TLB barrier the platform requires.
func (pt *PageTable) Activate() {
	satp := satpModeSv39<<satpModeShift | (pt.root>>mem.PageShift)<<satpPPNShift
	writeSatpFn(satp)
}

func zeroPage(addr uintptr) {
	mem.Memset(addr, 0, mem.PageSize)
}
