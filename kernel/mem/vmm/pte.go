// Package vmm implements the Sv39 page-table engine: the bitfield view of a
// single page-table entry, the three-level radix tree built from it, and the
// kernel's own identity-mapped address space.
package vmm

import (
	"unsafe"

	"golang.org/x/exp/constraints"

	"riscvkernel/kernel/mem"
)

// PTEFlag is a bitmask over the low bits of a Sv39 page table entry.
type PTEFlag uint64

// PTE flag bits, per the Sv39 encoding: V[0] R[1] W[2] X[3] U[4] G[5] A[6] D[7].
const (
	FlagValid PTEFlag = 1 << iota
	FlagRead
	FlagWrite
	FlagExec
	FlagUser
	FlagGlobal
	FlagAccessed
	FlagDirty
)

// RSW is the 2-bit reserved-for-software field carried by every PTE.
type RSW uint64

const (
	// RSWDefault is the zero value: the page is not under any
	// software-defined protocol.
	RSWDefault RSW = 0

	// RSWCOWPage marks a page shared copy-on-write. No fault handler
	// consumes this tag yet; it exists so the page table engine can
	// carry the bit through to the eventual handler.
	RSWCOWPage RSW = 1
)

const (
	rswShift = 8
	rswMask  = 0x3
	ppnShift = 10
)

// PTE is a single Sv39 page table entry: V R W X U G A D RSW[9:8] PPN[53:10].
type PTE uint64

// Valid reports whether the V bit is set.
func (p PTE) Valid() bool { return PTEFlag(p)&FlagValid != 0 }

// HasFlags reports whether every bit in flags is set.
func (p PTE) HasFlags(flags PTEFlag) bool { return PTEFlag(p)&flags == flags }

// HasAnyFlag reports whether any bit in flags is set.
func (p PTE) HasAnyFlag(flags PTEFlag) bool { return PTEFlag(p)&flags != 0 }

// Flags returns the low 8 flag bits (V through D) as a single value.
func (p PTE) Flags() PTEFlag { return PTEFlag(p) & 0xFF }

// SetFlags ORs flags into the entry's low 8 bits.
func (p *PTE) SetFlags(flags PTEFlag) { *p |= PTE(flags & 0xFF) }

// ClearFlags clears flags from the entry's low 8 bits.
func (p *PTE) ClearFlags(flags PTEFlag) { *p &^= PTE(flags & 0xFF) }

// RSW returns the reserved-for-software field.
func (p PTE) RSW() RSW { return RSW(uint64(p)>>rswShift) & rswMask }

// SetRSW overwrites the reserved-for-software field.
func (p *PTE) SetRSW(v RSW) {
	*p &^= PTE(rswMask << rswShift)
	*p |= PTE(uint64(v)&rswMask) << rswShift
}

// Address returns the physical address this PTE points to: PPN << 12.
func (p PTE) Address() uintptr { return uintptr((uint64(p) >> ppnShift) << mem.PageShift) }

// SetMapping encodes paddr's page number into the PPN field. paddr must be
// page-aligned; callers are expected to have rounded it already.
func (p *PTE) SetMapping(paddr uintptr) {
	*p &= PTE(1<<ppnShift - 1)
	*p |= PTE((uint64(paddr) >> mem.PageShift) << ppnShift)
}

// ClearAccessed clears the A bit. Software may only clear A/D, never set
// them; the hardware sets them on access and on write respectively.
func (p *PTE) ClearAccessed() { p.ClearFlags(FlagAccessed) }

// ClearDirty clears the D bit.
func (p *PTE) ClearDirty() { p.ClearFlags(FlagDirty) }

// PAMut reinterprets the PageSize-byte frame at pa as a mutable slice of T,
// the way the corpus's page-table walkers treat an inner entry's target as
// an array of 512 PTEs. Every T that fits PAMut's use here is some flavor of
// fixed-width integer, hence the constraints.Integer bound.
func PAMut[T constraints.Integer](pa uintptr) []T {
	var zero T
	n := int(mem.PageSize) / int(unsafe.Sizeof(zero))
	var s []T
	hdr := (*sliceHeader)(unsafe.Pointer(&s))
	hdr.Data = pa
	hdr.Len = n
	hdr.Cap = n
	return s
}

// PAConst is PAMut's read-only counterpart.
func PAConst[T constraints.Integer](pa uintptr) []T {
	return PAMut[T](pa)
}

// sliceHeader mirrors reflect.SliceHeader; declared locally so pte.go does
// not need to import reflect.
type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
