// Package errors defines allocation-free sentinel error values shared by the
// boot-time memory subsystem. KernelError avoids errors.New because the Go
// allocator is not guaranteed to be available when these values are first
// referenced.
package errors

var (
	ErrInvalidParamValue = KernelError("invalid parameter value")

	// ErrUnallocated is returned by a page table walk performed with
	// create=false when no mapping exists for the requested address.
	ErrUnallocated = KernelError("virtual address is unmapped")

	// ErrOutOfMemory is returned when an inner page-table frame could not
	// be obtained from the physical frame allocator.
	ErrOutOfMemory = KernelError("out of physical memory")

	// ErrDoubleMapping names the case of the walker finding an
	// already-valid leaf entry for a requested virtual page. Map panics
	// on that case instead of returning this value.
	ErrDoubleMapping = KernelError("virtual address is already mapped")

	// ErrFDTMissingMemory is returned when a flattened device tree has no
	// usable /memory region.
	ErrFDTMissingMemory = KernelError("flattened device tree has no memory region")

	// ErrFDTMalformed is returned when the flattened device tree header or
	// struct block fails to parse.
	ErrFDTMalformed = KernelError("flattened device tree is malformed")

	// ErrVAOutOfRange names the case of a virtual address at or beyond
	// MAX_VA. Page table walks panic on that case instead of returning
	// this value.
	ErrVAOutOfRange = KernelError("virtual address exceeds MAX_VA")
)

// KernelError is a trivial implementation of a kernel error message that doesn't
// require a memory allocation. It is used as an alternative to errors.New.
type KernelError string

// Error implements the error interface.
func (err KernelError) Error() string {
	return string(err)
}
