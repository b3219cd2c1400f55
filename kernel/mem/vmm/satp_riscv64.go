//go:build riscv64

package vmm

// writeSatp writes the satp CSR with the given value and issues the global
// sfence.vma barrier the platform requires after changing the active
// address space.
func writeSatp(value uintptr)
