//go:build riscv64

package sbi

// ecall is implemented in ecall_riscv64.s. It traps into M-mode (or the
// hypervisor) via the ecall instruction with a7=ext, a6=fid, a0=arg0, a1=arg1
// and returns the (error, value) pair SBI places in a0/a1.
func ecall(ext, fid, arg0, arg1 uintptr) (uintptr, uintptr)
