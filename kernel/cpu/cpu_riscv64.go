//go:build riscv64

package cpu

// DisableInterrupts clears the supervisor interrupt-enable bit.
func DisableInterrupts()

// EnableInterrupts sets the supervisor interrupt-enable bit.
func EnableInterrupts()

// Halt parks the hart in an infinite wfi loop.
func Halt()

// HartID returns the current hart's ID out of the tp register, where the
// entry stub is expected to have stashed it.
func HartID() uintptr
