package kmain

import (
	"sync"

	"riscvkernel/kernel"
	"riscvkernel/kernel/fdt"
	"riscvkernel/kernel/kfmt/early"
	"riscvkernel/kernel/machspec"
	"riscvkernel/kernel/mem/pmm"
	"riscvkernel/kernel/mem/vmm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "kmain returned"}

// pfaInitOnce latches the frame allocator's one-time initialization.
var pfaInitOnce sync.Once

// Kmain is the only Go symbol visible from the entry stub. It runs once per
// hart, but the one-shot latches in machspec and vmm mean only the first
// caller does any real work; the rest fall straight through to Activate.
//
// fdtPtr, kernelStart, kernelEnd and trampolinePA are supplied by the entry
// stub from linker-provided symbols and the address the bootloader left in
// a register. Kmain is not expected to return; if it does, that's a bug and
// halts the system.
//
//go:noinline
func Kmain(hartID, fdtPtr, kernelStart, kernelEnd, trampolinePA uintptr) {
	early.Printf("booting hart %d\n", hartID)

	blob, err := fdt.FromAddress(fdtPtr)
	if err != nil {
		panic(&kernel.Error{Module: "kmain", Message: err.Error()})
	}
	machspec.Load(blob)

	phystop := machspec.Phystop()
	cpuCount := machspec.CPUCount()
	early.Printf("phystop = 0x%x, cpu_count = %d\n", phystop, cpuCount)

	pfaInitOnce.Do(func() { pmm.PFA.Init(kernelEnd, phystop) })

	sym := vmm.KernelSymbols{
		Start:      kernelStart,
		Etext:      kernelEnd,
		Phystop:    phystop,
		Trampoline: trampolinePA,
	}
	pt, verr := vmm.KernelAddressSpace(sym)
	if verr != nil {
		panic(verr)
	}
	pt.Activate()

	early.Printf("hart %d: kernel address space active\n", hartID)

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating it as dead code.
	kernel.Panic(errKmainReturned)
}
