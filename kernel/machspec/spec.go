// Package machspec publishes the two machine-wide facts the rest of boot
// depends on: how much physical memory exists and how many harts are
// present. Both are derived once, from the FDT, and then latched: every
// later reader blocks on the same one-shot load instead of re-parsing
// anything.
package machspec

import (
	"sync"

	"riscvkernel/kernel"
	"riscvkernel/kernel/errors"
	"riscvkernel/kernel/fdt"
	"riscvkernel/kernel/mem"
	"riscvkernel/kernel/mem/vmm"
)

var (
	loadOnce sync.Once
	ready    = make(chan struct{})

	phystopVal  uintptr
	cpuCountVal int
)

// Load parses r once and publishes phystop/cpu_count. Later calls, from any
// goroutine, are no-ops. Panics if the FDT has no memory region or its cpu
// nodes can't be counted: both are boot-time contract violations, not
// recoverable conditions.
func Load(r fdt.Reader) {
	loadOnce.Do(func() {
		regions, err := r.MemoryRegions()
		if err != nil {
			panic(&kernel.Error{Module: "machspec", Message: string(errors.ErrFDTMissingMemory)})
		}

		var trueTop uint64
		for _, region := range regions {
			if end := region.End(); end > trueTop {
				trueTop = end
			}
		}

		count, err := r.CPUCount()
		if err != nil {
			panic(&kernel.Error{Module: "machspec", Message: string(errors.ErrFDTMalformed)})
		}

		reserved := uintptr(mem.PageSize) * uintptr(2*count+1)
		top := uintptr(trueTop)
		if clamped := vmm.MaxVA - reserved; clamped < top {
			top = clamped
		}

		phystopVal = mem.PageRoundDown(top)
		cpuCountVal = count
		close(ready)
	})
}

// Phystop blocks until Load has completed, then returns the clamped upper
// bound of usable physical memory.
func Phystop() uintptr {
	<-ready
	return phystopVal
}

// CPUCount blocks until Load has completed, then returns the number of
// harts found under /cpus.
func CPUCount() int {
	<-ready
	return cpuCountVal
}
