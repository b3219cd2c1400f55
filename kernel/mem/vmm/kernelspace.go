package vmm

import (
	"sync"

	"riscvkernel/kernel"
	"riscvkernel/kernel/mem"
)

// Trampoline is the fixed high virtual address every address space maps its
// single trampoline page to: one page below MaxVA.
const Trampoline = MaxVA - uintptr(mem.PageSize)

// KernelSymbols are the linker-provided addresses KernelAddressSpace needs.
// A freestanding build fills this in from the link script; hosted tests
// supply a synthetic set over a fabricated memory region.
type KernelSymbols struct {
	Start      uintptr // _start, the base of kernel text
	Etext      uintptr // etext, end of text / start of data
	Phystop    uintptr // upper bound of usable physical memory
	Trampoline uintptr // physical address backing the trampoline page
}

var (
	kernelSpaceOnce  sync.Once
	kernelSpace      *PageTable
	kernelSpaceBuilt bool
)

// KernelAddressSpace idempotently builds the kernel's identity map: text is
// executable, the rest of physical memory up to phystop is read-write, and
// the trampoline page is mapped at the fixed high virtual address every
// address space shares. Subsequent calls with a different sym are ignored,
// exactly like machspec's load latch.
func KernelAddressSpace(sym KernelSymbols) (*PageTable, *kernel.Error) {
	var buildErr *kernel.Error

	kernelSpaceOnce.Do(func() {
		pt, err := New()
		if err != nil {
			buildErr = err
			return
		}

		textLen := mem.Size(sym.Etext - sym.Start)
		if err := pt.Map(sym.Start, textLen, sym.Start, FlagRead|FlagExec); err != nil {
			buildErr = err
			return
		}

		dataLen := mem.Size(sym.Phystop - sym.Etext)
		if err := pt.Map(sym.Etext, dataLen, sym.Etext, FlagRead|FlagWrite); err != nil {
			buildErr = err
			return
		}

		if err := pt.Map(Trampoline, mem.PageSize, sym.Trampoline, FlagRead|FlagExec); err != nil {
			buildErr = err
			return
		}

		kernelSpace = pt
		kernelSpaceBuilt = true
	})

	if !kernelSpaceBuilt {
		return nil, buildErr
	}
	return kernelSpace, nil
}
