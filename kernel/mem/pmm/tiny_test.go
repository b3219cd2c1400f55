package pmm

import (
	"testing"
	"unsafe"

	"riscvkernel/kernel/mem"
)

func TestTinyGrowFromEmptyFreelist(t *testing.T) {
	_, end, phystop := region(4)

	PFA = FrameAllocator{}
	PFA.Init(end, phystop)
	h := TinyAllocator{}

	ptr := h.Alloc(24, tinyAlign)
	if ptr == 0 {
		t.Fatal("expected a non-nil pointer")
	}

	page := mem.PageRoundDown(ptr)
	if ptr != page+tinyHeaderSize {
		t.Fatalf("expected payload right after the page's leading header; got offset %d", ptr-page)
	}

	freeHeaderAddr := page + tinyHeaderSize + 32
	if h.freeHead != freeHeaderAddr {
		t.Fatalf("expected a free header at %x; free head is %x", freeHeaderAddr, h.freeHead)
	}

	want := uintptr(mem.PageSize) - 32 - 2*tinyHeaderSize
	if got := headerAt(freeHeaderAddr).size; got != want {
		t.Fatalf("expected remainder free header size %d; got %d", want, got)
	}
}

func TestTinySizeHonored(t *testing.T) {
	_, end, phystop := region(8)

	PFA = FrameAllocator{}
	PFA.Init(end, phystop)
	h := TinyAllocator{}

	for _, size := range []mem.Size{1, 7, 15, 16, 17, 31, 100, 500} {
		ptr := h.Alloc(size, tinyAlign)
		if ptr == 0 {
			t.Fatalf("size %d: expected a non-nil pointer", size)
		}
		if ptr%tinyAlign != 0 {
			t.Fatalf("size %d: expected 16-byte aligned pointer; got %x", size, ptr)
		}

		hdrSize := headerAt(ptr - tinyHeaderSize).size
		want := roundUpTiny(uintptr(size))
		if hdrSize < want {
			t.Fatalf("size %d: header records %d bytes, want at least %d", size, hdrSize, want)
		}
	}
}

func TestTinyFreeAndReuse(t *testing.T) {
	_, end, phystop := region(4)

	PFA = FrameAllocator{}
	PFA.Init(end, phystop)
	h := TinyAllocator{}

	a := h.Alloc(32, tinyAlign)
	b := h.Alloc(32, tinyAlign)
	if a == 0 || b == 0 {
		t.Fatal("expected both allocations to succeed")
	}

	h.Free(a)
	if h.freeHead != a-tinyHeaderSize {
		t.Fatalf("expected freed block to be prepended to the free-list")
	}

	c := h.Alloc(32, tinyAlign)
	if c != a {
		t.Fatalf("expected reuse of the freed block at %x; got %x", a, c)
	}
}

func TestTinySplit(t *testing.T) {
	_, end, phystop := region(4)

	PFA = FrameAllocator{}
	PFA.Init(end, phystop)
	h := TinyAllocator{}

	big := h.Alloc(256, tinyAlign)
	h.Free(big)

	small := h.Alloc(32, tinyAlign)
	if small == 0 {
		t.Fatal("expected the split allocation to succeed")
	}

	// the free block should have shrunk in place rather than disappear.
	remaining := headerAt(big - tinyHeaderSize).size
	if remaining == 0 {
		t.Fatal("expected the original free block to still carry a remainder after the split")
	}
}

func TestTinyBypassToPFA(t *testing.T) {
	_, end, phystop := region(4)

	PFA = FrameAllocator{}
	PFA.Init(end, phystop)
	h := TinyAllocator{}

	ptr := h.Alloc(mem.PageSize, tinyAlign)
	if ptr == 0 {
		t.Fatal("expected bypass allocation to succeed")
	}
	if ptr%uintptr(mem.PageSize) != 0 {
		t.Fatalf("expected a page-aligned bypass allocation; got %x", ptr)
	}

	page := frameOverlay(ptr, int(mem.PageSize))
	for i, b := range page {
		if b != PoisonAlloc {
			t.Fatalf("byte %d: expected bypass allocation to carry PFA's alloc poison; got 0x%x", i, b)
		}
	}

	h.Free(ptr)
}

func TestTinyReallocGrowsAndShrinks(t *testing.T) {
	_, end, phystop := region(4)

	PFA = FrameAllocator{}
	PFA.Init(end, phystop)
	h := TinyAllocator{}

	ptr := h.Alloc(16, tinyAlign)
	*(*byte)(unsafe.Pointer(ptr)) = 0x42

	same := h.Realloc(ptr, 8)
	if same != ptr {
		t.Fatalf("expected realloc to a smaller-or-equal size to be a no-op")
	}

	grown := h.Realloc(ptr, 200)
	if grown == 0 {
		t.Fatal("expected grow-realloc to succeed")
	}
	if got := *(*byte)(unsafe.Pointer(grown)); got != 0x42 {
		t.Fatalf("expected realloc to preserve the original byte; got 0x%x", got)
	}
}
