package fdt

import (
	"os"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapFixture maps testdata/sample.dtb read-only and returns the backing
// slice, exercising the parser against a byte-exact on-disk blob instead of
// only hand-built Go literals.
func mmapFixture(t *testing.T) []byte {
	t.Helper()

	f, err := os.Open("testdata/sample.dtb")
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat fixture: %v", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("mmap fixture: %v", err)
	}
	t.Cleanup(func() { _ = unix.Munmap(data) })

	return data
}

func TestParseFixtureMemoryRegions(t *testing.T) {
	data := mmapFixture(t)

	blob, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	regions, err := blob.MemoryRegions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("expected 1 region; got %d", len(regions))
	}
	if regions[0].Base != 0x8000_0000 || regions[0].Size != 0x0800_0000 {
		t.Fatalf("unexpected region: %+v", regions[0])
	}
	if want := uint64(0x8800_0000); regions[0].End() != want {
		t.Fatalf("expected end 0x%x; got 0x%x", want, regions[0].End())
	}
}

func TestParseFixtureCPUCount(t *testing.T) {
	data := mmapFixture(t)

	blob, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	count, err := blob.CPUCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 cpus; got %d", count)
	}
}

func TestFromAddressMatchesParse(t *testing.T) {
	data := mmapFixture(t)
	addr := uintptr(unsafe.Pointer(&data[0]))

	blob, err := FromAddress(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := blob.CPUCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 cpus; got %d", count)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := make([]byte, 64)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected an error for a bad magic number")
	}
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatal("expected an error for a header shorter than 40 bytes")
	}
}

func TestMemoryRegionsErrorsWithoutAMemoryNode(t *testing.T) {
	data := mmapFixture(t)
	blob, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	// Corrupt the node name "memory@80000000" so no memory node is found.
	patched := append([]byte(nil), blob.data...)
	copy(patched[0x34:], []byte("xxxxxx@8000000"+"0"))
	blob2, err := Parse(patched)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := blob2.MemoryRegions(); err == nil {
		t.Fatal("expected an error when no memory node is present")
	}
}
