package sbi

import "testing"

func TestPutChar(t *testing.T) {
	defer func(orig func(uintptr, uintptr, uintptr, uintptr) (uintptr, uintptr)) {
		ecallFn = orig
	}(ecallFn)

	var gotExt, gotArg0 uintptr
	ecallFn = func(ext, fid, arg0, arg1 uintptr) (uintptr, uintptr) {
		gotExt, gotArg0 = ext, arg0
		return 0, 0
	}

	PutChar('A')

	if gotExt != extLegacyConsolePutChar {
		t.Fatalf("expected ext %d; got %d", extLegacyConsolePutChar, gotExt)
	}
	if gotArg0 != uintptr('A') {
		t.Fatalf("expected arg0 %d; got %d", 'A', gotArg0)
	}
}

func TestWrite(t *testing.T) {
	defer func(orig func(uintptr, uintptr, uintptr, uintptr) (uintptr, uintptr)) {
		ecallFn = orig
	}(ecallFn)

	var written []byte
	ecallFn = func(_, _, arg0, _ uintptr) (uintptr, uintptr) {
		written = append(written, byte(arg0))
		return 0, 0
	}

	n, err := Write([]byte("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 bytes written; got %d", n)
	}
	if string(written) != "hi" {
		t.Fatalf("expected console to receive %q; got %q", "hi", written)
	}
}

func TestRequestSystemReset(t *testing.T) {
	defer func(orig func(uintptr, uintptr, uintptr, uintptr) (uintptr, uintptr)) {
		ecallFn = orig
	}(ecallFn)

	var gotExt, gotType, gotReason uintptr
	ecallFn = func(ext, fid, arg0, arg1 uintptr) (uintptr, uintptr) {
		gotExt, gotType, gotReason = ext, arg0, arg1
		return 0, 0
	}

	requestSystemReset(ResetReasonSystemFailure)

	if gotExt != extSRST {
		t.Fatalf("expected ext %d; got %d", extSRST, gotExt)
	}
	if gotType != sbiSRSTTypeShutdown {
		t.Fatalf("expected reset type %d; got %d", sbiSRSTTypeShutdown, gotType)
	}
	if gotReason != uintptr(ResetReasonSystemFailure) {
		t.Fatalf("expected reset reason %d; got %d", ResetReasonSystemFailure, gotReason)
	}
}
