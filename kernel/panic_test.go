package kernel

import (
	"testing"

	"riscvkernel/kernel/kfmt/early"
	"riscvkernel/kernel/sbi"
)

func TestPanic(t *testing.T) {
	defer func(origSink func([]byte) (int, error), origByteSink func(byte)) {
		early.Sink, early.ByteSink = origSink, origByteSink
	}(early.Sink, early.ByteSink)

	defer func(orig func(sbi.ResetReason)) {
		systemResetFn = orig
	}(systemResetFn)

	var buf []byte
	early.Sink = func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	}
	early.ByteSink = func(c byte) {
		buf = append(buf, c)
	}

	var gotReason sbi.ResetReason
	var resetCalled bool
	systemResetFn = func(reason sbi.ResetReason) {
		resetCalled = true
		gotReason = reason
	}

	t.Run("with error", func(t *testing.T) {
		buf = buf[:0]
		resetCalled = false
		err := &Error{Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := string(buf); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !resetCalled {
			t.Fatal("expected systemResetFn to be called by Panic")
		}
		if gotReason != sbi.ResetReasonSystemFailure {
			t.Fatalf("expected reset reason %d; got %d", sbi.ResetReasonSystemFailure, gotReason)
		}
	})

	t.Run("without error", func(t *testing.T) {
		buf = buf[:0]
		resetCalled = false

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := string(buf); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !resetCalled {
			t.Fatal("expected systemResetFn to be called by Panic")
		}
	})
}
