//go:build !riscv64

package sbi

// hostEcallLog records the calls made by ecall when this package is built
// for a host architecture that cannot execute an ecall instruction, which is
// the case whenever this package's tests run on the development machine
// rather than on the target hart. Tests may inspect or reset it directly.
var hostEcallLog []hostEcall

type hostEcall struct {
	ext, fid, arg0, arg1 uintptr
}

// ecall is the host-side stand-in for the riscv64 trap instruction. It has
// no hardware to talk to, so it just records the call for assertions and
// reports success.
func ecall(ext, fid, arg0, arg1 uintptr) (uintptr, uintptr) {
	hostEcallLog = append(hostEcallLog, hostEcall{ext, fid, arg0, arg1})
	return 0, 0
}
