//go:build !windows

package supervisor

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
)

// terminateTree sends SIGTERM to the service's process group.
func terminateTree(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killTree sends SIGKILL to the service's process group.
func killTree(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// pidAlive reports process existence via signal 0. A zombie still has a
// PID entry but is not alive for our purposes.
func pidAlive(pid int) bool {
	if isZombie(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// isZombie reads /proc/<pid>/status and reports a Z state. Non-Linux
// systems have no procfs; they report false and rely on signal 0.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
