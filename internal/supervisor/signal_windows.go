//go:build windows

package supervisor

import "os"

// Windows has no process groups in the POSIX sense; termination is
// always forceful and targets the direct child only.

func terminateTree(pid int) error {
	return killTree(pid)
}

func killTree(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

// pidAlive has no cheap signal-0 equivalent on Windows. Exit detection
// relies on the monitor goroutine flipping the service state as soon as
// Wait returns, so a non-terminal service is treated as alive.
func pidAlive(pid int) bool {
	return pid > 0
}
