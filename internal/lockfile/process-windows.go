//go:build windows

package lockfile

import "os"

func processAlive(pid int) bool {
	// On Windows, FindProcess fails when the PID cannot be opened.
	_, err := os.FindProcess(pid)
	return err == nil
}
