package engine

import "fmt"

// exitSummary returns a human-readable summary for an rsync exit code.
func exitSummary(code int) string {
	switch code {
	case 1:
		return "syntax or usage error"
	case 2:
		return "protocol incompatibility"
	case 3:
		return "errors selecting input/output files"
	case 5:
		return "error starting client-server protocol"
	case 10:
		return "error in socket I/O"
	case 11:
		return "error in file I/O"
	case 12:
		return "error in rsync protocol data stream"
	case 14:
		return "error in IPC code"
	case 20:
		return "interrupted by signal"
	case 23:
		return "some files/attrs were not transferred"
	case 24:
		return "some source files vanished during transfer"
	case 25:
		return "max-delete limit reached"
	case 30:
		return "timeout in data send/receive"
	case 35:
		return "timeout waiting for daemon connection"
	case 255:
		return "SSH connection failed: remote host unreachable or auth denied"
	default:
		return fmt.Sprintf("rsync error (exit code %d)", code)
	}
}

// isPartialTransfer reports whether the exit code means a partial but
// non-fatal transfer: some files skipped, the rest succeeded.
func isPartialTransfer(code int) bool {
	return code == 23 || code == 24
}
