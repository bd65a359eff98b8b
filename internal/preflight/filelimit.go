package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the recommended open file limit. The watcher and
// the SQLite WAL files each hold descriptors while serving.
const MinFileDescriptors = 256

// CheckFileDescriptors warns when the open file limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, c.minFiles)
	if rLimit.Cur < c.minFiles {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' to increase the limit", c.minFiles*4)
		return result
	}
	result.Status = StatusPass
	return result
}
