//go:build windows

package procgroup

import "syscall"

// sessionAttr returns SysProcAttr that detaches the subprocess from the
// parent's console process group on Windows.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
