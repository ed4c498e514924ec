//go:build !windows

package procgroup

import "syscall"

// sessionAttr returns SysProcAttr that places the subprocess in its own
// session, preventing a terminal interrupt from reaching it directly.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
