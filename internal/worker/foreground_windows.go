//go:build windows

package worker

import "golang.org/x/sys/windows"

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWnd = user32.NewProc("GetForegroundWindow")
)

// foregroundWindowHandle returns the OS foreground window handle, 0 when
// no window has focus.
func foregroundWindowHandle() uintptr {
	handle, _, _ := procGetForegroundWnd.Call()
	return handle
}
