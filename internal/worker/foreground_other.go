//go:build !windows

package worker

// foregroundWindowHandle has no portable equivalent off Windows; the
// resolver skips the foreground fallback when it returns 0.
func foregroundWindowHandle() uintptr {
	return 0
}
