package worker

import (
	"log/slog"

	"slidebridge/internal/automation"
)

// ResolveConfidence records which strategy produced a window resolution.
// Anything past ResolveDirect is degraded: the editor's own active-window
// bookkeeping can lag the true event source during rapid window switching,
// and misattribution announces the wrong document's comments.
type ResolveConfidence int

const (
	// ResolveDirect means the event payload named its owning window.
	ResolveDirect ResolveConfidence = iota
	// ResolveForeground matched the OS foreground window handle.
	ResolveForeground
	// ResolveActiveFlag found a window the editor flags active.
	ResolveActiveFlag
	// ResolveActiveAccessor trusted the editor's active-window accessor.
	ResolveActiveAccessor
	// ResolveFailed means every strategy fell through.
	ResolveFailed
)

// String returns the confidence name.
func (c ResolveConfidence) String() string {
	switch c {
	case ResolveDirect:
		return "direct"
	case ResolveForeground:
		return "foreground-handle"
	case ResolveActiveFlag:
		return "active-flag"
	case ResolveActiveAccessor:
		return "active-accessor"
	case ResolveFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// windowResolver maps an event's selection payload to the document window
// that produced it.
type windowResolver struct {
	app automation.Application
	log *slog.Logger

	// foreground returns the OS-level focused window handle, 0 when the
	// platform has no such notion.
	foreground func() uintptr
}

func newWindowResolver(app automation.Application, log *slog.Logger) *windowResolver {
	return &windowResolver{app: app, log: log, foreground: foregroundWindowHandle}
}

// Resolve returns the window behind the selection, the confidence of the
// resolution, and an error only when every strategy failed. Each fallback
// taken is logged as degraded confidence.
func (r *windowResolver) Resolve(sel automation.Selection) (automation.DocumentWindow, ResolveConfidence, error) {
	// Primary: the payload names its own window. Immune to the race where
	// the editor's active-window accessor lags the event source.
	if sel != nil {
		if win, err := sel.Window(); err == nil && win != nil {
			return win, ResolveDirect, nil
		} else if err != nil {
			r.log.Debug("selection payload has no owning window", "error", err)
		}
	}

	// Fallback (a): match the OS foreground handle against open windows.
	if handle := r.foreground(); handle != 0 {
		if wins, err := r.app.Windows(); err == nil {
			for _, win := range wins {
				if win.HandleID() == handle {
					r.log.Warn("window resolved by foreground handle, degraded confidence",
						"handle", handle)
					return win, ResolveForeground, nil
				}
			}
		}
	}

	// Fallback (b): a window the editor itself flags active.
	if wins, err := r.app.Windows(); err == nil {
		for _, win := range wins {
			if active, err := win.Active(); err == nil && active {
				r.log.Warn("window resolved by active flag, degraded confidence")
				return win, ResolveActiveFlag, nil
			}
		}
	}

	// Fallback (c): the possibly-stale active-window accessor.
	if win, err := r.app.ActiveWindow(); err == nil && win != nil {
		r.log.Warn("window resolved by active-window accessor, degraded confidence")
		return win, ResolveActiveAccessor, nil
	}

	return nil, ResolveFailed, ErrWindowAmbiguous
}
