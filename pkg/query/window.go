package query

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow reports a window that cannot be resolved into a
// valid scan range: a negative trailing duration, a start after the
// reference now, or a missing window selection.
var ErrInvalidWindow = errors.New("invalid query window")

type windowMode int

const (
	windowUnset windowMode = iota
	windowBeginning
	windowAbsolute
	windowRelative
)

// Window selects the start of a query's scan range. The end is always
// the query's reference "now", so queries never see points dated after
// their own invocation. The zero value is "no window selected", which
// Resolve rejects: every query must pick its window explicitly.
type Window struct {
	mode windowMode
	from time.Time
	rel  time.Duration
}

// Beginning selects everything from the first stored point (the epoch).
func Beginning() Window {
	return Window{mode: windowBeginning}
}

// AbsoluteFrom selects everything at or after ts.
func AbsoluteFrom(ts time.Time) Window {
	return Window{mode: windowAbsolute, from: ts}
}

// RelativeFrom selects the trailing window [now-d, now].
func RelativeFrom(d time.Duration) Window {
	return Window{mode: windowRelative, rel: d}
}

// Set reports whether a window mode has been chosen.
func (w Window) Set() bool {
	return w.mode != windowUnset
}

// Resolve turns the window into a concrete [start, end] range against
// the reference now. Start is inclusive; several windows resolved
// against the same now are directly comparable.
func (w Window) Resolve(now time.Time) (start, end time.Time, err error) {
	switch w.mode {
	case windowBeginning:
		return time.UnixMicro(0), now, nil
	case windowAbsolute:
		if w.from.After(now) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start %v is after now %v", ErrInvalidWindow, w.from, now)
		}
		return clampToEpoch(w.from), now, nil
	case windowRelative:
		if w.rel < 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: negative duration %v", ErrInvalidWindow, w.rel)
		}
		return clampToEpoch(now.Add(-w.rel)), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: no window selected", ErrInvalidWindow)
	}
}

// Stored timestamps cannot predate the epoch, so a wider start only
// wastes the scan and overflows unsigned key encodings.
func clampToEpoch(ts time.Time) time.Time {
	if epoch := time.UnixMicro(0); ts.Before(epoch) {
		return epoch
	}
	return ts
}
