// Package timex provides the microsecond clock used to stamp interrupt edges.
package timex

import "time"

// boot anchors the monotonic clock; time.Since uses the monotonic reading.
var boot = time.Now()

// NowUs returns microseconds since process start on the monotonic clock.
// It is safe to call from interrupt handlers (no allocation).
func NowUs() int64 { return int64(time.Since(boot) / time.Microsecond) }

// Us converts a duration to whole microseconds.
func Us(d time.Duration) int64 { return int64(d / time.Microsecond) }
