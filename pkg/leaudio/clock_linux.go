package leaudio

import (
	"time"

	"golang.org/x/sys/unix"
)

var processStart = time.Now()

// elapsedRealtimeNanos reads CLOCK_BOOTTIME, which keeps counting while the system is suspended.
func elapsedRealtimeNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Since(processStart).Nanoseconds()
	}
	return ts.Nano()
}
