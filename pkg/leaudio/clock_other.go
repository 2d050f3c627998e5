//go:build !linux

package leaudio

import "time"

var processStart = time.Now()

// elapsedRealtimeNanos falls back to the process's monotonic clock, which is only comparable
// with other readings taken by this process.
func elapsedRealtimeNanos() int64 {
	return time.Since(processStart).Nanoseconds()
}
