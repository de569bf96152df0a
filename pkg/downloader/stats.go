package downloader

import (
	"sync/atomic"
	"time"
)

// Stats tracks download counters. All methods are safe for concurrent
// use.
type Stats struct {
	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	bytes      atomic.Int64
	nanos      atomic.Int64
}

// RecordSuccess records one successful download.
func (s *Stats) RecordSuccess(bytes int64, d time.Duration) {
	s.total.Add(1)
	s.successful.Add(1)
	s.bytes.Add(bytes)
	s.nanos.Add(int64(d))
}

// RecordFailure records one failed download.
func (s *Stats) RecordFailure() {
	s.total.Add(1)
	s.failed.Add(1)
}

// Snapshot returns the counters as a map. Average speed is bytes per
// second over the cumulative time spent in successful downloads.
func (s *Stats) Snapshot() map[string]float64 {
	var speed float64
	if secs := time.Duration(s.nanos.Load()).Seconds(); secs > 0 {
		speed = float64(s.bytes.Load()) / secs
	}
	return map[string]float64{
		"total_downloads":        float64(s.total.Load()),
		"successful_downloads":   float64(s.successful.Load()),
		"failed_downloads":       float64(s.failed.Load()),
		"total_bytes_downloaded": float64(s.bytes.Load()),
		"average_download_speed": speed,
	}
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.total.Store(0)
	s.successful.Store(0)
	s.failed.Store(0)
	s.bytes.Store(0)
	s.nanos.Store(0)
}
