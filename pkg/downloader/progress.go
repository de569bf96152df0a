package downloader

import "time"

// ProgressFunc receives download progress updates. Callbacks run on the
// downloading goroutine and must not block.
type ProgressFunc func(DownloadProgress)

// DownloadProgress is a point-in-time snapshot of one download.
type DownloadProgress struct {
	PluginID      string
	BytesReceived int64
	TotalBytes    int64
	StartedAt     time.Time
}

// Percentage returns completion in percent, or 0 when the total size is
// unknown.
func (p DownloadProgress) Percentage() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesReceived) / float64(p.TotalBytes) * 100
}

// Elapsed returns the time since the download started.
func (p DownloadProgress) Elapsed() time.Duration {
	return time.Since(p.StartedAt)
}
