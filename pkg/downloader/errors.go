package downloader

import "errors"

var (
	// ErrChecksumMismatch is returned when a downloaded payload does not
	// hash to the expected checksum. Never retried; the payload is
	// discarded.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSizeMismatch is returned when a downloaded payload has an
	// unexpected size. Never retried.
	ErrSizeMismatch = errors.New("downloaded size mismatch")

	// ErrOfflineMode is returned when a download is attempted while
	// offline mode is enabled.
	ErrOfflineMode = errors.New("offline mode enabled")

	// ErrInvalidPackage is returned when a package descriptor is missing
	// required fields.
	ErrInvalidPackage = errors.New("invalid plugin package")

	// ErrNoBackup is returned by Rollback when no backup exists for the
	// plugin.
	ErrNoBackup = errors.New("no backup available")
)
