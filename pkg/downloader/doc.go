// Package downloader fetches plugin packages and installs them on disk.
//
// Installations are atomic: the payload is downloaded and verified in a
// staging area, the previous version is backed up, and the final switch is
// a directory rename. A failure at any point leaves the previously
// installed version untouched.
//
// Installs for different plugins run in parallel up to a configured bound;
// installs for the same plugin are serialized.
package downloader
