// Package background runs detached tasks whose outcome only matters to the
// log: chunk writes, uploads and finalize calls that must never hold up the
// recording stream or the caller that triggered them.
package background
