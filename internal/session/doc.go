// Package session owns the recording lifecycle. A single event-loop goroutine
// holds all session state; start and stop requests, recorder output and
// recorder exits are messages into that loop. Chunk writes, uploads and
// finalize calls run as detached background tasks.
package session
