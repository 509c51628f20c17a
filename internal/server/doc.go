// Package server exposes the capture host's local control API: recording
// start/stop, status, device listing, the session ledger, Prometheus metrics
// and a websocket stream of recording events.
package server
