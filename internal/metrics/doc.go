// Package metrics defines the Prometheus metrics exported by the capture host.
package metrics
