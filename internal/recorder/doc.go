// Package recorder launches the platform's external audio recorder as a child
// process that writes raw PCM to stdout, and enumerates capture devices.
package recorder
