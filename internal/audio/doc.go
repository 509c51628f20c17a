// Package audio handles the PCM side of live capture: slicing a recorder's
// byte stream into fixed-duration windows and wrapping each window in a
// canonical 44-byte WAV header so every chunk file stands on its own.
package audio
