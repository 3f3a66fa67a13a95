package repositories

import "context"

// AudioPlayer plays synthesized assistant speech. At most one payload plays
// at a time; starting a new one stops the previous.
type AudioPlayer interface {
	// Play decodes and plays one payload, blocking until playback ends,
	// fails, or ctx is cancelled. Decode failures surface as decode
	// faults, playback failures as playback faults.
	Play(ctx context.Context, audio []byte, mimeType string) error
	// Stop halts the current playback immediately. Calling it when
	// nothing is playing is a no-op.
	Stop()
	// Close stops playback and releases the output device.
	Close() error
}
