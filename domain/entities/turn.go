package entities

import "time"

// MinCaptureBytes is the minimum size of a usable encoded recording. Anything
// shorter is treated as "no speech" and discarded without a round-trip.
const MinCaptureBytes = 1000

// AudioTurn is one user utterance and the corresponding assistant reply. It
// is exclusively owned by the conversation engine and discarded once the turn
// completes.
type AudioTurn struct {
	// Token is the monotonically increasing request identifier of the turn.
	// Results carrying a stale token are dropped, not applied.
	Token uint64

	// MimeType of the captured audio, threaded through to the backend.
	MimeType string

	StartedAt time.Time

	Transcript   string
	ReplyText    string
	ReplyEmotion Emotion
}

// NewAudioTurn starts a turn for the given request token.
func NewAudioTurn(token uint64, mimeType string) *AudioTurn {
	return &AudioTurn{
		Token:        token,
		MimeType:     mimeType,
		StartedAt:    time.Now(),
		ReplyEmotion: EmotionNeutral,
	}
}
