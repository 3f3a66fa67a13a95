package repositories

import "context"

// Transcriber converts a recorded utterance to text through the backend's
// transcription endpoint.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// ChatRequest is one user message to the backend chat endpoint.
type ChatRequest struct {
	Message string
	// FrameB64 optionally attaches a JPEG frame for visual context.
	FrameB64 string
	// HistoryID is the numeric chat-history session id of the surrounding
	// UI. It is distinct from the realtime session id and may be zero.
	HistoryID int
}

// ChatReply is the backend's answer to a chat request.
type ChatReply struct {
	Text      string
	Emotion   string
	HistoryID int
}

// ChatService sends text messages to the backend chat endpoint.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)
}

// Synthesizer converts reply text to audio through the backend's
// text-to-speech endpoint. It returns the audio payload and its mime type.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string) ([]byte, string, error)
}
