package api

// TranscribeRequest is the payload for the transcription endpoint.
type TranscribeRequest struct {
	Audio    string `json:"audio"` // base64 encoded
	MimeType string `json:"mime_type"`
}

// TranscribeResponse is the transcription endpoint's answer.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// ChatRequest is the payload for the chat endpoint. SessionID is the numeric
// chat-history id of the surrounding UI, omitted when zero.
type ChatRequest struct {
	Message   string `json:"message"`
	Frame     string `json:"frame,omitempty"` // base64 jpeg
	SessionID int    `json:"session_id,omitempty"`
}

// ChatResponse is the chat endpoint's answer.
type ChatResponse struct {
	Response  string `json:"response"`
	Emotion   string `json:"emotion"`
	SessionID int    `json:"session_id"`
}

// TTSRequest is the payload for the text-to-speech endpoint.
type TTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// TTSResponse is the text-to-speech endpoint's answer. Audio is either raw
// base64 or a complete data URI.
type TTSResponse struct {
	Audio   string `json:"audio"`
	Success bool   `json:"success"`
}

// ErrorResponse is the generic error payload of the REST endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
