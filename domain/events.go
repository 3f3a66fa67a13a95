package domain

import (
	"encoding/json"
	"fmt"
)

// Outbound events travel from the client to the backend over the realtime
// channel. Every event serializes to a single JSON frame with a "type" field.

// AudioEvent carries one complete recorded utterance.
type AudioEvent struct {
	Type     string `json:"type"` // always "audio"
	Data     string `json:"data"` // base64 encoded
	MimeType string `json:"mime_type"`
	Frame    string `json:"frame,omitempty"` // base64 jpeg, video mode only
}

// FrameEvent carries one sampled still frame for visual analysis.
type FrameEvent struct {
	Type string `json:"type"` // always "frame"
	Data string `json:"data"` // base64 jpeg
}

// MessageEvent carries a typed text message, optionally with a frame attached.
type MessageEvent struct {
	Type  string `json:"type"` // always "message"
	Data  string `json:"data"`
	Frame string `json:"frame,omitempty"`
}

// EndEvent asks the backend to close the session gracefully.
type EndEvent struct {
	Type string `json:"type"` // always "end"
}

// NewAudioEvent builds an outbound audio event.
func NewAudioEvent(dataB64, mimeType, frameB64 string) AudioEvent {
	return AudioEvent{Type: "audio", Data: dataB64, MimeType: mimeType, Frame: frameB64}
}

// NewFrameEvent builds an outbound frame event.
func NewFrameEvent(dataB64 string) FrameEvent {
	return FrameEvent{Type: "frame", Data: dataB64}
}

// NewMessageEvent builds an outbound text message event.
func NewMessageEvent(text, frameB64 string) MessageEvent {
	return MessageEvent{Type: "message", Data: text, Frame: frameB64}
}

// NewEndEvent builds the outbound end-of-session event.
func NewEndEvent() EndEvent {
	return EndEvent{Type: "end"}
}

// InboundEvent is a typed event received from the backend. The concrete type
// is one of the *Event structs below; consumers switch on the concrete type
// rather than on raw JSON.
type InboundEvent interface {
	inboundType() string
}

// ConnectedEvent confirms the session and assigns its opaque identifier.
type ConnectedEvent struct {
	SessionID string `json:"session_id"`
	Welcome   string `json:"welcome,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (ConnectedEvent) inboundType() string { return "connected" }

// UserTextEvent carries the transcription of the user's utterance.
// The backend emits it as "user_text" on the voice path and "transcription"
// on the video path; both decode to this type.
type UserTextEvent struct {
	Text         string `json:"data"`
	AudioEmotion string `json:"audio_emotion,omitempty"`
}

func (UserTextEvent) inboundType() string { return "user_text" }

// ReplyEvent carries the assistant's reply text. Emitted as "text" on the
// voice path and "response" on the video path.
type ReplyEvent struct {
	Text         string   `json:"data"`
	Emotion      string   `json:"emotion,omitempty"`
	EmotionFa    string   `json:"emotion_fa,omitempty"`
	Tone         string   `json:"tone,omitempty"`
	Learned      []string `json:"learned,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`
}

func (ReplyEvent) inboundType() string { return "reply" }

// AudioReplyEvent carries synthesized assistant speech.
type AudioReplyEvent struct {
	Data     string `json:"data"` // base64 encoded
	MimeType string `json:"mime_type,omitempty"`
	Emotion  string `json:"emotion,omitempty"`
}

func (AudioReplyEvent) inboundType() string { return "audio" }

// AnalysisData is the visual analysis payload of an AnalysisEvent.
type AnalysisData struct {
	Emotion           string  `json:"emotion"`
	EmotionFa         string  `json:"emotion_fa,omitempty"`
	EmotionConfidence float64 `json:"emotion_confidence,omitempty"`
	AgeRange          string  `json:"age_range,omitempty"`
	Gender            string  `json:"gender,omitempty"`
	Environment       string  `json:"environment,omitempty"`
	FoodSuggestion    string  `json:"food_suggestion,omitempty"`
	FaceCount         int     `json:"face_count,omitempty"`
}

// AnalysisEvent carries the backend's analysis of a sampled frame.
type AnalysisEvent struct {
	Data AnalysisData `json:"data"`
}

func (AnalysisEvent) inboundType() string { return "analysis" }

// SuggestionEvent carries a food suggestion derived from the analysis.
type SuggestionEvent struct {
	Text      string `json:"data"`
	Emotion   string `json:"emotion,omitempty"`
	EmotionFa string `json:"emotion_fa,omitempty"`
}

func (SuggestionEvent) inboundType() string { return "suggestion" }

// EmotionChangeEvent announces a detected change in the user's emotion.
type EmotionChangeEvent struct {
	Message     string `json:"message"`
	FromEmotion string `json:"from_emotion,omitempty"`
	ToEmotion   string `json:"to_emotion,omitempty"`
}

func (EmotionChangeEvent) inboundType() string { return "emotion_change" }

// TurnCompleteEvent marks the end of one conversational turn.
type TurnCompleteEvent struct {
	Emotion string `json:"emotion,omitempty"`
}

func (TurnCompleteEvent) inboundType() string { return "turn_complete" }

// SessionSummaryData aggregates a finished session.
type SessionSummaryData struct {
	SessionID         string         `json:"session_id,omitempty"`
	DurationSeconds   float64        `json:"duration_seconds,omitempty"`
	MessageCount      int            `json:"message_count,omitempty"`
	DominantEmotion   string         `json:"dominant_emotion,omitempty"`
	EmotionChanges    int            `json:"emotion_changes,omitempty"`
	EmotionSummary    map[string]int `json:"emotion_summary,omitempty"`
	LearnedCategories []string       `json:"learned_categories,omitempty"`
}

// SessionSummaryEvent carries the summary sent before the backend closes.
type SessionSummaryEvent struct {
	Data SessionSummaryData `json:"data"`
}

func (SessionSummaryEvent) inboundType() string { return "session_summary" }

// ErrorEvent carries a recoverable backend-side error.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) inboundType() string { return "error" }

// UnknownEvent preserves frames with an unrecognized type so the consumer can
// log and skip them instead of dropping the connection.
type UnknownEvent struct {
	TypeName string
	Raw      json.RawMessage
}

func (e UnknownEvent) inboundType() string { return e.TypeName }

// DecodeInboundEvent parses one JSON frame from the backend into its typed
// event. Unrecognized types decode to UnknownEvent; malformed JSON is an
// error.
func DecodeInboundEvent(frame []byte) (InboundEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, fmt.Errorf("invalid event frame: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("event frame missing type field")
	}

	switch head.Type {
	case "connected":
		var ev ConnectedEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid connected event: %w", err)
		}
		return ev, nil
	case "user_text", "transcription":
		var ev UserTextEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s event: %w", head.Type, err)
		}
		return ev, nil
	case "text", "response":
		var ev ReplyEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s event: %w", head.Type, err)
		}
		return ev, nil
	case "audio":
		var ev AudioReplyEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid audio event: %w", err)
		}
		return ev, nil
	case "analysis":
		var ev AnalysisEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid analysis event: %w", err)
		}
		return ev, nil
	case "suggestion":
		var ev SuggestionEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid suggestion event: %w", err)
		}
		return ev, nil
	case "emotion_change":
		var ev EmotionChangeEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid emotion_change event: %w", err)
		}
		return ev, nil
	case "turn_complete":
		var ev TurnCompleteEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid turn_complete event: %w", err)
		}
		return ev, nil
	case "session_summary":
		var ev SessionSummaryEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid session_summary event: %w", err)
		}
		return ev, nil
	case "error":
		var ev ErrorEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("invalid error event: %w", err)
		}
		return ev, nil
	default:
		return UnknownEvent{TypeName: head.Type, Raw: append(json.RawMessage(nil), frame...)}, nil
	}
}
