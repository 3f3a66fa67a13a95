package domain

import (
	"testing"
)

func TestDecodeInboundEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, ev InboundEvent)
	}{
		{
			name:  "connected",
			frame: `{"type":"connected","session_id":"abc-123","welcome":"سلام"}`,
			check: func(t *testing.T, ev InboundEvent) {
				c, ok := ev.(ConnectedEvent)
				if !ok {
					t.Fatalf("Expected ConnectedEvent, got %T", ev)
				}
				if c.SessionID != "abc-123" {
					t.Errorf("Expected session id abc-123, got %s", c.SessionID)
				}
				if c.Welcome != "سلام" {
					t.Errorf("Expected welcome سلام, got %s", c.Welcome)
				}
			},
		},
		{
			name:  "user_text",
			frame: `{"type":"user_text","data":"گرسنمه","audio_emotion":"tired"}`,
			check: func(t *testing.T, ev InboundEvent) {
				u, ok := ev.(UserTextEvent)
				if !ok {
					t.Fatalf("Expected UserTextEvent, got %T", ev)
				}
				if u.Text != "گرسنمه" {
					t.Errorf("Expected text گرسنمه, got %s", u.Text)
				}
				if u.AudioEmotion != "tired" {
					t.Errorf("Expected audio emotion tired, got %s", u.AudioEmotion)
				}
			},
		},
		{
			name:  "transcription decodes like user_text",
			frame: `{"type":"transcription","data":"سلام"}`,
			check: func(t *testing.T, ev InboundEvent) {
				if _, ok := ev.(UserTextEvent); !ok {
					t.Fatalf("Expected UserTextEvent, got %T", ev)
				}
			},
		},
		{
			name:  "text reply",
			frame: `{"type":"text","data":"نوش جان","emotion":"happy"}`,
			check: func(t *testing.T, ev InboundEvent) {
				r, ok := ev.(ReplyEvent)
				if !ok {
					t.Fatalf("Expected ReplyEvent, got %T", ev)
				}
				if r.Emotion != "happy" {
					t.Errorf("Expected emotion happy, got %s", r.Emotion)
				}
			},
		},
		{
			name:  "response reply with learned",
			frame: `{"type":"response","data":"باشه","learned":["کباب دوست دارد"],"message_count":4}`,
			check: func(t *testing.T, ev InboundEvent) {
				r, ok := ev.(ReplyEvent)
				if !ok {
					t.Fatalf("Expected ReplyEvent, got %T", ev)
				}
				if len(r.Learned) != 1 || r.Learned[0] != "کباب دوست دارد" {
					t.Errorf("Unexpected learned facts: %v", r.Learned)
				}
				if r.MessageCount != 4 {
					t.Errorf("Expected message count 4, got %d", r.MessageCount)
				}
			},
		},
		{
			name:  "audio reply",
			frame: `{"type":"audio","data":"QUJD","mime_type":"audio/wav"}`,
			check: func(t *testing.T, ev InboundEvent) {
				a, ok := ev.(AudioReplyEvent)
				if !ok {
					t.Fatalf("Expected AudioReplyEvent, got %T", ev)
				}
				if a.MimeType != "audio/wav" {
					t.Errorf("Expected mime audio/wav, got %s", a.MimeType)
				}
			},
		},
		{
			name:  "analysis",
			frame: `{"type":"analysis","data":{"emotion":"happy","emotion_fa":"خوشحال","face_count":1}}`,
			check: func(t *testing.T, ev InboundEvent) {
				a, ok := ev.(AnalysisEvent)
				if !ok {
					t.Fatalf("Expected AnalysisEvent, got %T", ev)
				}
				if a.Data.Emotion != "happy" || a.Data.FaceCount != 1 {
					t.Errorf("Unexpected analysis payload: %+v", a.Data)
				}
			},
		},
		{
			name:  "turn_complete",
			frame: `{"type":"turn_complete"}`,
			check: func(t *testing.T, ev InboundEvent) {
				if _, ok := ev.(TurnCompleteEvent); !ok {
					t.Fatalf("Expected TurnCompleteEvent, got %T", ev)
				}
			},
		},
		{
			name:  "error",
			frame: `{"type":"error","message":"boom"}`,
			check: func(t *testing.T, ev InboundEvent) {
				e, ok := ev.(ErrorEvent)
				if !ok {
					t.Fatalf("Expected ErrorEvent, got %T", ev)
				}
				if e.Message != "boom" {
					t.Errorf("Expected message boom, got %s", e.Message)
				}
			},
		},
		{
			name:  "unknown type preserved",
			frame: `{"type":"telemetry","data":"x"}`,
			check: func(t *testing.T, ev InboundEvent) {
				u, ok := ev.(UnknownEvent)
				if !ok {
					t.Fatalf("Expected UnknownEvent, got %T", ev)
				}
				if u.TypeName != "telemetry" {
					t.Errorf("Expected type telemetry, got %s", u.TypeName)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeInboundEvent([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Unexpected decode error: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeInboundEventRejectsBadFrames(t *testing.T) {
	for _, frame := range []string{`not json`, `{"data":"no type"}`} {
		if _, err := DecodeInboundEvent([]byte(frame)); err == nil {
			t.Errorf("Expected error for frame %q", frame)
		}
	}
}
