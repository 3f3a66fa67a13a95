package entities

import "testing"

func TestNewAudioTurn(t *testing.T) {
	turn := NewAudioTurn(7, "audio/webm;codecs=opus")

	if turn.Token != 7 {
		t.Errorf("Expected token 7, got %d", turn.Token)
	}
	if turn.MimeType != "audio/webm;codecs=opus" {
		t.Errorf("Unexpected mime type %s", turn.MimeType)
	}
	if turn.ReplyEmotion != EmotionNeutral {
		t.Errorf("Expected neutral reply emotion, got %s", turn.ReplyEmotion)
	}
	if turn.StartedAt.IsZero() {
		t.Error("Expected a start timestamp")
	}
}
