package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

func TestSelectEncodingProbeOrder(t *testing.T) {
	withFFmpeg := func(string) bool { return true }
	withoutFFmpeg := func(string) bool { return false }

	if enc := SelectEncoding(withFFmpeg); enc.MimeType != "audio/webm;codecs=opus" {
		t.Errorf("Expected opus-in-webm first, got %s", enc.MimeType)
	}
	if enc := SelectEncoding(withoutFFmpeg); enc.MimeType != "audio/wav" {
		t.Errorf("Expected WAV fallback, got %s", enc.MimeType)
	}
}

func TestCandidatePriority(t *testing.T) {
	want := []string{
		"audio/webm;codecs=opus",
		"audio/webm",
		"audio/mp4",
		"audio/ogg",
		"audio/wav",
	}
	if len(encodingCandidates) != len(want) {
		t.Fatalf("Expected %d candidates, got %d", len(want), len(encodingCandidates))
	}
	for i, mime := range want {
		if encodingCandidates[i].MimeType != mime {
			t.Errorf("Candidate %d = %s, want %s", i, encodingCandidates[i].MimeType, mime)
		}
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms of 16kHz mono s16
	wav := encodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Error("Expected RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		t.Errorf("Expected 1 channel, got %d", channels)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); int(size) != len(pcm) {
		t.Errorf("Expected data size %d, got %d", len(pcm), size)
	}
}

func TestEncodeWAVWithoutExternalEncoder(t *testing.T) {
	enc := SelectEncoding(func(string) bool { return false })
	out, err := enc.Encode(context.Background(), make([]byte, 1000), 16000, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(out) != 1044 {
		t.Errorf("Expected 1044 bytes, got %d", len(out))
	}
}
