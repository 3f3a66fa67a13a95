package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/repositories"
	"github.com/agharasoul/Rozhan/internal/auth"
)

func TestTranscribe(t *testing.T) {
	var got TranscribeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(TranscribeResponse{Text: "سلام"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zap.NewNop())
	text, err := client.Transcribe(context.Background(), []byte("audio-bytes"), "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "سلام" {
		t.Errorf("Expected سلام, got %s", text)
	}
	if got.MimeType != "audio/wav" {
		t.Errorf("Expected mime type to be threaded through, got %s", got.MimeType)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(got.Audio); string(decoded) != "audio-bytes" {
		t.Errorf("Expected base64 audio payload, got %q", got.Audio)
	}
}

func TestChatSendsBearerToken(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(ChatResponse{Response: "بفرما", Emotion: "", SessionID: 12})
	}))
	defer srv.Close()

	raw, err := auth.MintToken([]byte("s"), 1, "", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	token, _ := auth.ParseToken(raw)

	client := NewClient(srv.URL, token, zap.NewNop())
	reply, err := client.Chat(context.Background(), repositories.ChatRequest{Message: "سلام"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if authHeader != token.AuthorizationHeader() {
		t.Errorf("Expected bearer header, got %q", authHeader)
	}
	if reply.HistoryID != 12 {
		t.Errorf("Expected history id 12, got %d", reply.HistoryID)
	}
	// A missing emotion defaults to neutral.
	if reply.Emotion != "neutral" {
		t.Errorf("Expected neutral fallback, got %s", reply.Emotion)
	}
}

func TestChatSkipsExpiredToken(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(ChatResponse{Response: "x", Emotion: "happy"})
	}))
	defer srv.Close()

	raw, err := auth.MintToken([]byte("s"), 1, "", -time.Minute)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	token, _ := auth.ParseToken(raw)

	client := NewClient(srv.URL, token, zap.NewNop())
	if _, err := client.Chat(context.Background(), repositories.ChatRequest{Message: "hi"}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if authHeader != "" {
		t.Errorf("Expected no authorization header for expired token, got %q", authHeader)
	}
}

func TestSynthesizeDecodesDataURI(t *testing.T) {
	payload := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString([]byte("WAVDATA"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TTSResponse{Audio: payload, Success: true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zap.NewNop())
	audio, mimeType, err := client.Synthesize(context.Background(), "سلام", "fa-IR-FaridNeural")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "WAVDATA" {
		t.Errorf("Unexpected audio payload %q", audio)
	}
	if mimeType != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", mimeType)
	}
}

func TestNonOKStatusIsBackendFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zap.NewNop())
	_, err := client.Transcribe(context.Background(), []byte("x"), "audio/wav")
	if !domain.IsFault(err, domain.FaultBackend) {
		t.Errorf("Expected backend fault, got %v", err)
	}
}

func TestUnreachableBackendIsConnectionFault(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", nil, zap.NewNop())
	_, err := client.Transcribe(context.Background(), []byte("x"), "audio/wav")
	if !domain.IsFault(err, domain.FaultConnection) {
		t.Errorf("Expected connection fault, got %v", err)
	}
}

func TestDecodeAudioPayload(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantMime string
		wantErr  bool
	}{
		{
			name:     "raw base64 defaults to mp3",
			payload:  base64.StdEncoding.EncodeToString([]byte("mp3")),
			wantMime: "audio/mpeg",
		},
		{
			name:     "data URI carries its mime",
			payload:  "data:audio/ogg;base64," + base64.StdEncoding.EncodeToString([]byte("ogg")),
			wantMime: "audio/ogg",
		},
		{
			name:    "data URI without base64 marker",
			payload: "data:audio/ogg,plain",
			wantErr: true,
		},
		{
			name:    "invalid base64",
			payload: "!!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mimeType, err := DecodeAudioPayload(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if mimeType != tt.wantMime {
				t.Errorf("Expected mime %s, got %s", tt.wantMime, mimeType)
			}
		})
	}
}
