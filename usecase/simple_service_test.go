package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/entities"
	"github.com/agharasoul/Rozhan/domain/repositories"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, f.err
}

type fakeChat struct {
	mu       sync.Mutex
	requests []repositories.ChatRequest
	reply    repositories.ChatReply
	err      error
}

func (f *fakeChat) Chat(ctx context.Context, req repositories.ChatRequest) (repositories.ChatReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.reply, f.err
}

func newSimpleHarness(mic repositories.AudioCapture, player *fakePlayer, tr *fakeTranscriber, chat *fakeChat, synth *fakeSynth, opts Options) *SimpleVoiceService {
	return NewSimpleVoiceService(mic, player, tr, chat, synth, opts, zap.NewNop())
}

func TestConverseOnceRunsFullPipeline(t *testing.T) {
	mic := &fakeCapture{recorder: newFakeRecorder(5000)}
	player := &fakePlayer{}
	tr := &fakeTranscriber{text: "یه پیتزا می‌خوام"}
	chat := &fakeChat{reply: repositories.ChatReply{Text: "چه سایزی؟", Emotion: "happy", HistoryID: 7}}
	svc := newSimpleHarness(mic, player, tr, chat, &fakeSynth{}, Options{AutoSpeak: true})

	done := make(chan struct{})
	var turn SimpleTurn
	var err error
	go func() {
		turn, err = svc.ConverseOnce(context.Background())
		close(done)
	}()

	// Recording runs until the caller stops it.
	time.Sleep(20 * time.Millisecond)
	svc.StopRecording()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for turn")
	}

	if err != nil {
		t.Fatalf("ConverseOnce failed: %v", err)
	}
	if turn.Transcript != "یه پیتزا می‌خوام" {
		t.Errorf("Unexpected transcript %q", turn.Transcript)
	}
	if turn.ReplyText != "چه سایزی؟" {
		t.Errorf("Unexpected reply %q", turn.ReplyText)
	}
	if turn.Emotion != "happy" {
		t.Errorf("Expected happy, got %s", turn.Emotion)
	}
	if turn.Voice != entities.SelectVoice("happy") {
		t.Errorf("Expected voice for happy, got %s", turn.Voice)
	}
	if svc.HistoryID() != 7 {
		t.Errorf("Expected history id 7, got %d", svc.HistoryID())
	}
	if player.playCount() != 1 {
		t.Errorf("Expected one playback, got %d", player.playCount())
	}
}

func TestConverseOnceThreadsHistoryID(t *testing.T) {
	mic := &fakeCapture{recorder: newFakeRecorder(5000)}
	tr := &fakeTranscriber{text: "بازم همون"}
	chat := &fakeChat{reply: repositories.ChatReply{Text: "باشه", HistoryID: 7}}
	svc := newSimpleHarness(mic, &fakePlayer{}, tr, chat, &fakeSynth{}, Options{MaxRecording: 10 * time.Millisecond})

	for i := 0; i < 2; i++ {
		if _, err := svc.ConverseOnce(context.Background()); err != nil {
			t.Fatalf("Turn %d failed: %v", i, err)
		}
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.requests) != 2 {
		t.Fatalf("Expected 2 chat requests, got %d", len(chat.requests))
	}
	if chat.requests[0].HistoryID != 0 {
		t.Errorf("Expected first request without history id, got %d", chat.requests[0].HistoryID)
	}
	if chat.requests[1].HistoryID != 7 {
		t.Errorf("Expected second request to reuse history id 7, got %d", chat.requests[1].HistoryID)
	}
}

func TestConverseOnceRejectsShortCapture(t *testing.T) {
	mic := &fakeCapture{recorder: newFakeRecorder(entities.MinCaptureBytes - 1)}
	chat := &fakeChat{}
	svc := newSimpleHarness(mic, &fakePlayer{}, &fakeTranscriber{text: "x"}, chat, &fakeSynth{}, Options{MaxRecording: 10 * time.Millisecond})

	_, err := svc.ConverseOnce(context.Background())
	if !domain.IsFault(err, domain.FaultEmptyCapture) {
		t.Errorf("Expected empty-capture fault, got %v", err)
	}
	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.requests) != 0 {
		t.Errorf("Expected no chat round trip, got %d requests", len(chat.requests))
	}
}

func TestConverseOnceRejectsBlankTranscript(t *testing.T) {
	mic := &fakeCapture{recorder: newFakeRecorder(5000)}
	svc := newSimpleHarness(mic, &fakePlayer{}, &fakeTranscriber{text: "  "}, &fakeChat{}, &fakeSynth{}, Options{MaxRecording: 10 * time.Millisecond})

	_, err := svc.ConverseOnce(context.Background())
	if !domain.IsFault(err, domain.FaultEmptyCapture) {
		t.Errorf("Expected empty-capture fault, got %v", err)
	}
}

func TestConverseOnceSurvivesSynthesisFailure(t *testing.T) {
	mic := &fakeCapture{recorder: newFakeRecorder(5000)}
	player := &fakePlayer{}
	chat := &fakeChat{reply: repositories.ChatReply{Text: "بفرما"}}
	synth := &fakeSynth{err: domain.NewFault(domain.FaultBackend, nil)}
	svc := newSimpleHarness(mic, player, &fakeTranscriber{text: "سلام"}, chat, synth, Options{
		AutoSpeak:    true,
		MaxRecording: 10 * time.Millisecond,
	})

	turn, err := svc.ConverseOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected the text reply to survive, got %v", err)
	}
	if turn.ReplyText != "بفرما" {
		t.Errorf("Unexpected reply %q", turn.ReplyText)
	}
	if player.playCount() != 0 {
		t.Errorf("Expected no playback after failed synthesis, got %d", player.playCount())
	}
}

func TestConverseOnceMutedSkipsPlayback(t *testing.T) {
	mic := &fakeCapture{recorder: newFakeRecorder(5000)}
	player := &fakePlayer{}
	chat := &fakeChat{reply: repositories.ChatReply{Text: "بفرما"}}
	svc := newSimpleHarness(mic, player, &fakeTranscriber{text: "سلام"}, chat, &fakeSynth{}, Options{
		AutoSpeak:    true,
		Muted:        true,
		MaxRecording: 10 * time.Millisecond,
	})

	if _, err := svc.ConverseOnce(context.Background()); err != nil {
		t.Fatalf("ConverseOnce failed: %v", err)
	}
	if player.playCount() != 0 {
		t.Errorf("Expected muted turn to skip playback, got %d", player.playCount())
	}
}
