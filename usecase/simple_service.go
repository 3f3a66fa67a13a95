package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/entities"
	"github.com/agharasoul/Rozhan/domain/repositories"
)

// SimpleTurn is the outcome of one REST-only conversational turn.
type SimpleTurn struct {
	Transcript string
	ReplyText  string
	Emotion    entities.Emotion
	Voice      string
}

// SimpleVoiceService runs the request-response pipeline without a realtime
// channel: record, transcribe, chat, synthesize, play. One turn at a time.
type SimpleVoiceService struct {
	logger      *zap.Logger
	capture     repositories.AudioCapture
	player      repositories.AudioPlayer
	transcriber repositories.Transcriber
	chat        repositories.ChatService
	synth       repositories.Synthesizer
	opts        Options

	mu        sync.Mutex
	stopCh    chan struct{}
	historyID int
}

// NewSimpleVoiceService wires the REST pipeline.
func NewSimpleVoiceService(
	capture repositories.AudioCapture,
	player repositories.AudioPlayer,
	transcriber repositories.Transcriber,
	chat repositories.ChatService,
	synth repositories.Synthesizer,
	opts Options,
	logger *zap.Logger,
) *SimpleVoiceService {
	return &SimpleVoiceService{
		logger:      logger,
		capture:     capture,
		player:      player,
		transcriber: transcriber,
		chat:        chat,
		synth:       synth,
		opts:        opts.withDefaults(),
	}
}

// StopRecording ends the capture phase of an in-flight turn early. A no-op
// when nothing is recording.
func (s *SimpleVoiceService) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// HistoryID returns the numeric chat-history id assigned by the backend,
// zero before the first reply.
func (s *SimpleVoiceService) HistoryID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyID
}

// ConverseOnce records one utterance and runs it through the full pipeline.
// Recording ends on StopRecording or at the duration ceiling. Every failure
// is a recoverable fault; the caller shows the notice and may retry.
func (s *SimpleVoiceService) ConverseOnce(ctx context.Context) (SimpleTurn, error) {
	blob, mimeType, err := s.record(ctx)
	if err != nil {
		return SimpleTurn{}, err
	}
	if len(blob) < entities.MinCaptureBytes {
		return SimpleTurn{}, domain.NewFault(domain.FaultEmptyCapture, nil)
	}

	transcript, err := s.transcriber.Transcribe(ctx, blob, mimeType)
	if err != nil {
		return SimpleTurn{}, err
	}
	if strings.TrimSpace(transcript) == "" {
		return SimpleTurn{}, domain.NewFault(domain.FaultEmptyCapture, nil)
	}
	s.logger.Info("Utterance transcribed", zap.String("transcript", transcript))

	reply, err := s.chat.Chat(ctx, repositories.ChatRequest{
		Message:   transcript,
		HistoryID: s.HistoryID(),
	})
	if err != nil {
		return SimpleTurn{}, err
	}
	if reply.HistoryID != 0 {
		s.mu.Lock()
		s.historyID = reply.HistoryID
		s.mu.Unlock()
	}

	turn := SimpleTurn{
		Transcript: transcript,
		ReplyText:  reply.Text,
		Emotion:    entities.Emotion(reply.Emotion),
		Voice:      entities.SelectVoice(entities.Emotion(reply.Emotion)),
	}

	if !s.opts.AutoSpeak || s.opts.Muted || reply.Text == "" {
		return turn, nil
	}

	audio, audioMime, err := s.synth.Synthesize(ctx, truncateRunes(reply.Text, maxSpokenRunes), turn.Voice)
	if err != nil {
		// The reply text already landed; a silent reply beats a lost one.
		s.logger.Warn("Speech synthesis failed", zap.Error(err))
		return turn, nil
	}
	if err := s.player.Play(ctx, audio, audioMime); err != nil {
		s.logger.Warn("Reply playback failed", zap.Error(err))
	}
	return turn, nil
}

// record captures until StopRecording, the ceiling, or ctx cancellation,
// then returns the encoded utterance. The device is released on every path.
func (s *SimpleVoiceService) record(ctx context.Context) ([]byte, string, error) {
	recorder, err := s.capture.AcquireAudio(ctx, repositories.DefaultAudioConstraints())
	if err != nil {
		return nil, "", err
	}
	defer recorder.Close()

	stop := make(chan struct{})
	s.mu.Lock()
	s.stopCh = stop
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.stopCh == stop {
			s.stopCh = nil
		}
		s.mu.Unlock()
	}()

	ceiling := time.NewTimer(s.opts.MaxRecording)
	defer ceiling.Stop()

	// Drain the live feed so the recorder never blocks on its chunk buffer.
	go func() {
		for range recorder.Chunks() {
		}
	}()

	select {
	case <-ctx.Done():
		return nil, "", domain.NewFault(domain.FaultTimeout, ctx.Err())
	case <-stop:
	case <-ceiling.C:
		s.logger.Info("Recording ceiling reached")
	}

	blob, err := recorder.Stop(ctx)
	if err != nil {
		return nil, "", err
	}
	return blob, recorder.MimeType(), nil
}
