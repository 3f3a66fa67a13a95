package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/entities"
	"github.com/agharasoul/Rozhan/domain/repositories"
)

const (
	// Hard ceiling on one recorded utterance.
	defaultMaxRecording = 8 * time.Second

	// Interval between sampled video frames.
	defaultFrameInterval = 3 * time.Second

	// Reply text sent to speech synthesis is cut at this many runes.
	maxSpokenRunes = 500

	updateBuffer  = 64
	commandBuffer = 8
)

// Options configure a conversation service.
type Options struct {
	// Video enables the camera feed and periodic frame sampling.
	Video bool
	// AutoSpeak plays assistant replies aloud.
	AutoSpeak bool
	// Muted suppresses playback while keeping the rest of the turn flow.
	Muted bool
	// SynthesizeReplies requests speech over REST when the channel delivers
	// reply text without audio, as the video path does.
	SynthesizeReplies bool

	MaxRecording  time.Duration
	FrameInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRecording <= 0 {
		o.MaxRecording = defaultMaxRecording
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = defaultFrameInterval
	}
	return o
}

// UpdateKind tags a display update from the conversation service.
type UpdateKind string

const (
	UpdateState      UpdateKind = "state"
	UpdateWelcome    UpdateKind = "welcome"
	UpdateTranscript UpdateKind = "transcript"
	UpdateReply      UpdateKind = "reply"
	UpdateNotice     UpdateKind = "notice"
	UpdateAnalysis   UpdateKind = "analysis"
	UpdateSuggestion UpdateKind = "suggestion"
	UpdateLearned    UpdateKind = "learned"
	UpdateSummary    UpdateKind = "summary"
	UpdateElapsed    UpdateKind = "elapsed"
)

// Update is one display-facing change produced by the conversation service.
// The surrounding surface renders these; the service holds no UI state.
type Update struct {
	Kind    UpdateKind
	State   entities.SessionState
	Text    string
	Emotion entities.Emotion
	Seconds int

	Facts    []string
	Analysis *domain.AnalysisData
	Summary  *domain.SessionSummaryData
}

type commandKind int

const (
	cmdToggle commandKind = iota
	cmdMessage
	cmdAnalyze
)

type command struct {
	kind      commandKind
	text      string
	withFrame bool
}

type playbackResult struct {
	token uint64
	err   error
}

type synthesisResult struct {
	token    uint64
	audio    []byte
	mimeType string
	err      error
}

// ConversationService orchestrates one realtime conversation: capture,
// transmit, await transcript and reply, synthesize, play, back to idle. All
// state lives on the Run goroutine; the exported methods only enqueue
// commands, so transitions never race.
type ConversationService struct {
	logger  *zap.Logger
	channel repositories.RealtimeChannel
	capture repositories.AudioCapture
	camera  repositories.VideoCapture
	player  repositories.AudioPlayer
	synth   repositories.Synthesizer
	opts    Options

	session *entities.ConversationSession

	// Loop-owned state. Only the Run goroutine touches these.
	events       <-chan domain.InboundEvent
	recorder     repositories.Recorder
	chunks       <-chan []byte
	turn         *entities.AudioTurn
	activeToken  uint64
	lastToken    uint64
	pendingSynth bool
	frameSource  repositories.FrameSource

	recordDeadline <-chan time.Time
	elapsedTicker  *time.Ticker
	frameTicker    *time.Ticker

	commands     chan command
	playbackDone chan playbackResult
	synthDone    chan synthesisResult
	updates      chan Update
	done         chan struct{}

	runCtx context.Context
}

// NewConversationService wires the conversation orchestrator. camera and
// synth may be nil when the mode does not use them.
func NewConversationService(
	channel repositories.RealtimeChannel,
	capture repositories.AudioCapture,
	camera repositories.VideoCapture,
	player repositories.AudioPlayer,
	synth repositories.Synthesizer,
	opts Options,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		logger:       logger,
		channel:      channel,
		capture:      capture,
		camera:       camera,
		player:       player,
		synth:        synth,
		opts:         opts.withDefaults(),
		session:      entities.NewConversationSession(),
		commands:     make(chan command, commandBuffer),
		playbackDone: make(chan playbackResult, 1),
		synthDone:    make(chan synthesisResult, 1),
		updates:      make(chan Update, updateBuffer),
		done:         make(chan struct{}),
	}
}

// Updates returns the stream of display updates. Closed when Run returns.
func (s *ConversationService) Updates() <-chan Update {
	return s.updates
}

// Session exposes the session for the surrounding surface. Only read it
// after Run has returned; while running, state arrives through Updates.
func (s *ConversationService) Session() *entities.ConversationSession {
	return s.session
}

// Toggle cycles the single user control: starts recording when idle, stops
// it when recording, and interrupts playback when speaking.
func (s *ConversationService) Toggle() {
	s.enqueue(command{kind: cmdToggle})
}

// SendMessage transmits a typed text message, optionally with a camera frame
// attached.
func (s *ConversationService) SendMessage(text string, withFrame bool) {
	s.enqueue(command{kind: cmdMessage, text: text, withFrame: withFrame})
}

// AnalyzeNow captures one frame and sends it for immediate visual analysis.
func (s *ConversationService) AnalyzeNow() {
	s.enqueue(command{kind: cmdAnalyze})
}

// Close tears the conversation down: recorder stopped, devices released,
// best-effort end event, socket closed. Safe to call more than once.
func (s *ConversationService) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

func (s *ConversationService) enqueue(cmd command) {
	select {
	case s.commands <- cmd:
	case <-s.done:
	}
}

// Run drives the conversation until ctx is cancelled or Close is called.
// Everything suspends at I/O boundaries; there is exactly one consumer of
// inbound events.
func (s *ConversationService) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer s.cleanup()

	for {
		var elapsed, frames <-chan time.Time
		if s.elapsedTicker != nil {
			elapsed = s.elapsedTicker.C
		}
		if s.frameTicker != nil {
			frames = s.frameTicker.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil

		case cmd := <-s.commands:
			s.handleCommand(ctx, cmd)

		case event, ok := <-s.events:
			if !ok {
				s.handleDisconnect()
				continue
			}
			s.handleEvent(ctx, event)

		case _, ok := <-s.chunks:
			// Drained so the recorder never blocks on its buffer; the
			// utterance itself comes from Stop.
			if !ok {
				s.chunks = nil
			}

		case <-s.recordDeadline:
			s.logger.Info("Recording ceiling reached")
			s.finishRecording(ctx)

		case <-elapsed:
			if s.turn != nil {
				s.emit(Update{
					Kind:    UpdateElapsed,
					Seconds: int(time.Since(s.turn.StartedAt).Seconds()),
				})
			}

		case <-frames:
			s.sampleFrame(ctx)

		case res := <-s.playbackDone:
			s.handlePlaybackDone(res)

		case res := <-s.synthDone:
			s.handleSynthesis(res)
		}
	}
}

func (s *ConversationService) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdToggle:
		switch s.session.State {
		case entities.StateIdle:
			s.startRecording(ctx)
		case entities.StateRecording:
			s.finishRecording(ctx)
		case entities.StateSpeaking:
			s.interruptSpeaking()
		case entities.StateProcessing:
			// A turn is in flight; the control is inert until it lands.
		}
	case cmdMessage:
		s.sendTextMessage(ctx, cmd.text, cmd.withFrame)
	case cmdAnalyze:
		s.analyzeNow(ctx)
	}
}

// startRecording connects first when needed, then acquires the microphone.
// Connect and record serialize on the loop goroutine, so concurrent attempts
// cannot race.
func (s *ConversationService) startRecording(ctx context.Context) {
	if !s.ensureConnected(ctx) {
		return
	}

	recorder, err := s.capture.AcquireAudio(ctx, repositories.DefaultAudioConstraints())
	if err != nil {
		s.fault(err)
		return
	}

	s.lastToken++
	s.activeToken = s.lastToken
	s.pendingSynth = false
	s.recorder = recorder
	s.chunks = recorder.Chunks()
	s.turn = entities.NewAudioTurn(s.activeToken, recorder.MimeType())
	s.recordDeadline = time.After(s.opts.MaxRecording)
	s.elapsedTicker = time.NewTicker(time.Second)
	s.setState(entities.StateRecording)
}

// finishRecording stops the recorder, flushes the final chunks, and sends
// the complete utterance as exactly one audio event.
func (s *ConversationService) finishRecording(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	s.stopRecordTimers()

	recorder := s.recorder
	s.recorder = nil

	blob, err := recorder.Stop(ctx)
	recorder.Close()

	// Stop closed the chunk stream; drain what the live feed still holds.
	if s.chunks != nil {
		for range s.chunks {
		}
		s.chunks = nil
	}

	if err != nil {
		s.fault(err)
		return
	}
	if len(blob) < entities.MinCaptureBytes {
		s.fault(domain.NewFault(domain.FaultEmptyCapture, nil))
		return
	}

	frame := ""
	if s.opts.Video {
		frame = s.captureFrameB64(ctx)
	}

	event := domain.NewAudioEvent(
		base64.StdEncoding.EncodeToString(blob),
		s.turn.MimeType,
		frame,
	)
	if err := s.channel.Send(event); err != nil {
		s.fault(err)
		return
	}
	s.logger.Info("Utterance sent",
		zap.Uint64("token", s.turn.Token),
		zap.String("mimeType", s.turn.MimeType),
		zap.Int("bytes", len(blob)))
	s.setState(entities.StateProcessing)
}

func (s *ConversationService) sendTextMessage(ctx context.Context, text string, withFrame bool) {
	if text == "" || !s.ensureConnected(ctx) {
		return
	}
	if s.session.State == entities.StateRecording {
		// Typed input aborts an unfinished recording.
		s.abortRecording()
	}

	frame := ""
	if withFrame {
		frame = s.captureFrameB64(ctx)
	}
	if err := s.channel.Send(domain.NewMessageEvent(text, frame)); err != nil {
		s.fault(err)
		return
	}

	s.lastToken++
	s.activeToken = s.lastToken
	s.pendingSynth = false
	s.turn = nil
	s.setState(entities.StateProcessing)
}

func (s *ConversationService) analyzeNow(ctx context.Context) {
	if !s.ensureConnected(ctx) {
		return
	}
	frame := s.captureFrameB64(ctx)
	if frame == "" {
		return
	}
	if err := s.channel.Send(domain.NewFrameEvent(frame)); err != nil {
		s.logger.Warn("Analyze-now frame not sent", zap.Error(err))
	}
}

// ensureConnected dials the channel on first use. Idempotent; the handshake
// ceiling lives in the channel.
func (s *ConversationService) ensureConnected(ctx context.Context) bool {
	if s.events != nil {
		return true
	}

	sessionID, welcome, err := s.channel.Connect(ctx)
	if err != nil {
		s.fault(err)
		return false
	}

	s.session.Connected(sessionID)
	s.events = s.channel.Events()
	s.logger.Info("Conversation connected", zap.String("sessionID", sessionID))

	if welcome != "" {
		s.emit(Update{Kind: UpdateWelcome, Text: welcome})
	}
	if s.opts.Video {
		s.openCamera(ctx)
		s.frameTicker = time.NewTicker(s.opts.FrameInterval)
	}
	return true
}

// openCamera acquires the front-facing feed. Failure downgrades to
// audio-only instead of blocking the conversation.
func (s *ConversationService) openCamera(ctx context.Context) {
	if s.camera == nil || s.frameSource != nil {
		return
	}
	src, err := s.camera.AcquireVideo(ctx, repositories.DefaultVideoConstraints())
	if err != nil {
		s.logger.Warn("Camera unavailable, continuing audio-only", zap.Error(err))
		s.emit(Update{Kind: UpdateNotice, Text: domain.AsFault(err).Notice()})
		return
	}
	s.frameSource = src
}

// sampleFrame sends one still frame, fire-and-forget. Skipped entirely when
// the camera or channel is unavailable.
func (s *ConversationService) sampleFrame(ctx context.Context) {
	frame := s.captureFrameB64(ctx)
	if frame == "" {
		return
	}
	if err := s.channel.Send(domain.NewFrameEvent(frame)); err != nil {
		s.logger.Debug("Sampled frame not sent", zap.Error(err))
	}
}

func (s *ConversationService) captureFrameB64(ctx context.Context) string {
	if s.frameSource == nil {
		return ""
	}
	jpeg, err := s.frameSource.CaptureFrame(ctx)
	if err != nil {
		s.logger.Debug("Frame capture failed", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(jpeg)
}

func (s *ConversationService) handleEvent(ctx context.Context, event domain.InboundEvent) {
	switch ev := event.(type) {
	case domain.ConnectedEvent:
		// Connect already consumed the handshake; a duplicate is harmless.
		s.logger.Debug("Duplicate connected event", zap.String("sessionID", ev.SessionID))

	case domain.UserTextEvent:
		if s.turn != nil {
			s.turn.Transcript = ev.Text
		}
		s.session.SetEmotion(ev.AudioEmotion)
		s.emit(Update{Kind: UpdateTranscript, Text: ev.Text})

	case domain.ReplyEvent:
		s.handleReply(ctx, ev)

	case domain.AudioReplyEvent:
		s.handleAudioReply(ev)

	case domain.AnalysisEvent:
		s.session.SetEmotion(ev.Data.Emotion)
		data := ev.Data
		s.emit(Update{Kind: UpdateAnalysis, Analysis: &data})

	case domain.SuggestionEvent:
		s.emit(Update{Kind: UpdateSuggestion, Text: ev.Text, Emotion: entities.Emotion(ev.Emotion)})

	case domain.EmotionChangeEvent:
		s.emit(Update{Kind: UpdateNotice, Text: ev.Message})

	case domain.TurnCompleteEvent:
		// The backend bursts this right after the reply. When a synthesis
		// is still in flight the turn ends on playback, not here.
		if s.session.State == entities.StateProcessing && !s.pendingSynth {
			s.completeTurn()
		}

	case domain.SessionSummaryEvent:
		data := ev.Data
		s.emit(Update{Kind: UpdateSummary, Summary: &data})

	case domain.ErrorEvent:
		s.fault(domain.NewFault(domain.FaultBackend, errors.New(ev.Message)))

	default:
		s.logger.Debug("Ignoring inbound event", zap.Any("event", event))
	}
}

func (s *ConversationService) handleReply(ctx context.Context, ev domain.ReplyEvent) {
	s.session.SetEmotion(ev.Emotion)
	if ev.MessageCount > 0 {
		s.session.MessageCount = ev.MessageCount
	}
	if added := s.session.AddLearnedFacts(ev.Learned); len(added) > 0 {
		s.emit(Update{Kind: UpdateLearned, Facts: added})
	}
	if s.turn != nil {
		s.turn.ReplyText = ev.Text
		s.turn.ReplyEmotion = entities.Emotion(ev.Emotion)
	}
	s.emit(Update{Kind: UpdateReply, Text: ev.Text, Emotion: s.session.LastEmotion})

	if !s.speakable() {
		// Nothing will be spoken; the reply itself ends the turn.
		s.completeTurn()
		return
	}
	if !s.opts.SynthesizeReplies || s.synth == nil {
		// The channel delivers synthesized audio on its own.
		return
	}

	token := s.activeToken
	text := truncateRunes(ev.Text, maxSpokenRunes)
	voice := entities.SelectVoice(s.session.LastEmotion)
	s.pendingSynth = true
	go func() {
		audio, mimeType, err := s.synth.Synthesize(ctx, text, voice)
		select {
		case s.synthDone <- synthesisResult{token: token, audio: audio, mimeType: mimeType, err: err}:
		case <-s.done:
		}
	}()
}

func (s *ConversationService) handleAudioReply(ev domain.AudioReplyEvent) {
	if s.session.State != entities.StateProcessing && s.session.State != entities.StateSpeaking {
		// Audio for a turn that no longer exists, e.g. delayed past an
		// interrupt.
		s.logger.Debug("Ignoring audio outside a turn")
		return
	}
	if !s.speakable() {
		return
	}
	audio, err := base64.StdEncoding.DecodeString(ev.Data)
	if err != nil {
		s.fault(domain.NewFault(domain.FaultDecode, err))
		return
	}
	mimeType := ev.MimeType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	s.startPlayback(audio, mimeType)
}

func (s *ConversationService) handleSynthesis(res synthesisResult) {
	if res.token != s.activeToken || s.session.State != entities.StateProcessing {
		// Stale result of an invalidated turn.
		return
	}
	s.pendingSynth = false
	if res.err != nil {
		s.fault(res.err)
		return
	}
	s.startPlayback(res.audio, res.mimeType)
}

// startPlayback tears down any still-playing audio and starts the new one.
// Exactly one playback per turn.
func (s *ConversationService) startPlayback(audio []byte, mimeType string) {
	s.player.Stop()
	token := s.activeToken
	s.setState(entities.StateSpeaking)

	ctx := s.runCtx
	go func() {
		err := s.player.Play(ctx, audio, mimeType)
		select {
		case s.playbackDone <- playbackResult{token: token, err: err}:
		case <-s.done:
		}
	}()
}

func (s *ConversationService) handlePlaybackDone(res playbackResult) {
	if res.token != s.activeToken || s.session.State != entities.StateSpeaking {
		return
	}
	if res.err != nil {
		// Playback failed; still reach idle, never hang in speaking.
		s.emit(Update{Kind: UpdateNotice, Text: domain.AsFault(res.err).Notice()})
	}
	s.completeTurn()
}

func (s *ConversationService) interruptSpeaking() {
	s.activeToken = 0 // invalidate the pending playback result
	s.player.Stop()
	s.completeTurn()
}

func (s *ConversationService) completeTurn() {
	s.session.CompleteTurn()
	s.turn = nil
	s.pendingSynth = false
	s.setState(entities.StateIdle)
}

// handleDisconnect reacts to the channel dropping: any in-flight turn
// returns to idle with a recoverable notice. No auto-reconnect.
func (s *ConversationService) handleDisconnect() {
	s.events = nil
	if s.frameTicker != nil {
		s.frameTicker.Stop()
		s.frameTicker = nil
	}
	if s.session.State.IsBusy() {
		s.player.Stop()
		s.fault(domain.NewFault(domain.FaultConnection, errors.New("realtime channel closed")))
	}
	s.logger.Warn("Realtime channel disconnected", zap.String("sessionID", s.session.ID))
}

// fault converts any error into a user notice and returns the machine to
// idle. Faults never terminate the session.
func (s *ConversationService) fault(err error) {
	f := domain.AsFault(err)
	s.logger.Warn("Recoverable fault",
		zap.String("kind", string(f.Kind)),
		zap.Error(err))
	s.emit(Update{Kind: UpdateNotice, Text: f.Notice()})
	s.abortRecording()
	s.player.Stop()
	s.turn = nil
	s.pendingSynth = false
	s.setState(entities.StateIdle)
}

func (s *ConversationService) abortRecording() {
	s.stopRecordTimers()
	if s.recorder != nil {
		s.recorder.Close()
		s.recorder = nil
	}
	s.chunks = nil
}

func (s *ConversationService) stopRecordTimers() {
	s.recordDeadline = nil
	if s.elapsedTicker != nil {
		s.elapsedTicker.Stop()
		s.elapsedTicker = nil
	}
}

func (s *ConversationService) setState(state entities.SessionState) {
	if s.session.State == state {
		return
	}
	s.session.State = state
	s.emit(Update{Kind: UpdateState, State: state})
}

func (s *ConversationService) speakable() bool {
	return s.opts.AutoSpeak && !s.opts.Muted
}

func (s *ConversationService) emit(update Update) {
	select {
	case s.updates <- update:
	default:
		s.logger.Debug("Dropping display update, consumer behind",
			zap.String("kind", string(update.Kind)))
	}
}

// cleanup releases every held resource on the way out of Run.
func (s *ConversationService) cleanup() {
	s.abortRecording()
	s.player.Stop()
	if s.frameTicker != nil {
		s.frameTicker.Stop()
		s.frameTicker = nil
	}
	if s.frameSource != nil {
		s.frameSource.Close()
		s.frameSource = nil
	}
	s.channel.Close()
	close(s.updates)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
