package entities

import (
	"time"
)

// SessionState is the single state of the conversation surface. Exactly one
// state is active at any time; combinations such as "processing and speaking"
// cannot be expressed.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateRecording  SessionState = "recording"
	StateProcessing SessionState = "processing"
	StateSpeaking   SessionState = "speaking"
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	return string(s)
}

// CanRecord reports whether a new recording may start in this state.
func (s SessionState) CanRecord() bool {
	return s == StateIdle
}

// IsBusy reports whether a turn is in flight.
func (s SessionState) IsBusy() bool {
	return s == StateRecording || s == StateProcessing || s == StateSpeaking
}

// ConversationSession tracks one realtime connection's lifetime. It is owned
// by the conversation engine; exactly one session is active per open surface.
type ConversationSession struct {
	// ID is the opaque identifier assigned by the backend on connect.
	// Empty until the connected event arrives. Distinct from any numeric
	// chat-history session id used by the REST chat endpoint.
	ID string

	State        SessionState
	TurnCount    int
	MessageCount int

	// LearnedFacts is the append-only, deduplicated set of short facts the
	// backend surfaced about the user.
	LearnedFacts []string

	// LastEmotion is the most recent emotion tag, "neutral" by default.
	LastEmotion Emotion

	StartedAt    time.Time
	LastActiveAt time.Time

	learnedSeen map[string]struct{}
}

// NewConversationSession creates a session in the Idle state.
func NewConversationSession() *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		State:        StateIdle,
		LastEmotion:  EmotionNeutral,
		StartedAt:    now,
		LastActiveAt: now,
		learnedSeen:  make(map[string]struct{}),
	}
}

// Connected records the backend-assigned session identifier.
func (s *ConversationSession) Connected(sessionID string) {
	s.ID = sessionID
	s.touch()
}

// AddLearnedFacts appends facts not seen before and returns the ones that
// were actually new.
func (s *ConversationSession) AddLearnedFacts(facts []string) []string {
	var added []string
	for _, fact := range facts {
		if fact == "" {
			continue
		}
		if _, ok := s.learnedSeen[fact]; ok {
			continue
		}
		s.learnedSeen[fact] = struct{}{}
		s.LearnedFacts = append(s.LearnedFacts, fact)
		added = append(added, fact)
	}
	if len(added) > 0 {
		s.touch()
	}
	return added
}

// SetEmotion updates the latest emotion tag. Empty tags are ignored.
func (s *ConversationSession) SetEmotion(tag string) {
	if tag == "" {
		return
	}
	s.LastEmotion = Emotion(tag)
	s.touch()
}

// CompleteTurn increments the turn counter after an assistant reply.
func (s *ConversationSession) CompleteTurn() {
	s.TurnCount++
	s.touch()
}

func (s *ConversationSession) touch() {
	s.LastActiveAt = time.Now()
}
