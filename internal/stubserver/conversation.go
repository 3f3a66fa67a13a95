package stubserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Whole utterances arrive
	// base64 encoded in one frame.
	maxMessageSize = 8 * 1024 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one conversation connection on the stub backend.
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	sessionID string
	video     bool

	mu             sync.Mutex
	startedAt      time.Time
	messageCount   int
	lastEmotion    string
	emotionChanges int
	emotionCounts  map[string]int
	learned        []string
}

func (s *Server) handleVoiceChat(c echo.Context) error {
	return s.handleConversation(c, false)
}

func (s *Server) handleVideoChat(c echo.Context) error {
	return s.handleConversation(c, true)
}

func (s *Server) handleConversation(c echo.Context, video bool) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	cl := &client{
		server:        s,
		conn:          conn,
		send:          make(chan []byte, 64),
		logger:        s.logger,
		sessionID:     uuid.NewString(),
		video:         video,
		startedAt:     time.Now(),
		lastEmotion:   "neutral",
		emotionCounts: map[string]int{},
	}

	connected := map[string]any{
		"type":       "connected",
		"session_id": cl.sessionID,
	}
	if video {
		connected["welcome"] = "سلام! من روژان هستم، دستیار سفارش غذات. چی میل داری؟"
	}
	cl.enqueue(connected)

	go cl.writePump()
	go cl.readPump()

	s.logger.Info("Conversation opened",
		zap.String("sessionID", cl.sessionID),
		zap.Bool("video", video))
	return nil
}

// readPump consumes client frames until the connection ends.
func (c *client) readPump() {
	defer func() {
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket error", zap.String("sessionID", c.sessionID), zap.Error(err))
			}
			return
		}
		if done := c.processMessage(message); done {
			return
		}
	}
}

// writePump delivers queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) processMessage(message []byte) (done bool) {
	var msg struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Error("Failed to parse message", zap.Error(err))
		c.enqueue(map[string]any{"type": "error", "message": "invalid message"})
		return false
	}

	switch msg.Type {
	case "audio":
		if msg.Data == "" {
			c.enqueue(map[string]any{"type": "error", "message": "empty audio"})
			return false
		}
		c.handleUtterance(c.server.replies.nextTranscript())
	case "message":
		text := strings.TrimSpace(msg.Data)
		if text == "" {
			return false
		}
		c.handleTyped(text)
	case "frame":
		c.handleFrame()
	case "end":
		c.handleEnd()
		return true
	default:
		c.logger.Warn("Unknown message type",
			zap.String("sessionID", c.sessionID),
			zap.String("type", msg.Type))
	}
	return false
}

// handleUtterance scripts one full turn: the transcript followed by the
// per-path reply sequence.
func (c *client) handleUtterance(transcript string) {
	if c.video {
		c.enqueue(map[string]any{"type": "transcription", "data": transcript})
	} else {
		c.enqueue(map[string]any{"type": "user_text", "data": transcript})
	}
	c.reply()
}

func (c *client) handleTyped(text string) {
	c.logger.Info("Typed message",
		zap.String("sessionID", c.sessionID),
		zap.String("text", text))
	c.reply()
}

func (c *client) reply() {
	r := c.server.replies.nextReply()

	c.mu.Lock()
	c.messageCount++
	count := c.messageCount
	c.noteEmotionLocked(string(r.emotion))
	if len(r.learned) > 0 {
		c.learned = append(c.learned, r.learned...)
	}
	c.mu.Unlock()

	// Only the voice path closes the turn explicitly; the video path ends
	// it with the response itself.
	if c.video {
		c.enqueue(map[string]any{
			"type":          "response",
			"data":          r.text,
			"emotion":       string(r.emotion),
			"learned":       r.learned,
			"message_count": count,
		})
		return
	}

	c.enqueue(map[string]any{
		"type":    "text",
		"data":    r.text,
		"emotion": string(r.emotion),
	})
	c.enqueue(map[string]any{
		"type":      "audio",
		"data":      toneBase64(len([]rune(r.text))),
		"mime_type": "audio/wav",
		"emotion":   string(r.emotion),
	})
	c.enqueue(map[string]any{"type": "turn_complete"})
}

func (c *client) handleFrame() {
	if !c.video {
		return
	}
	analysis := c.server.replies.nextAnalysis()

	c.mu.Lock()
	changed := c.lastEmotion != "" && analysis.Emotion != c.lastEmotion
	c.noteEmotionLocked(analysis.Emotion)
	c.mu.Unlock()

	c.enqueue(map[string]any{"type": "analysis", "data": analysis})
	if changed {
		c.enqueue(map[string]any{
			"type":    "emotion_change",
			"message": "حال و هوات عوض شد: " + analysis.EmotionFa,
		})
		c.enqueue(map[string]any{
			"type":    "suggestion",
			"data":    c.server.replies.nextSuggestion(),
			"emotion": analysis.Emotion,
		})
	}
}

func (c *client) handleEnd() {
	if c.video {
		c.mu.Lock()
		summary := map[string]any{
			"type": "session_summary",
			"data": map[string]any{
				"session_id":       c.sessionID,
				"duration_seconds": time.Since(c.startedAt).Seconds(),
				"message_count":    c.messageCount,
				"dominant_emotion": c.dominantEmotionLocked(),
				"emotion_changes":  c.emotionChanges,
				"emotion_summary":  c.emotionCounts,
			},
		}
		c.mu.Unlock()
		c.enqueue(summary)
	}
	c.logger.Info("Conversation ended", zap.String("sessionID", c.sessionID))
}

func (c *client) noteEmotionLocked(emotion string) {
	if emotion == "" {
		return
	}
	if c.lastEmotion != emotion {
		c.emotionChanges++
	}
	c.lastEmotion = emotion
	c.emotionCounts[emotion]++
}

func (c *client) dominantEmotionLocked() string {
	dominant, best := "neutral", 0
	for emotion, n := range c.emotionCounts {
		if n > best {
			dominant, best = emotion, n
		}
	}
	return dominant
}

func (c *client) enqueue(payload map[string]any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to marshal frame", zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("Dropping frame, client behind",
			zap.String("sessionID", c.sessionID))
	}
}
