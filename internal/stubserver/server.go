// Package stubserver is a local development stand-in for the Rozhan backend.
// It speaks the same WebSocket and REST contracts with canned Persian
// replies, so the client can run offline and integration tests need no
// network.
package stubserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/internal/api"
	"github.com/agharasoul/Rozhan/internal/auth"
)

// Server is the stub backend.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger

	replies *replyBook
	chatIDs *historyCounter
	secret  []byte
}

// New creates a stub server. secret signs the development bearer tokens.
func New(secret string, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		logger:  logger,
		replies: newReplyBook(),
		chatIDs: &historyCounter{},
		secret:  []byte(secret),
	}
	s.routes()
	return s
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("Stub backend listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) routes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "rozhan-stubd",
		})
	})

	s.echo.POST("/transcribe", s.transcribe)
	s.echo.POST("/chat", s.chat)
	s.echo.POST("/tts", s.tts)
	s.echo.POST("/auth/token", s.mintToken)

	s.echo.GET("/ws/voice-chat", func(c echo.Context) error {
		return s.handleVoiceChat(c)
	})
	s.echo.GET("/ws/video-chat", func(c echo.Context) error {
		return s.handleVideoChat(c)
	})
}

func (s *Server) transcribe(c echo.Context) error {
	var req api.TranscribeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind transcribe request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Audio == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "missing_audio",
			Message: "Audio payload is required",
		})
	}
	return c.JSON(http.StatusOK, api.TranscribeResponse{
		Text: s.replies.nextTranscript(),
	})
}

func (s *Server) chat(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "missing_message",
			Message: "Message is required",
		})
	}

	historyID := req.SessionID
	if historyID == 0 {
		historyID = s.chatIDs.next()
	}

	reply := s.replies.nextReply()
	s.logger.Info("Chat handled",
		zap.Int("historyID", historyID),
		zap.String("emotion", string(reply.emotion)))
	return c.JSON(http.StatusOK, api.ChatResponse{
		Response:  reply.text,
		Emotion:   string(reply.emotion),
		SessionID: historyID,
	})
}

func (s *Server) tts(c echo.Context) error {
	var req api.TTSRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Error("Failed to bind tts request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "missing_text",
			Message: "Text is required",
		})
	}
	return c.JSON(http.StatusOK, api.TTSResponse{
		Audio:   toneDataURI(len([]rune(req.Text))),
		Success: true,
	})
}

// mintToken issues a short-lived development bearer token.
func (s *Server) mintToken(c echo.Context) error {
	var req struct {
		UserID int    `json:"user_id"`
		Phone  string `json:"phone"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.UserID == 0 {
		req.UserID = 1
	}

	signed, err := auth.MintToken(s.secret, req.UserID, req.Phone, 24*time.Hour)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:   "token_error",
			Message: "Could not sign token",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": signed})
}
