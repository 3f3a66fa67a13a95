package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/repositories"
	"github.com/agharasoul/Rozhan/internal/auth"
)

const (
	defaultRequestTimeout = 30 * time.Second

	transcribePath = "/transcribe"
	chatPath       = "/chat"
	ttsPath        = "/tts"
)

// Client talks to the backend's request-response endpoints: transcription,
// chat, and text-to-speech.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      *auth.Token
	logger     *zap.Logger
}

// Ensure Client implements the backend collaborator interfaces.
var (
	_ repositories.Transcriber = (*Client)(nil)
	_ repositories.ChatService = (*Client)(nil)
	_ repositories.Synthesizer = (*Client)(nil)
)

// NewClient creates a REST client for the given base address. token may be
// nil for anonymous use.
func NewClient(baseURL string, token *auth.Token, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		token:      token,
		logger:     logger,
	}
}

// Transcribe converts a recorded utterance to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	req := TranscribeRequest{
		Audio:    base64.StdEncoding.EncodeToString(audio),
		MimeType: mimeType,
	}

	var resp TranscribeResponse
	if err := c.postJSON(ctx, transcribePath, req, &resp, false); err != nil {
		return "", err
	}

	c.logger.Debug("Transcription received", zap.Int("chars", len(resp.Text)))
	return resp.Text, nil
}

// Chat sends one user message and returns the assistant's reply. The bearer
// token, when present and unexpired, lets the backend learn the user's
// profile.
func (c *Client) Chat(ctx context.Context, req repositories.ChatRequest) (repositories.ChatReply, error) {
	body := ChatRequest{
		Message:   req.Message,
		Frame:     req.FrameB64,
		SessionID: req.HistoryID,
	}

	var resp ChatResponse
	if err := c.postJSON(ctx, chatPath, body, &resp, true); err != nil {
		return repositories.ChatReply{}, err
	}

	reply := repositories.ChatReply{
		Text:      resp.Response,
		Emotion:   resp.Emotion,
		HistoryID: resp.SessionID,
	}
	if reply.Emotion == "" {
		reply.Emotion = "neutral"
	}
	return reply, nil
}

// Synthesize converts reply text to audio and returns the payload with its
// mime type. The backend answers with raw base64 or a complete data URI.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) ([]byte, string, error) {
	req := TTSRequest{Text: text, Voice: voice}

	var resp TTSResponse
	if err := c.postJSON(ctx, ttsPath, req, &resp, false); err != nil {
		return nil, "", err
	}
	if resp.Audio == "" {
		return nil, "", domain.NewFault(domain.FaultBackend, errors.New("tts response without audio"))
	}

	audio, mimeType, err := DecodeAudioPayload(resp.Audio)
	if err != nil {
		return nil, "", domain.NewFault(domain.FaultDecode, err)
	}
	return audio, mimeType, nil
}

// DecodeAudioPayload decodes a TTS payload that is either raw base64 (mp3 by
// convention) or a data URI carrying its own mime type.
func DecodeAudioPayload(payload string) ([]byte, string, error) {
	mimeType := "audio/mpeg"
	b64 := payload

	if strings.HasPrefix(payload, "data:") {
		rest := strings.TrimPrefix(payload, "data:")
		semi := strings.Index(rest, ";base64,")
		if semi < 0 {
			return nil, "", fmt.Errorf("unsupported data URI")
		}
		if mt := rest[:semi]; mt != "" {
			mimeType = mt
		}
		b64 = rest[semi+len(";base64,"):]
	}

	audio, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 audio: %w", err)
	}
	return audio, mimeType, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any, withAuth bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.NewFault(domain.FaultBackend, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.NewFault(domain.FaultBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth && c.token != nil && !c.token.Expired() {
		req.Header.Set("Authorization", c.token.AuthorizationHeader())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.NewFault(domain.FaultTimeout, err)
		}
		return domain.NewFault(domain.FaultConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Backend returned non-OK status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail))
		return domain.NewFault(domain.FaultBackend,
			fmt.Errorf("%s: status %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewFault(domain.FaultBackend, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
