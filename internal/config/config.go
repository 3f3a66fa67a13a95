package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults for the backend address. The base address is derived from a host
// and scheme, the same way the web surface derives it from its own hostname
// and protocol; there is no separate discovery protocol.
const (
	DefaultHost = "localhost"
	DefaultPort = 9999
)

// Config holds the runtime configuration of the client, read from the
// environment after godotenv has loaded any .env file.
type Config struct {
	// Host and Secure determine the backend base address.
	Host   string
	Secure bool
	Port   int

	// Token is the optional bearer token sent to the chat endpoint so the
	// backend can learn the user's profile.
	Token string

	// AutoSpeak plays assistant replies automatically.
	AutoSpeak bool
	// Muted suppresses playback even when AutoSpeak is on.
	Muted bool

	// FrontCamera and RearCamera name the capture devices for
	// conversational video and document capture respectively.
	FrontCamera string
	RearCamera  string
}

// Load reads configuration from the environment with defaults.
func Load() Config {
	return Config{
		Host:        envString("ROZHAN_HOST", DefaultHost),
		Secure:      envBool("ROZHAN_SECURE", false),
		Port:        envInt("ROZHAN_PORT", DefaultPort),
		Token:       os.Getenv("ROZHAN_TOKEN"),
		AutoSpeak:   envBool("ROZHAN_AUTOSPEAK", true),
		Muted:       envBool("ROZHAN_MUTED", false),
		FrontCamera: envString("ROZHAN_CAMERA_FRONT", "/dev/video0"),
		RearCamera:  envString("ROZHAN_CAMERA_REAR", "/dev/video1"),
	}
}

// APIBase returns the HTTP base address of the backend.
func (c Config) APIBase() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// WSBase returns the WebSocket base address, derived from the HTTP one by
// scheme substitution.
func (c Config) WSBase() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// VoiceChatURL returns the realtime voice conversation endpoint.
func (c Config) VoiceChatURL() string {
	return c.WSBase() + "/ws/voice-chat"
}

// VideoChatURL returns the realtime video conversation endpoint.
func (c Config) VideoChatURL() string {
	return c.WSBase() + "/ws/video-chat"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
