package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
)

// Encoding is one recording format the capture manager can produce. The
// chosen mime type travels with the audio payload so the backend can select
// a matching decoder.
type Encoding struct {
	MimeType string
	// ffmpegArgs encode raw PCM from stdin into the container on stdout.
	// Empty for the built-in WAV fallback.
	ffmpegArgs []string
}

// Candidate encodings in priority order, WAV last as the always-available
// fallback. The order mirrors the web surface's MediaRecorder probe.
var encodingCandidates = []Encoding{
	{MimeType: "audio/webm;codecs=opus", ffmpegArgs: []string{"-c:a", "libopus", "-f", "webm"}},
	{MimeType: "audio/webm", ffmpegArgs: []string{"-f", "webm"}},
	{MimeType: "audio/mp4", ffmpegArgs: []string{"-c:a", "aac", "-f", "ipod"}},
	{MimeType: "audio/ogg", ffmpegArgs: []string{"-c:a", "libvorbis", "-f", "ogg"}},
	{MimeType: "audio/wav"},
}

// Prober reports whether an external encoder binary is available. Injectable
// so format selection is testable without ffmpeg installed.
type Prober func(binary string) bool

// DefaultProber checks PATH.
func DefaultProber(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// SelectEncoding probes the candidates in priority order and returns the
// first supported one. WAV needs no external tool, so selection is total.
func SelectEncoding(probe Prober) Encoding {
	if probe == nil {
		probe = DefaultProber
	}
	haveFFmpeg := probe("ffmpeg")
	for _, enc := range encodingCandidates {
		if len(enc.ffmpegArgs) == 0 {
			return enc
		}
		if haveFFmpeg {
			return enc
		}
	}
	return encodingCandidates[len(encodingCandidates)-1]
}

// Encode converts a raw little-endian s16 PCM utterance into the encoding's
// container format.
func (e Encoding) Encode(ctx context.Context, pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(e.ffmpegArgs) == 0 {
		return encodeWAV(pcm, sampleRate, channels), nil
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-i", "pipe:0",
	}
	args = append(args, e.ffmpegArgs...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = bytes.NewReader(pcm)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode (%s): %w: %s", e.MimeType, err, errBuf.String())
	}
	return out.Bytes(), nil
}

// encodeWAV wraps PCM in a minimal RIFF header.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bytesPerSample = 2
	byteRate := sampleRate * channels * bytesPerSample

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
