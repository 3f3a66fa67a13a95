package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	mp3 "github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/repositories"
)

// Poll interval while waiting for the speaker to drain.
const drainPoll = 50 * time.Millisecond

// Player renders reply audio through the speaker. Playback is strictly one
// utterance at a time: a new Play waits for the previous one to finish or be
// stopped.
type Player struct {
	logger *zap.Logger

	// playMu serializes whole utterances.
	playMu sync.Mutex

	mu        sync.Mutex
	otoCtx    *oto.Context
	ctxRate   int
	ctxChans  int
	current   *oto.Player
	interrupt chan struct{}
	closed    bool
}

var _ repositories.AudioPlayer = (*Player)(nil)

// NewPlayer creates a speaker player. The audio device is opened lazily on
// the first Play so construction never fails on headless machines.
func NewPlayer(logger *zap.Logger) *Player {
	return &Player{logger: logger}
}

// Play decodes the payload and blocks until the utterance finishes, Stop is
// called, or ctx is cancelled.
func (p *Player) Play(ctx context.Context, audio []byte, mimeType string) error {
	pcm, rate, channels, err := decode(ctx, audio, mimeType)
	if err != nil {
		return domain.NewFault(domain.FaultDecode, err)
	}
	if len(pcm) == 0 {
		return domain.NewFault(domain.FaultDecode, errors.New("empty audio payload"))
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.NewFault(domain.FaultPlayback, errors.New("player is closed"))
	}
	p.mu.Unlock()

	if err := p.ensureContext(rate, channels); err != nil {
		return domain.NewFault(domain.FaultPlayback, err)
	}
	pcm = adaptFormat(pcm, rate, channels, p.ctxRate, p.ctxChans)

	player := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	interrupt := make(chan struct{})

	p.mu.Lock()
	p.current = player
	p.interrupt = interrupt
	p.mu.Unlock()

	p.logger.Debug("Playback started",
		zap.String("mimeType", mimeType),
		zap.Int("pcmBytes", len(pcm)))
	player.Play()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	var playErr error
loop:
	for {
		select {
		case <-ctx.Done():
			playErr = ctx.Err()
			break loop
		case <-interrupt:
			break loop
		case <-ticker.C:
			if !player.IsPlaying() {
				break loop
			}
		}
	}

	p.mu.Lock()
	if p.current == player {
		p.current = nil
		p.interrupt = nil
	}
	p.mu.Unlock()
	player.Close()

	if playErr != nil {
		return domain.NewFault(domain.FaultPlayback, playErr)
	}
	return nil
}

// Stop interrupts the current utterance, if any. Safe to call at any time,
// including when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	player := p.current
	interrupt := p.interrupt
	p.current = nil
	p.interrupt = nil
	p.mu.Unlock()

	if player == nil {
		return
	}
	player.Pause()
	close(interrupt)
	p.logger.Debug("Playback stopped")
}

// Close stops playback and marks the player unusable. The speaker context
// itself lives for the process.
func (p *Player) Close() error {
	p.Stop()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// ensureContext opens the speaker on first use. The context format is fixed
// for the process lifetime; later utterances are converted to it.
func (p *Player) ensureContext(rate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.otoCtx != nil {
		return nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	<-ready

	p.otoCtx = otoCtx
	p.ctxRate = rate
	p.ctxChans = channels
	p.logger.Info("Speaker opened",
		zap.Int("sampleRate", rate),
		zap.Int("channels", channels))
	return nil
}

// decode converts the payload into little-endian s16 PCM. MP3 and WAV decode
// natively; other containers go through ffmpeg.
func decode(ctx context.Context, audio []byte, mimeType string) (pcm []byte, rate, channels int, err error) {
	switch normalizeMime(mimeType) {
	case "audio/mpeg", "audio/mp3":
		return decodeMP3(audio)
	case "audio/wav", "audio/x-wav", "audio/wave":
		return decodeWAV(audio)
	default:
		return decodeFFmpeg(ctx, audio)
	}
}

func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func decodeMP3(audio []byte) ([]byte, int, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3: %w", err)
	}
	// go-mp3 always emits 16-bit stereo.
	return pcm, dec.SampleRate(), 2, nil
}

// decodeWAV walks the RIFF chunks and extracts 16-bit PCM.
func decodeWAV(audio []byte) ([]byte, int, int, error) {
	if len(audio) < 12 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("wav: not a RIFF/WAVE stream")
	}

	var (
		rate, channels, bits int
		data                 []byte
	)
	pos := 12
	for pos+8 <= len(audio) {
		id := string(audio[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(audio[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(audio) {
			size = len(audio) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, errors.New("wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(audio[body : body+2])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("wav: unsupported format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(audio[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(audio[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(audio[body+14 : body+16]))
		case "data":
			data = audio[body : body+size]
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word aligned
		}
	}

	if rate == 0 || channels == 0 || data == nil {
		return nil, 0, 0, errors.New("wav: missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, 0, 0, fmt.Errorf("wav: unsupported bit depth %d", bits)
	}
	return data, rate, channels, nil
}

// decodeFFmpeg shells out to decode containers such as webm, ogg, and mp4.
func decodeFFmpeg(ctx context.Context, audio []byte) ([]byte, int, int, error) {
	const (
		rate     = 24000
		channels = 1
	)
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, 0, 0, fmt.Errorf("no decoder for payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprint(rate),
		"-ac", fmt.Sprint(channels),
		"pipe:1")
	cmd.Stdin = bytes.NewReader(audio)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, 0, 0, fmt.Errorf("ffmpeg decode: %w: %s", err, errBuf.String())
	}
	return out.Bytes(), rate, channels, nil
}

// adaptFormat converts PCM between sample rates and channel counts so every
// utterance matches the speaker context opened on first use.
func adaptFormat(pcm []byte, fromRate, fromChans, toRate, toChans int) []byte {
	if fromRate == toRate && fromChans == toChans {
		return pcm
	}

	samples := bytesToSamples(pcm, fromChans)
	if fromChans != toChans {
		samples = remixChannels(samples, fromChans, toChans)
	}
	if fromRate != toRate {
		samples = resampleLinear(samples, toChans, fromRate, toRate)
	}
	return samplesToBytes(samples)
}

// bytesToSamples reinterprets little-endian s16 bytes as interleaved samples,
// truncating any trailing partial frame.
func bytesToSamples(pcm []byte, channels int) []int16 {
	frame := channels * 2
	n := len(pcm) / frame * frame
	samples := make([]int16, n/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

func remixChannels(samples []int16, from, to int) []int16 {
	frames := len(samples) / from
	out := make([]int16, 0, frames*to)
	for f := 0; f < frames; f++ {
		base := f * from
		switch {
		case from == 1:
			// Duplicate mono into every output channel.
			for c := 0; c < to; c++ {
				out = append(out, samples[base])
			}
		default:
			// Average down to mono, then spread.
			var sum int
			for c := 0; c < from; c++ {
				sum += int(samples[base+c])
			}
			mixed := int16(sum / from)
			for c := 0; c < to; c++ {
				out = append(out, mixed)
			}
		}
	}
	return out
}

func resampleLinear(samples []int16, channels, fromRate, toRate int) []int16 {
	frames := len(samples) / channels
	if frames == 0 {
		return nil
	}
	outFrames := int(int64(frames) * int64(toRate) / int64(fromRate))
	out := make([]int16, outFrames*channels)
	for f := 0; f < outFrames; f++ {
		srcPos := float64(f) * float64(fromRate) / float64(toRate)
		i := int(srcPos)
		frac := srcPos - float64(i)
		j := i + 1
		if j >= frames {
			j = frames - 1
		}
		for c := 0; c < channels; c++ {
			a := float64(samples[i*channels+c])
			b := float64(samples[j*channels+c])
			out[f*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
