package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/repositories"
)

const (
	// Capture period; fragments reach the consumer roughly this often.
	capturePeriodMs = 100

	// Buffered fragments before the device callback drops audio.
	chunkBuffer = 128
)

// Manager acquires and releases microphone recorders. It owns the audio
// backend context and guarantees at most one live recorder: acquiring while
// one is held returns the held recorder instead of opening the device twice.
type Manager struct {
	logger *zap.Logger
	probe  Prober

	mu      sync.Mutex
	backend *malgo.AllocatedContext
	active  *Recorder
}

var _ repositories.AudioCapture = (*Manager)(nil)

// NewManager creates a capture manager. probe may be nil to use PATH lookup
// for the external encoder.
func NewManager(logger *zap.Logger, probe Prober) *Manager {
	return &Manager{logger: logger, probe: probe}
}

// AcquireAudio opens the microphone and starts capturing. Acquisition
// failures surface as device faults with a user notice, never as a crash.
func (m *Manager) AcquireAudio(ctx context.Context, constraints repositories.AudioConstraints) (repositories.Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && !m.active.closed {
		return m.active, nil
	}

	if m.backend == nil {
		backend, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, classifyDeviceError(err)
		}
		m.backend = backend
	}

	encoding := SelectEncoding(m.probe)

	rec := &Recorder{
		manager:    m,
		encoding:   encoding,
		sampleRate: constraints.SampleRate,
		channels:   constraints.Channels,
		chunks:     make(chan []byte, chunkBuffer),
		logger:     m.logger,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(constraints.Channels)
	deviceConfig.SampleRate = uint32(constraints.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMs

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			rec.onData(input)
		},
	}

	device, err := malgo.InitDevice(m.backend.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classifyDeviceError(err)
	}

	rec.device = device
	m.active = rec
	m.logger.Info("Microphone acquired",
		zap.Int("sampleRate", constraints.SampleRate),
		zap.Int("channels", constraints.Channels),
		zap.String("mimeType", encoding.MimeType))
	return rec, nil
}

// Close releases the audio backend. Any live recorder is closed first.
func (m *Manager) Close() error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active != nil {
		active.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		m.backend.Uninit()
		m.backend.Free()
		m.backend = nil
	}
	return nil
}

func (m *Manager) recorderClosed(r *Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == r {
		m.active = nil
	}
}

// Recorder is one live microphone stream. Fragments accumulate internally
// and flow out through Chunks; Stop encodes the complete utterance.
type Recorder struct {
	manager  *Manager
	device   *malgo.Device
	encoding Encoding
	logger   *zap.Logger

	sampleRate int
	channels   int

	mu      sync.Mutex
	pcm     []byte
	stopped bool
	closed  bool

	chunks    chan []byte
	chunkOnce sync.Once
}

var _ repositories.Recorder = (*Recorder)(nil)

// Chunks yields captured fragments in order.
func (r *Recorder) Chunks() <-chan []byte {
	return r.chunks
}

// MimeType returns the negotiated encoding of the recording.
func (r *Recorder) MimeType() string {
	return r.encoding.MimeType
}

func (r *Recorder) onData(input []byte) {
	if len(input) == 0 {
		return
	}
	chunk := make([]byte, len(input))
	copy(chunk, input)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.pcm = append(r.pcm, chunk...)
	r.mu.Unlock()

	select {
	case r.chunks <- chunk:
	default:
		// Consumer is behind; the fragment is still in the utterance
		// buffer, only the live feed skips it.
	}
}

// Stop ends the capture, flushes the final fragment, and encodes the
// complete utterance in the negotiated format.
func (r *Recorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if r.stopped {
		pcm := r.pcm
		r.mu.Unlock()
		return r.encoding.Encode(ctx, pcm, r.sampleRate, r.channels)
	}
	r.stopped = true
	r.mu.Unlock()

	if r.device != nil {
		// Let the last period drain before stopping the device.
		time.Sleep(capturePeriodMs * time.Millisecond / 2)
		r.device.Stop()
	}
	r.chunkOnce.Do(func() { close(r.chunks) })

	r.mu.Lock()
	pcm := r.pcm
	r.mu.Unlock()

	encoded, err := r.encoding.Encode(ctx, pcm, r.sampleRate, r.channels)
	if err != nil {
		return nil, domain.NewFault(domain.FaultDecode, err)
	}
	return encoded, nil
}

// Close releases the device. It runs on every exit path and is safe to call
// more than once; the microphone "in use" indicator must never stay lit.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.stopped = true
	r.mu.Unlock()

	r.chunkOnce.Do(func() { close(r.chunks) })
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	if r.manager != nil {
		r.manager.recorderClosed(r)
	}
	if r.logger != nil {
		r.logger.Info("Microphone released")
	}
	return nil
}

// classifyDeviceError maps audio backend failures onto the fault taxonomy.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access") || strings.Contains(msg, "denied") || strings.Contains(msg, "permission"):
		return domain.NewFault(domain.FaultPermissionDenied, err)
	default:
		return domain.NewFault(domain.FaultDeviceNotFound, err)
	}
}
