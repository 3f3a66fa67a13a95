package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/repositories"
)

// Manager acquires camera frame sources. Each facing maps to a video device
// path; grabs shell out to ffmpeg so no camera stack is linked in.
type Manager struct {
	logger  *zap.Logger
	devices map[repositories.CameraFacing]string

	mu     sync.Mutex
	active *frameSource
}

var _ repositories.VideoCapture = (*Manager)(nil)

// NewManager creates a camera manager. devices maps each facing to its
// device path, for example /dev/video0.
func NewManager(logger *zap.Logger, devices map[repositories.CameraFacing]string) *Manager {
	return &Manager{logger: logger, devices: devices}
}

// AcquireVideo opens the camera for the requested facing. Acquiring while a
// source is held returns the held source.
func (m *Manager) AcquireVideo(ctx context.Context, constraints repositories.VideoConstraints) (repositories.FrameSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && !m.active.closed && m.active.facing == constraints.Facing {
		return m.active, nil
	}

	device, ok := m.devices[constraints.Facing]
	if !ok || device == "" {
		return nil, domain.NewFault(domain.FaultDeviceNotFound,
			fmt.Errorf("no camera configured for facing %q", constraints.Facing))
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, domain.NewFault(domain.FaultDeviceNotFound,
			fmt.Errorf("frame grabber unavailable: %w", err))
	}

	src := &frameSource{
		manager: m,
		logger:  m.logger,
		facing:  constraints.Facing,
		device:  device,
		width:   constraints.Width,
		height:  constraints.Height,
	}
	m.active = src
	m.logger.Info("Camera acquired",
		zap.String("facing", string(constraints.Facing)),
		zap.String("device", device))
	return src, nil
}

func (m *Manager) sourceClosed(s *frameSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
	}
}

// frameSource grabs single JPEG stills from a video device.
type frameSource struct {
	manager *Manager
	logger  *zap.Logger
	facing  repositories.CameraFacing
	device  string
	width   int
	height  int

	mu     sync.Mutex
	closed bool
}

var _ repositories.FrameSource = (*frameSource)(nil)

// CaptureFrame grabs one still frame encoded as JPEG.
func (s *frameSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.NewFault(domain.FaultDeviceNotFound, fmt.Errorf("camera released"))
	}
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
		"-i", s.device,
		"-frames:v", "1",
		"-q:v", "4",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1")
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		s.logger.Warn("Frame grab failed",
			zap.String("device", s.device),
			zap.String("stderr", errBuf.String()))
		return nil, domain.NewFault(domain.FaultDeviceNotFound,
			fmt.Errorf("grab frame from %s: %w", s.device, err))
	}
	return out.Bytes(), nil
}

// Close releases the camera. Safe to call more than once.
func (s *frameSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.manager.sourceClosed(s)
	s.logger.Info("Camera released", zap.String("facing", string(s.facing)))
	return nil
}
