package repositories

import "context"

// AudioConstraints configures microphone acquisition.
type AudioConstraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultAudioConstraints returns the constraints used for conversational
// capture.
func DefaultAudioConstraints() AudioConstraints {
	return AudioConstraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Recorder is an exclusively owned handle to a live microphone stream.
// At most one recorder is active per conversation session.
type Recorder interface {
	// Chunks yields the captured audio fragments in order. The channel is
	// closed after Stop has flushed the final fragment.
	Chunks() <-chan []byte
	// MimeType returns the negotiated encoding of the recording.
	MimeType() string
	// Stop ends the capture, flushes buffered audio, and returns the
	// complete utterance encoded in the negotiated format.
	Stop(ctx context.Context) ([]byte, error)
	// Close releases the underlying device. It must run on every exit
	// path and is safe to call more than once.
	Close() error
}

// AudioCapture acquires microphone recorders.
type AudioCapture interface {
	// AcquireAudio opens the microphone. Fails with a permission-denied or
	// device-not-found fault when the platform denies or lacks the device;
	// never fatal to the process.
	AcquireAudio(ctx context.Context, constraints AudioConstraints) (Recorder, error)
}

// CameraFacing selects which camera to open.
type CameraFacing string

const (
	// FacingFront is the user-facing camera used for conversational video.
	FacingFront CameraFacing = "user"
	// FacingRear is the environment-facing camera used for document and
	// photo capture.
	FacingRear CameraFacing = "environment"
)

// VideoConstraints configures camera acquisition.
type VideoConstraints struct {
	Facing CameraFacing
	Width  int
	Height int
}

// DefaultVideoConstraints returns the constraints used for conversational
// video.
func DefaultVideoConstraints() VideoConstraints {
	return VideoConstraints{Facing: FacingFront, Width: 640, Height: 480}
}

// FrameSource is an exclusively owned handle to a live video feed.
type FrameSource interface {
	// CaptureFrame grabs one still frame encoded as JPEG.
	CaptureFrame(ctx context.Context) ([]byte, error)
	// Close releases the camera. Safe to call more than once.
	Close() error
}

// VideoCapture acquires camera frame sources.
type VideoCapture interface {
	AcquireVideo(ctx context.Context, constraints VideoConstraints) (FrameSource, error)
}
