package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/geoquest-agent/external/camera"
	"github.com/bitmark-inc/geoquest-agent/schema"
)

// MaxRetakes is how many discard-and-reacquire cycles a live capture allows
const MaxRetakes = 1

var (
	ErrRetakeExhausted = fmt.Errorf("retake already used")
	ErrNoFrame         = fmt.Errorf("no frame captured")
	ErrFrameCaptured   = fmt.Errorf("frame already captured")
	ErrLiveClosed      = fmt.Errorf("live capture closed")
)

// LiveCapture holds the camera between open and capture. The camera is
// released as soon as a frame is grabbed and on Close.
type LiveCapture struct {
	sync.Mutex

	extractor  *Extractor
	facing     camera.Facing
	source     camera.FrameSource
	frame      image.Image
	capturedAt time.Time
	retakes    int
	closed     bool
}

// OpenLive opens the camera, rear facing unless facing says otherwise
func (e *Extractor) OpenLive(ctx context.Context, facing camera.Facing) (*LiveCapture, error) {
	if facing == "" {
		facing = camera.FacingRear
	}

	source, err := e.camera.Open(ctx, facing)
	if err != nil {
		return nil, err
	}

	return &LiveCapture{
		extractor: e,
		facing:    facing,
		source:    source,
	}, nil
}

func (l *LiveCapture) releaseCamera() {
	if l.source != nil {
		l.source.Release()
		l.source = nil
	}
}

// Capture grabs the current frame and releases the camera
func (l *LiveCapture) Capture(ctx context.Context) error {
	l.Lock()
	defer l.Unlock()

	if l.closed {
		return ErrLiveClosed
	}
	if l.frame != nil {
		return ErrFrameCaptured
	}

	frame, err := l.source.Grab(ctx)
	if err != nil {
		return err
	}

	l.frame = frame
	l.capturedAt = l.extractor.now()
	l.releaseCamera()

	return nil
}

// Retake discards the captured frame and reopens the camera. It works once.
func (l *LiveCapture) Retake(ctx context.Context) error {
	l.Lock()
	defer l.Unlock()

	if l.closed {
		return ErrLiveClosed
	}
	if l.frame == nil {
		return ErrNoFrame
	}
	if l.retakes >= MaxRetakes {
		return ErrRetakeExhausted
	}

	source, err := l.extractor.camera.Open(ctx, l.facing)
	if err != nil {
		return err
	}

	l.retakes++
	l.frame = nil
	l.source = source

	log.WithField("prefix", logPrefix).Debug("frame discarded for retake")
	return nil
}

// Confirm encodes the captured frame as JPEG and runs the quality gates
func (l *LiveCapture) Confirm() (*schema.CapturedAsset, error) {
	l.Lock()
	defer l.Unlock()

	if l.closed {
		return nil, ErrLiveClosed
	}
	if l.frame == nil {
		return nil, ErrNoFrame
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, l.frame, imaging.JPEG, imaging.JPEGQuality(l.extractor.quality)); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	width, height, reasons := gates(data)
	if len(reasons) > 0 {
		return nil, l.extractor.reject(reasons)
	}

	l.releaseCamera()
	l.closed = true

	return &schema.CapturedAsset{
		ImageBytes:    data,
		MimeType:      schema.MimeJPEG,
		CaptureMethod: schema.CaptureLive,
		Width:         width,
		Height:        height,
		SizeBytes:     len(data),
		CapturedAt:    l.capturedAt,
		Trust:         schema.TrustDevice,
	}, nil
}

// Close releases the camera if it is still held
func (l *LiveCapture) Close() {
	l.Lock()
	defer l.Unlock()

	l.releaseCamera()
	l.closed = true
}

func (l *LiveCapture) HasFrame() bool {
	l.Lock()
	defer l.Unlock()
	return l.frame != nil
}

func (l *LiveCapture) RetakesLeft() int {
	l.Lock()
	defer l.Unlock()
	return MaxRetakes - l.retakes
}

func (l *LiveCapture) Facing() camera.Facing {
	return l.facing
}
