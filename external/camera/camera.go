package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

const logPrefix = "camera"

type Facing string

const (
	FacingRear  Facing = "rear"
	FacingFront Facing = "front"
)

var (
	ErrCameraBusy     = fmt.Errorf("camera is held by another capture")
	ErrNoCamera       = fmt.Errorf("no camera available")
	ErrCameraReleased = fmt.Errorf("camera has been released")
)

// FrameSource is an opened camera. Only one may be open at a time.
type FrameSource interface {
	Facing() Facing
	Grab(ctx context.Context) (image.Image, error)
	// Release stops the camera. It is safe to call more than once.
	Release()
}

// Camera opens frame sources
type Camera interface {
	Open(ctx context.Context, facing Facing) (FrameSource, error)
}

// snapshotCamera reads still frames from HTTP snapshot endpoints, one per
// facing direction
type snapshotCamera struct {
	sync.Mutex

	urls       map[Facing]string
	httpClient *http.Client
	held       bool
}

// NewSnapshotCamera returns a camera backed by snapshot URLs. Either URL may
// be empty when the device has no camera facing that way.
func NewSnapshotCamera(rearURL, frontURL string, httpClient *http.Client) Camera {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	urls := map[Facing]string{}
	if rearURL != "" {
		urls[FacingRear] = rearURL
	}
	if frontURL != "" {
		urls[FacingFront] = frontURL
	}

	return &snapshotCamera{
		urls:       urls,
		httpClient: httpClient,
	}
}

// Open prefers the requested facing and falls back to the other one. An
// empty facing means rear.
func (c *snapshotCamera) Open(ctx context.Context, facing Facing) (FrameSource, error) {
	order := []Facing{FacingRear, FacingFront}
	if facing == FacingFront {
		order = []Facing{FacingFront, FacingRear}
	}

	c.Lock()
	defer c.Unlock()

	if c.held {
		return nil, ErrCameraBusy
	}

	for _, f := range order {
		if u, ok := c.urls[f]; ok {
			c.held = true
			log.WithFields(log.Fields{
				"prefix": logPrefix,
				"facing": f,
			}).Debug("camera opened")
			return &snapshotSource{camera: c, facing: f, url: u}, nil
		}
	}

	return nil, ErrNoCamera
}

func (c *snapshotCamera) release() {
	c.Lock()
	defer c.Unlock()
	c.held = false
}

type snapshotSource struct {
	sync.Mutex

	camera   *snapshotCamera
	facing   Facing
	url      string
	released bool
}

func (s *snapshotSource) Facing() Facing {
	return s.facing
}

func (s *snapshotSource) Grab(ctx context.Context) (image.Image, error) {
	s.Lock()
	released := s.released
	s.Unlock()
	if released {
		return nil, ErrCameraReleased
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.camera.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request failed: %s", resp.Status)
	}

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func (s *snapshotSource) Release() {
	s.Lock()
	defer s.Unlock()

	if s.released {
		return
	}
	s.released = true
	s.camera.release()

	log.WithFields(log.Fields{
		"prefix": logPrefix,
		"facing": s.facing,
	}).Debug("camera released")
}
