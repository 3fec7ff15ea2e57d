package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newSnapshotServer(t *testing.T, w, h int) *httptest.Server {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	assert.NoError(t, jpeg.Encode(&buf, img, nil))

	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "image/jpeg")
		_, _ = rw.Write(buf.Bytes())
	}))
}

func TestOpenPrefersRear(t *testing.T) {
	ts := newSnapshotServer(t, 800, 600)
	defer ts.Close()

	c := NewSnapshotCamera(ts.URL, ts.URL, ts.Client())
	src, err := c.Open(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, FacingRear, src.Facing())
	src.Release()

	src, err = c.Open(context.Background(), FacingFront)
	assert.NoError(t, err)
	assert.Equal(t, FacingFront, src.Facing())
	src.Release()
}

func TestOpenFallsBackToAvailableFacing(t *testing.T) {
	ts := newSnapshotServer(t, 800, 600)
	defer ts.Close()

	c := NewSnapshotCamera("", ts.URL, ts.Client())
	src, err := c.Open(context.Background(), FacingRear)
	assert.NoError(t, err)
	assert.Equal(t, FacingFront, src.Facing())
	src.Release()
}

func TestOpenWithoutCamera(t *testing.T) {
	c := NewSnapshotCamera("", "", nil)
	_, err := c.Open(context.Background(), FacingRear)
	assert.Equal(t, ErrNoCamera, err)
}

func TestCameraIsExclusive(t *testing.T) {
	ts := newSnapshotServer(t, 800, 600)
	defer ts.Close()

	c := NewSnapshotCamera(ts.URL, "", ts.Client())
	src, err := c.Open(context.Background(), FacingRear)
	assert.NoError(t, err)

	_, err = c.Open(context.Background(), FacingRear)
	assert.Equal(t, ErrCameraBusy, err)

	src.Release()
	src.Release()

	again, err := c.Open(context.Background(), FacingRear)
	assert.NoError(t, err)
	again.Release()
}

func TestGrab(t *testing.T) {
	ts := newSnapshotServer(t, 800, 600)
	defer ts.Close()

	c := NewSnapshotCamera(ts.URL, "", ts.Client())
	src, err := c.Open(context.Background(), FacingRear)
	assert.NoError(t, err)

	img, err := src.Grab(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())

	src.Release()
	_, err = src.Grab(context.Background())
	assert.Equal(t, ErrCameraReleased, err)
}
