package heic

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQuality(t *testing.T) {
	assert.Equal(t, DefaultJPEGQuality, New(0).(*transcoder).quality)
	assert.Equal(t, DefaultJPEGQuality, New(101).(*transcoder).quality)
	assert.Equal(t, 75, New(75).(*transcoder).quality)
}

func TestToJPEGRejectsNonHEIF(t *testing.T) {
	_, err := New(90).ToJPEG([]byte("\xff\xd8\xff\xe0 not a heif container"))
	assert.Error(t, err)
}

func TestToJPEGCamel(t *testing.T) {
	data, err := os.ReadFile("testdata/camel.heic")
	assert.NoError(t, err)

	out, err := New(80).ToJPEG(data)
	assert.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	assert.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1596, cfg.Width)
	assert.Equal(t, 1064, cfg.Height)
}
