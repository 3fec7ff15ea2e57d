package heic

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
)

const DefaultJPEGQuality = 90

// Transcoder converts HEIC/HEIF images to JPEG. Embedded metadata is not
// carried over.
type Transcoder interface {
	ToJPEG(data []byte) ([]byte, error)
}

type transcoder struct {
	quality int
}

func New(quality int) Transcoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &transcoder{quality: quality}
}

func (t *transcoder) ToJPEG(data []byte) ([]byte, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode heif: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
