package metadata

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

const logPrefix = "metadata"

var ErrNoMetadata = fmt.Errorf("no embedded metadata")

var (
	rawExifHeader = []byte("Exif\x00\x00")
	tiffLEHeader  = []byte("II*\x00")
	tiffBEHeader  = []byte("MM\x00*")
	pngExifChunk  = []byte("eXIf")
)

// vendor aliases found in XMP packets, standard exif namespace first
var (
	xmpLatitudeKeys  = []string{"exif:GPSLatitude", "drone-dji:GpsLatitude", "Camera:GPSLatitude"}
	xmpLongitudeKeys = []string{"exif:GPSLongitude", "drone-dji:GpsLongitude", "Camera:GPSLongitude"}
)

// Parser reads embedded metadata out of an encoded image
type Parser interface {
	Parse(data []byte, mimeType string) (*schema.ImageMetadata, error)
}

type parser struct{}

func New() Parser {
	return &parser{}
}

// Parse reads GPS, capture time and camera model. The standard GPS tags are
// preferred and the XMP vendor aliases are used when they are missing.
func (p *parser) Parse(data []byte, mimeType string) (*schema.ImageMetadata, error) {
	var meta *schema.ImageMetadata

	raw, err := exifBlock(data, mimeType)
	if err == nil {
		meta, err = decodeExif(raw)
	}
	if err != nil {
		log.WithField("prefix", logPrefix).Debugf("read exif with error: %s", err)
	}

	if meta == nil || !meta.HasGPS() {
		if lat, lng, ok := xmpLatLong(data); ok {
			if meta == nil {
				meta = &schema.ImageMetadata{}
			}
			meta.GPSLatitude = &lat
			meta.GPSLongitude = &lng
		}
	}

	if meta == nil {
		return nil, ErrNoMetadata
	}
	return meta, nil
}

// exifBlock returns data that exif.Decode accepts: a JPEG stream, a TIFF
// header or a raw "Exif\0\0" block
func exifBlock(data []byte, mimeType string) ([]byte, error) {
	switch mimeType {
	case schema.MimeHEIC, schema.MimeHEIF:
		block, err := goheif.ExtractExif(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return trimToExif(block)
	case schema.MimePNG:
		i := bytes.Index(data, pngExifChunk)
		if i < 0 {
			return nil, ErrNoMetadata
		}
		return trimToExif(data[i+len(pngExifChunk):])
	default:
		return data, nil
	}
}

func trimToExif(block []byte) ([]byte, error) {
	if i := bytes.Index(block, rawExifHeader); i >= 0 {
		return block[i:], nil
	}
	for _, h := range [][]byte{tiffLEHeader, tiffBEHeader} {
		if i := bytes.Index(block, h); i >= 0 {
			return block[i:], nil
		}
	}
	return nil, ErrNoMetadata
}

func decodeExif(raw []byte) (*schema.ImageMetadata, error) {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	meta := &schema.ImageMetadata{}

	if lat, lng, err := x.LatLong(); err == nil && validCoordinate(lat, lng) {
		meta.GPSLatitude = &lat
		meta.GPSLongitude = &lng
	}

	if t, err := x.DateTime(); err == nil {
		meta.CapturedAt = &t
	}

	for _, field := range []exif.FieldName{exif.Model, exif.LensModel} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		if s, err := tag.StringVal(); err == nil && strings.TrimSpace(s) != "" {
			meta.CameraModel = strings.TrimSpace(s)
			break
		}
	}

	return meta, nil
}

func xmpLatLong(data []byte) (float64, float64, bool) {
	lat, ok := xmpCoordinate(data, xmpLatitudeKeys)
	if !ok {
		return 0, 0, false
	}
	lng, ok := xmpCoordinate(data, xmpLongitudeKeys)
	if !ok {
		return 0, 0, false
	}
	if !validCoordinate(lat, lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

// validCoordinate drops zero denominators and "nan" strings along with out
// of range values
func validCoordinate(lat, lng float64) bool {
	return schema.Location{Latitude: lat, Longitude: lng}.Validate() == nil
}

func xmpCoordinate(data []byte, keys []string) (float64, bool) {
	for _, key := range keys {
		k := regexp.QuoteMeta(key)
		re := regexp.MustCompile(k + `\s*=\s*"([^"]+)"|<` + k + `>([^<]+)</` + k + `>`)
		m := re.FindSubmatch(data)
		if m == nil {
			continue
		}

		value := string(m[1])
		if value == "" {
			value = string(m[2])
		}
		if v, err := parseXMPCoordinate(value); err == nil {
			return v, true
		}
	}
	return 0, false
}

// parseXMPCoordinate reads either a signed decimal ("+37.77") or the XMP
// "DDD,MM.mmk" / "DDD,MM,SSk" form
func parseXMPCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}

	ref := s[len(s)-1]
	switch ref {
	case 'N', 'S', 'E', 'W':
		s = s[:len(s)-1]
	default:
		return strconv.ParseFloat(s, 64)
	}

	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}

	var values [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, err
		}
		values[i] = v
	}

	v := values[0] + values[1]/60 + values[2]/3600
	if ref == 'S' || ref == 'W' {
		v = -v
	}
	return v, nil
}
