package metadata

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func encodeIFD(entries []ifdEntry, start uint32) []byte {
	var head, data bytes.Buffer
	dataOffset := start + 2 + 12*uint32(len(entries)) + 4

	_ = binary.Write(&head, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&head, binary.LittleEndian, e.tag)
		_ = binary.Write(&head, binary.LittleEndian, e.typ)
		_ = binary.Write(&head, binary.LittleEndian, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			head.Write(v)
			continue
		}
		head.Write(le32(dataOffset + uint32(data.Len())))
		data.Write(e.data)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	head.Write(le32(0))
	head.Write(data.Bytes())
	return head.Bytes()
}

func rationals(v float64) []byte {
	v = math.Abs(v)
	deg := math.Floor(v)
	minutes := math.Floor((v - deg) * 60)
	seconds := ((v-deg)*60 - minutes) * 60

	var b bytes.Buffer
	for _, r := range [][2]uint32{
		{uint32(deg), 1},
		{uint32(minutes), 1},
		{uint32(math.Round(seconds * 1000)), 1000},
	} {
		b.Write(le32(r[0]))
		b.Write(le32(r[1]))
	}
	return b.Bytes()
}

func ref(v float64, pos, neg byte) []byte {
	if v < 0 {
		return []byte{neg, 0}
	}
	return []byte{pos, 0}
}

// buildTIFF returns a little endian TIFF block with a camera model, a date
// time and a GPS IFD
func buildTIFF(model string, lat, lng float64) []byte {
	gps := []ifdEntry{
		{1, 2, 2, ref(lat, 'N', 'S')},
		{2, 5, 3, rationals(lat)},
		{3, 2, 2, ref(lng, 'E', 'W')},
		{4, 5, 3, rationals(lng)},
	}
	ifd0 := []ifdEntry{
		{0x0110, 2, uint32(len(model) + 1), append([]byte(model), 0)},
		{0x0132, 2, 20, append([]byte("2024:05:01 10:20:30"), 0)},
		{0x8825, 4, 1, le32(0)},
	}

	gpsOffset := 8 + uint32(len(encodeIFD(ifd0, 8)))
	ifd0[2].data = le32(gpsOffset)

	buf := []byte{'I', 'I', 0x2A, 0x00}
	buf = append(buf, le32(8)...)
	buf = append(buf, encodeIFD(ifd0, 8)...)
	buf = append(buf, encodeIFD(gps, gpsOffset)...)
	return buf
}

func plainJPEG(t *testing.T) []byte {
	var buf bytes.Buffer
	assert.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil))
	return buf.Bytes()
}

// jpegWithExif splices an APP1 exif segment right after SOI
func jpegWithExif(t *testing.T, tiff []byte) []byte {
	body := plainJPEG(t)
	payload := append([]byte("Exif\x00\x00"), tiff...)

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(payload)+2))
	buf.Write(payload)
	buf.Write(body[2:])
	return buf.Bytes()
}

func TestParseJPEGExif(t *testing.T) {
	data := jpegWithExif(t, buildTIFF("Pixel 8", 37.77, -122.41))

	meta, err := New().Parse(data, schema.MimeJPEG)
	assert.NoError(t, err)
	assert.True(t, meta.HasGPS())
	assert.InDelta(t, 37.77, *meta.GPSLatitude, 1e-5)
	assert.InDelta(t, -122.41, *meta.GPSLongitude, 1e-5)
	assert.Equal(t, "Pixel 8", meta.CameraModel)
	if assert.NotNil(t, meta.CapturedAt) {
		assert.Equal(t, 2024, meta.CapturedAt.Year())
		assert.Equal(t, time.May, meta.CapturedAt.Month())
		assert.Equal(t, 20, meta.CapturedAt.Minute())
	}
}

// park.heic is an iPhone 7 photo with its exif stored as a HEIF item
func TestParseHEICExif(t *testing.T) {
	data, err := os.ReadFile("testdata/park.heic")
	assert.NoError(t, err)

	meta, err := New().Parse(data, schema.MimeHEIC)
	assert.NoError(t, err)
	if assert.True(t, meta.HasGPS()) {
		assert.InDelta(t, 47.635833, *meta.GPSLatitude, 1e-5)
		assert.InDelta(t, -122.360489, *meta.GPSLongitude, 1e-5)
	}
	assert.Equal(t, "iPhone 7", meta.CameraModel)
	if assert.NotNil(t, meta.CapturedAt) {
		assert.Equal(t, 2018, meta.CapturedAt.Year())
		assert.Equal(t, time.April, meta.CapturedAt.Month())
	}
}

func TestParseSouthernHemisphere(t *testing.T) {
	data := jpegWithExif(t, buildTIFF("X", -33.8568, 151.2153))

	meta, err := New().Parse(data, schema.MimeJPEG)
	assert.NoError(t, err)
	assert.InDelta(t, -33.8568, *meta.GPSLatitude, 1e-5)
	assert.InDelta(t, 151.2153, *meta.GPSLongitude, 1e-5)
}

func TestParseNoMetadata(t *testing.T) {
	_, err := New().Parse(plainJPEG(t), schema.MimeJPEG)
	assert.Equal(t, ErrNoMetadata, err)

	_, err = New().Parse([]byte("garbage"), schema.MimePNG)
	assert.Equal(t, ErrNoMetadata, err)
}

func TestParseXMPVendorAlias(t *testing.T) {
	xmp := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:Description ` +
		`drone-dji:GpsLatitude="+22.543100" drone-dji:GpsLongitude="+113.944700" ` +
		`drone-dji:AbsoluteAltitude="+90.00"/></x:xmpmeta>`
	data := append(plainJPEG(t), []byte(xmp)...)

	meta, err := New().Parse(data, schema.MimeJPEG)
	assert.NoError(t, err)
	assert.InDelta(t, 22.5431, *meta.GPSLatitude, 1e-9)
	assert.InDelta(t, 113.9447, *meta.GPSLongitude, 1e-9)
	assert.Nil(t, meta.CapturedAt)
}

func TestParseXMPExifNamespace(t *testing.T) {
	xmp := `<rdf:Description><exif:GPSLatitude>37,46.2N</exif:GPSLatitude>` +
		`<exif:GPSLongitude>122,24.6W</exif:GPSLongitude></rdf:Description>`
	data := append(plainJPEG(t), []byte(xmp)...)

	meta, err := New().Parse(data, schema.MimeJPEG)
	assert.NoError(t, err)
	assert.InDelta(t, 37.77, *meta.GPSLatitude, 1e-9)
	assert.InDelta(t, -122.41, *meta.GPSLongitude, 1e-9)
}

func TestParseXMPNotANumber(t *testing.T) {
	xmp := `<rdf:Description exif:GPSLatitude="nan" exif:GPSLongitude="+Inf"/>`
	data := append(plainJPEG(t), []byte(xmp)...)

	_, err := New().Parse(data, schema.MimeJPEG)
	assert.Equal(t, ErrNoMetadata, err)
}

func TestParseXMPCoordinate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want float64
		err  bool
	}{
		{in: "+37.77", want: 37.77},
		{in: "-122.41", want: -122.41},
		{in: "37,46.2N", want: 37.77},
		{in: "33,51,24.48S", want: -33.8568},
		{in: "", err: true},
		{in: "37N", err: true},
		{in: "abc", err: true},
	} {
		v, err := parseXMPCoordinate(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, v, 1e-6, tc.in)
	}
}

func TestTrimToExif(t *testing.T) {
	tiff := buildTIFF("X", 1, 1)

	block, err := trimToExif(append([]byte{0, 0, 0, 6}, append([]byte("Exif\x00\x00"), tiff...)...))
	assert.NoError(t, err)
	assert.Equal(t, []byte("Exif\x00\x00"), block[:6])

	block, err = trimToExif(append([]byte{0, 0}, tiff...))
	assert.NoError(t, err)
	assert.Equal(t, tiff, block)

	_, err = trimToExif([]byte("nothing here"))
	assert.Equal(t, ErrNoMetadata, err)
}
