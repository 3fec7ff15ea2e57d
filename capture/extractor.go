package capture

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"

	"github.com/bitmark-inc/geoquest-agent/external/camera"
	"github.com/bitmark-inc/geoquest-agent/external/heic"
	"github.com/bitmark-inc/geoquest-agent/external/metadata"
	"github.com/bitmark-inc/geoquest-agent/geo"
	"github.com/bitmark-inc/geoquest-agent/schema"
)

const (
	logPrefix = "capture"

	DefaultJPEGQuality = 90
)

// Extractor turns live frames and uploaded files into validated assets
type Extractor struct {
	camera     camera.Camera
	parser     metadata.Parser
	transcoder heic.Transcoder
	quality    int
	scope      tally.Scope
	now        func() time.Time
}

func NewExtractor(cam camera.Camera, parser metadata.Parser, transcoder heic.Transcoder, quality int, scope tally.Scope) *Extractor {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if scope == nil {
		scope = tally.NoopScope
	}

	return &Extractor{
		camera:     cam,
		parser:     parser,
		transcoder: transcoder,
		quality:    quality,
		scope:      scope.SubScope("capture"),
		now:        time.Now,
	}
}

// Upload is a file selected by the participant
type Upload struct {
	Data         []byte
	Filename     string
	DeclaredType string
	// Fence, when known, is used to report how far the embedded location is
	Fence *schema.Geofence
}

func isHEIF(m string) bool {
	switch m {
	case schema.MimeHEIC, schema.MimeHEIF, "image/heic-sequence", "image/heif-sequence":
		return true
	}
	return false
}

func isSupported(m string) bool {
	return m == schema.MimeJPEG || m == schema.MimePNG || isHEIF(m)
}

func baseType(m string) string {
	if i := strings.Index(m, ";"); i >= 0 {
		m = m[:i]
	}
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "image/jpg" || m == "image/pjpeg" {
		return schema.MimeJPEG
	}
	return m
}

// declared reports a declared type only when it says something useful
func declared(m string) (string, bool) {
	m = baseType(m)
	if m == "" || m == "application/octet-stream" {
		return "", false
	}
	return m, true
}

func (e *Extractor) reject(reasons []Rejection) error {
	for _, r := range reasons {
		e.scope.Tagged(map[string]string{"code": r.Code}).Counter("rejections").Inc(1)
	}
	log.WithFields(log.Fields{
		"prefix":  logPrefix,
		"reasons": reasons,
	}).Info("image rejected")
	return &RejectionError{Reasons: reasons}
}

// gates checks the final encoded image and returns its dimensions
func gates(data []byte) (int, int, []Rejection) {
	var reasons []Rejection

	if len(data) > schema.MaxImageSizeBytes {
		reasons = append(reasons, newRejection(RejectTooLarge))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, append(reasons, newRejection(RejectCorrupt))
	}

	if cfg.Width < schema.MinImageWidth || cfg.Height < schema.MinImageHeight {
		reasons = append(reasons, newRejection(RejectTooSmall))
	}

	return cfg.Width, cfg.Height, reasons
}

// FromUpload validates a selected file. HEIC/HEIF input is converted to JPEG
// after its metadata is read, since conversion drops embedded tags.
func (e *Extractor) FromUpload(u Upload) (*schema.CapturedAsset, error) {
	sniffed := baseType(mimetype.Detect(u.Data).String())
	declaredType, hasDeclared := declared(u.DeclaredType)

	ext := strings.ToLower(filepath.Ext(u.Filename))
	heif := isHEIF(declaredType) || ext == ".heic" || ext == ".heif" || isHEIF(sniffed)

	mimeType := sniffed
	switch {
	case heif:
		mimeType = schema.MimeHEIC
	case hasDeclared && !isSupported(declaredType):
		mimeType = declaredType
	}

	if !isSupported(mimeType) {
		reasons := []Rejection{newRejection(RejectUnsupportedFormat)}
		if len(u.Data) > schema.MaxImageSizeBytes {
			reasons = append(reasons, newRejection(RejectTooLarge))
		}
		return nil, e.reject(reasons)
	}

	meta, err := e.parser.Parse(u.Data, mimeType)
	if err != nil {
		log.WithFields(log.Fields{
			"prefix":   logPrefix,
			"filename": u.Filename,
		}).Debugf("read image metadata with error: %s", err)
		meta = nil
	}

	data := u.Data
	if heif {
		data, err = e.transcoder.ToJPEG(u.Data)
		if err != nil {
			log.WithField("prefix", logPrefix).WithError(err).Warn("convert heif to jpeg")
			return nil, e.reject([]Rejection{newRejection(RejectConversionFailed)})
		}
		mimeType = schema.MimeJPEG
	}

	width, height, reasons := gates(data)
	if len(reasons) > 0 {
		return nil, e.reject(reasons)
	}

	asset := &schema.CapturedAsset{
		ImageBytes:    data,
		MimeType:      mimeType,
		CaptureMethod: schema.CaptureUpload,
		Width:         width,
		Height:        height,
		SizeBytes:     len(data),
		Filename:      u.Filename,
		CapturedAt:    e.now(),
		Metadata:      meta,
		Trust:         schema.TrustUnverified,
	}

	if meta != nil && meta.HasGPS() {
		loc := schema.Location{Latitude: *meta.GPSLatitude, Longitude: *meta.GPSLongitude}
		if loc.Validate() == nil {
			asset.ExifLocation = &schema.EmbeddedLocation{Location: loc}
			asset.Trust = schema.TrustEmbedded

			if u.Fence != nil {
				d := geo.DistanceBetween(loc, u.Fence.Center)
				asset.ExifDistanceMeters = &d
			}
		} else {
			meta.GPSLatitude, meta.GPSLongitude = nil, nil
		}
	}

	if asset.ExifLocation == nil {
		asset.Warnings = append(asset.Warnings, WarningNoEmbeddedLocation)
	}

	log.WithFields(log.Fields{
		"prefix": logPrefix,
		"mime":   asset.MimeType,
		"width":  asset.Width,
		"height": asset.Height,
		"size":   asset.SizeBytes,
		"trust":  asset.Trust,
	}).Info("upload accepted")

	return asset, nil
}
