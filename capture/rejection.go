package capture

import (
	"strings"
)

// rejection codes, each gate reports its own
const (
	RejectTooLarge          = "IMAGE_TOO_LARGE"
	RejectTooSmall          = "IMAGE_TOO_SMALL"
	RejectUnsupportedFormat = "UNSUPPORTED_FORMAT"
	RejectCorrupt           = "CORRUPT_IMAGE"
	RejectConversionFailed  = "CONVERSION_FAILED"

	WarningNoEmbeddedLocation = "NO_EMBEDDED_LOCATION"
)

var rejectionMessages = map[string]string{
	RejectTooLarge:          "Image too large. Maximum size: 10MB.",
	RejectTooSmall:          "Image is too small. Minimum size: 640x480 pixels.",
	RejectUnsupportedFormat: "Unsupported image type. Please choose a JPEG, PNG or HEIC photo.",
	RejectCorrupt:           "The image could not be read. Please choose another photo.",
	RejectConversionFailed:  "The HEIC photo could not be converted. Please choose another photo.",
}

type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newRejection(code string) Rejection {
	return Rejection{
		Code:    code,
		Message: rejectionMessages[code],
	}
}

// RejectionError lists every quality gate an image failed
type RejectionError struct {
	Reasons []Rejection
}

func (e *RejectionError) Error() string {
	messages := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		messages = append(messages, r.Message)
	}
	return strings.Join(messages, " ")
}

// Has reports whether the image was rejected for code
func (e *RejectionError) Has(code string) bool {
	for _, r := range e.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}
