package submission

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

const statusPendingReview = "pending_review"

type gpsResult struct {
	Verified       *bool    `json:"verified"`
	DistanceMeters *float64 `json:"distance_meters"`
	Reason         string   `json:"reason"`
}

type exifResult struct {
	Validated *bool  `json:"validated"`
	Reason    string `json:"reason"`
}

type qualityResult struct {
	Score      *float64 `json:"score"`
	IsBlurry   bool     `json:"is_blurry"`
	IsTooDark  bool     `json:"is_too_dark"`
	IsTooSmall bool     `json:"is_too_small"`
}

type facesResult struct {
	Detected *float64 `json:"detected"`
	Blurred  *float64 `json:"blurred"`
}

type verificationResult struct {
	GPS     *gpsResult     `json:"gps"`
	Exif    *exifResult    `json:"exif"`
	Quality *qualityResult `json:"quality"`
	Faces   *facesResult   `json:"faces"`
}

type acceptedBody struct {
	ID                 string              `json:"id"`
	Status             string              `json:"status"`
	QualityScore       *float64            `json:"quality_score"`
	ContentMatchScore  *float64            `json:"content_match_score"`
	FacesDetected      *float64            `json:"faces_detected"`
	FacesBlurred       *float64            `json:"faces_blurred"`
	VerificationResult *verificationResult `json:"verification_result"`
}

type rejectedBody struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	Details *struct {
		VerificationResult *verificationResult        `json:"verification_result"`
		AllErrors          []schema.VerificationError `json:"all_errors"`
	} `json:"details"`
}

func roundInt(f *float64) *int {
	if f == nil {
		return nil
	}
	v := int(math.Round(*f))
	return &v
}

func (r *verificationResult) fill(d *schema.VerificationDetail) {
	if r == nil {
		return
	}
	if r.GPS != nil {
		d.GPSVerified = r.GPS.Verified
		d.DistanceMeters = r.GPS.DistanceMeters
		d.GPSReason = r.GPS.Reason
	}
	if r.Exif != nil {
		d.ExifValidated = r.Exif.Validated
		d.ExifReason = r.Exif.Reason
	}
	if r.Quality != nil {
		if d.QualityScore == nil {
			d.QualityScore = roundInt(r.Quality.Score)
		}
		d.IsBlurry = r.Quality.IsBlurry
		d.IsTooDark = r.Quality.IsTooDark
		d.IsTooSmall = r.Quality.IsTooSmall
	}
	if r.Faces != nil {
		if d.FacesDetected == nil {
			d.FacesDetected = roundInt(r.Faces.Detected)
		}
		if d.FacesBlurred == nil {
			d.FacesBlurred = roundInt(r.Faces.Blurred)
		}
	}
}

// Outcome maps a verifier response into a terminal submission outcome
func (r *Response) Outcome(at time.Time) schema.SubmissionOutcome {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return r.accepted(at)
	}
	return r.rejected(at)
}

func (r *Response) accepted(at time.Time) schema.SubmissionOutcome {
	outcome := schema.SubmissionOutcome{
		Status:     schema.SubmissionSuccess,
		ReceivedAt: at,
	}

	var body acceptedBody
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return outcome
	}

	if body.Status == statusPendingReview {
		outcome.Status = schema.SubmissionPendingReview
	}

	detail := &schema.VerificationDetail{
		SubmissionID:      body.ID,
		QualityScore:      roundInt(body.QualityScore),
		ContentMatchScore: roundInt(body.ContentMatchScore),
		FacesDetected:     roundInt(body.FacesDetected),
		FacesBlurred:      roundInt(body.FacesBlurred),
	}
	body.VerificationResult.fill(detail)
	outcome.Detail = detail

	return outcome
}

func (r *Response) rejected(at time.Time) schema.SubmissionOutcome {
	outcome := schema.SubmissionOutcome{
		Status:     schema.SubmissionFailure,
		Code:       schema.CodeServerError,
		Message:    http.StatusText(r.StatusCode),
		ReceivedAt: at,
	}

	var body rejectedBody
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return outcome
	}

	if body.Code != "" {
		outcome.Code = body.Code
	}
	if body.Message != "" {
		outcome.Message = body.Message
	} else if len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil && s != "" {
			outcome.Message = s
		}
	}

	if body.Details != nil {
		detail := &schema.VerificationDetail{
			Errors: body.Details.AllErrors,
		}
		body.Details.VerificationResult.fill(detail)
		outcome.Detail = detail
	}

	return outcome
}
