package submission

import (
	"context"
	"errors"
	"math"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

var request = Request{
	QuestID:  "2b1c3f5e-0d4a-4b7e-9a4e-6c1d2e3f4a5b",
	Image:    []byte("\xff\xd8\xff\xe0jpeg"),
	MimeType: schema.MimeJPEG,
	Location: schema.DeviceLocation{
		Location:       schema.Location{Latitude: 40.7128, Longitude: -74.006},
		AccuracyMeters: 15,
	},
	CapturedAt:    time.Date(2024, 5, 1, 10, 20, 30, 123000000, time.UTC),
	CaptureMethod: schema.CaptureLive,
}

func TestSubmitMultipartForm(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, request.QuestID, r.FormValue("quest_id"))
		assert.JSONEq(t, `{"lat":40.7128,"lng":-74.006,"accuracy":15}`, r.FormValue("location"))
		assert.Equal(t, "2024-05-01T10:20:30.123Z", r.FormValue("captured_at"))
		assert.Equal(t, "live", r.FormValue("capture_method"))

		f, header, err := r.FormFile("image")
		assert.NoError(t, err)
		assert.Equal(t, "photo.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		data, _ := ioutil.ReadAll(f)
		assert.Equal(t, request.Image, data)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc","status":"verified"}`))
	}))
	defer ts.Close()

	resp, err := New(ts.URL, "secret", ts.Client()).Submit(context.Background(), request)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"id":"abc","status":"verified"}`, string(resp.Body))
}

func TestSubmitWithoutAnswer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := New(url, "", nil).Submit(context.Background(), request)
	assert.Error(t, err)
}

func TestSubmitUnencodableLocation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("nothing should be sent")
	}))
	defer ts.Close()

	r := request
	r.Location.Latitude = math.NaN()

	_, err := New(ts.URL, "", ts.Client()).Submit(context.Background(), r)
	assert.True(t, errors.Is(err, ErrEncodeRequest), err)
}

func TestOutcomeVerified(t *testing.T) {
	at := time.Now()
	resp := &Response{StatusCode: http.StatusCreated, Body: []byte(`{
		"id": "abc",
		"status": "verified",
		"quality_score": 88,
		"content_match_score": 91,
		"faces_detected": 2,
		"faces_blurred": 2,
		"verification_result": {
			"gps": {"verified": true, "distance_meters": 12.5, "reason": "Within quest radius"},
			"exif": {"validated": null, "reason": "No GPS data in EXIF (warning only)"}
		}
	}`)}

	outcome := resp.Outcome(at)
	assert.Equal(t, schema.SubmissionSuccess, outcome.Status)
	assert.Equal(t, at, outcome.ReceivedAt)
	assert.Equal(t, "abc", outcome.Detail.SubmissionID)
	assert.Equal(t, 88, *outcome.Detail.QualityScore)
	assert.Equal(t, 91, *outcome.Detail.ContentMatchScore)
	assert.Equal(t, 2, *outcome.Detail.FacesBlurred)
	assert.True(t, *outcome.Detail.GPSVerified)
	assert.Equal(t, 12.5, *outcome.Detail.DistanceMeters)
	assert.Nil(t, outcome.Detail.ExifValidated)
}

func TestOutcomePendingReview(t *testing.T) {
	resp := &Response{StatusCode: http.StatusOK, Body: []byte(`{"status":"pending_review"}`)}
	assert.Equal(t, schema.SubmissionPendingReview, resp.Outcome(time.Now()).Status)
}

func TestOutcomeSuccessWithoutBody(t *testing.T) {
	resp := &Response{StatusCode: http.StatusNoContent}
	outcome := resp.Outcome(time.Now())
	assert.Equal(t, schema.SubmissionSuccess, outcome.Status)
	assert.Nil(t, outcome.Detail)
}

func TestOutcomeVerificationFailed(t *testing.T) {
	resp := &Response{StatusCode: http.StatusBadRequest, Body: []byte(`{
		"error": "verification_failed",
		"code": "QUALITY_BLUR",
		"message": "Image is too blurry. Please take a clearer photo.",
		"details": {
			"verification_result": {
				"gps": {"verified": false, "distance_meters": 180.2, "reason": "180m away from quest location"},
				"quality": {"score": 35, "is_blurry": true, "is_too_dark": false, "is_too_small": false},
				"faces": {"detected": 1, "blurred": 1}
			},
			"all_errors": [
				{"code": "QUALITY_BLUR", "message": "Image is too blurry. Please take a clearer photo."},
				{"code": "GPS_OUT_OF_RANGE", "message": "180m away from quest location"}
			]
		}
	}`)}

	outcome := resp.Outcome(time.Now())
	assert.Equal(t, schema.SubmissionFailure, outcome.Status)
	assert.Equal(t, schema.CodeQualityBlur, outcome.Code)
	assert.Equal(t, "Image is too blurry. Please take a clearer photo.", outcome.Message)
	assert.False(t, *outcome.Detail.GPSVerified)
	assert.Equal(t, 180.2, *outcome.Detail.DistanceMeters)
	assert.Equal(t, 35, *outcome.Detail.QualityScore)
	assert.True(t, outcome.Detail.IsBlurry)
	assert.Equal(t, 1, *outcome.Detail.FacesDetected)
	assert.Len(t, outcome.Detail.Errors, 2)
	assert.Equal(t, schema.CodeGPSOutOfRange, outcome.Detail.Errors[1].Code)
}

func TestOutcomeHTTPError(t *testing.T) {
	resp := &Response{StatusCode: http.StatusNotFound, Body: []byte(`{"detail":"Quest not found"}`)}
	outcome := resp.Outcome(time.Now())
	assert.Equal(t, schema.SubmissionFailure, outcome.Status)
	assert.Equal(t, schema.CodeServerError, outcome.Code)
	assert.Equal(t, "Quest not found", outcome.Message)
	assert.Nil(t, outcome.Detail)

	resp = &Response{StatusCode: http.StatusBadGateway, Body: []byte(`<html>bad gateway</html>`)}
	outcome = resp.Outcome(time.Now())
	assert.Equal(t, schema.CodeServerError, outcome.Code)
	assert.Equal(t, "Bad Gateway", outcome.Message)
}
