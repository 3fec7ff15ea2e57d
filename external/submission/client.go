package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

const (
	logPrefix = "submission-client"

	// captured_at is sent the way browsers serialize dates
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	defaultFilename = "photo.jpg"
)

// ErrEncodeRequest means the request could not be built locally, nothing was sent
var ErrEncodeRequest = fmt.Errorf("cannot encode submission")

// Request is one photo submission to the remote verifier
type Request struct {
	QuestID       string
	Image         []byte
	MimeType      string
	Filename      string
	Location      schema.DeviceLocation
	CapturedAt    time.Time
	CaptureMethod schema.CaptureMethod
}

// Response is the raw answer of the remote verifier
type Response struct {
	StatusCode int
	Body       []byte
}

// Submitter sends photos to the remote verification endpoint
type Submitter interface {
	Submit(ctx context.Context, req Request) (*Response, error)
}

type wireLocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

type client struct {
	url        string
	token      string
	httpClient *http.Client
}

// New returns a Submitter posting multipart forms to url
func New(url, token string, httpClient *http.Client) Submitter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &client{
		url:        url,
		token:      token,
		httpClient: httpClient,
	}
}

func encodeForm(r Request) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	filename := r.Filename
	if filename == "" {
		filename = defaultFilename
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	h.Set("Content-Type", r.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(r.Image); err != nil {
		return nil, "", err
	}

	location, err := json.Marshal(wireLocation{
		Lat:      r.Location.Latitude,
		Lng:      r.Location.Longitude,
		Accuracy: r.Location.AccuracyMeters,
	})
	if err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"quest_id", r.QuestID},
		{"location", string(location)},
		{"captured_at", r.CapturedAt.UTC().Format(timestampLayout)},
		{"capture_method", string(r.CaptureMethod)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// Submit posts the photo. Any answer from the server, including a non 2xx
// one, is a Response. An error means no answer was received.
func (c *client) Submit(ctx context.Context, r Request) (*Response, error) {
	body, contentType, err := encodeForm(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEncodeRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.WithFields(log.Fields{
		"prefix":         logPrefix,
		"quest_id":       r.QuestID,
		"capture_method": r.CaptureMethod,
		"size":           len(r.Image),
	}).Info("submit photo")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}
