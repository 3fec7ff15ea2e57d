package streetview

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/geoquest-agent/schema"
	"github.com/bitmark-inc/geoquest-agent/store"
)

const (
	defaultURL = "https://maps.googleapis.com/maps/api/streetview/metadata"
	logPrefix  = "streetview"

	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
	statusNotFound    = "NOT_FOUND"
)

var (
	errEmptyKey = fmt.Errorf("empty api key")
)

// StatusError is returned when the metadata service answers with an error status
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("street view metadata status %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("street view metadata status %s", e.Status)
}

// Prober tells whether public street-level imagery exists near a point
type Prober interface {
	PanoramaExists(ctx context.Context, loc schema.Location, radiusMeters float64) (bool, error)
}

type prober struct {
	key        string
	url        string
	httpClient *http.Client
}

type metadataResponse struct {
	Status       string `json:"status"`
	PanoID       string `json:"pano_id"`
	ErrorMessage string `json:"error_message"`
}

func (p prober) PanoramaExists(ctx context.Context, loc schema.Location, radiusMeters float64) (bool, error) {
	if p.key == "" {
		return false, errEmptyKey
	}

	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
	q.Set("radius", strconv.Itoa(int(radiusMeters)))
	q.Set("source", "outdoor")
	q.Set("key", p.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}

	resp, err := p.httpClient.Do(req)
	if nil != err {
		return false, err
	}
	defer resp.Body.Close()

	d, err := ioutil.ReadAll(resp.Body)
	if nil != err {
		return false, err
	}

	if resp.StatusCode != http.StatusOK {
		return false, &StatusError{Status: resp.Status}
	}

	var r metadataResponse
	if err := json.Unmarshal(d, &r); nil != err {
		return false, err
	}

	switch r.Status {
	case statusOK:
		log.WithFields(log.Fields{
			"prefix":  logPrefix,
			"lat":     loc.Latitude,
			"lng":     loc.Longitude,
			"pano_id": r.PanoID,
		}).Debug("panorama found")
		return true, nil
	case statusZeroResults, statusNotFound:
		return false, nil
	default:
		return false, &StatusError{Status: r.Status, Message: r.ErrorMessage}
	}
}

// New - new street view metadata prober
func New(key string, url string, httpClient *http.Client) Prober {
	u := defaultURL
	if url != "" {
		u = url
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &prober{
		key:        key,
		url:        u,
		httpClient: httpClient,
	}
}

type cachedProber struct {
	prober Prober
	cache  store.Cache
	ttl    time.Duration
}

// NewCachedProber keeps probe answers in the shared cache. Only definite
// answers are cached; errors always go back to the service next time.
func NewCachedProber(p Prober, cache store.Cache, ttl time.Duration) Prober {
	return &cachedProber{
		prober: p,
		cache:  cache,
		ttl:    ttl,
	}
}

func (c *cachedProber) PanoramaExists(ctx context.Context, loc schema.Location, radiusMeters float64) (bool, error) {
	key := fmt.Sprintf("pano:%.5f:%.5f:%d", loc.Latitude, loc.Longitude, int(radiusMeters))

	var exists bool
	if hit, err := c.cache.Get(ctx, key, &exists); err != nil {
		log.WithField("prefix", logPrefix).Warnf("read probe cache with error: %s", err)
	} else if hit {
		return exists, nil
	}

	exists, err := c.prober.PanoramaExists(ctx, loc, radiusMeters)
	if err != nil {
		return false, err
	}

	if err := c.cache.Set(ctx, key, exists, c.ttl); err != nil {
		log.WithField("prefix", logPrefix).Warnf("write probe cache with error: %s", err)
	}
	return exists, nil
}
