package position

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

const logPrefix = "position"

// samplePayload is what a device publishes on the position topic
type samplePayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Error     string  `json:"error,omitempty"`
	Message   string  `json:"message,omitempty"`
}

const (
	modeOnce  = "once"
	modeWatch = "watch"
	modeStop  = "stop"
)

// controlPayload asks the device for one fix, a continuous stream or to stop
// streaming. A device that only honors its latest request always ends up
// with the request of the newest active watch.
type controlPayload struct {
	Mode         string `json:"mode"`
	HighAccuracy bool   `json:"high_accuracy"`
	MaximumAgeMs int64  `json:"maximum_age_ms"`
	TimeoutMs    int64  `json:"timeout_ms"`
}

var payloadErrorCodes = map[string]ErrorCode{
	"permission_denied":    PermissionDenied,
	"position_unavailable": PositionUnavailable,
	"timeout":              Timeout,
}

type subscriber struct {
	onSample func(schema.DeviceLocation)
	onError  func(*Error)
}

// bus is the transport independent part of a message bus position source.
// Incoming payloads are fanned out to subscribers in arrival order.
type bus struct {
	sync.Mutex

	publish     func([]byte) error
	last        *schema.DeviceLocation
	subscribers map[int]subscriber
	watches     map[int]Options
	nextID      int
	now         func() time.Time
}

func newBus(publish func([]byte) error) *bus {
	return &bus{
		publish:     publish,
		subscribers: map[int]subscriber{},
		watches:     map[int]Options{},
		now:         time.Now,
	}
}

func (b *bus) subscribe(s subscriber) int {
	b.Lock()
	defer b.Unlock()

	b.nextID++
	b.subscribers[b.nextID] = s
	return b.nextID
}

func (b *bus) unsubscribe(id int) {
	b.Lock()
	defer b.Unlock()
	delete(b.subscribers, id)
}

func (b *bus) snapshot() []subscriber {
	b.Lock()
	defer b.Unlock()

	subs := make([]subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// latestWatch returns the options of the newest active watch
func (b *bus) latestWatch() (Options, bool) {
	b.Lock()
	defer b.Unlock()

	id := 0
	for i := range b.watches {
		if i > id {
			id = i
		}
	}
	opts, ok := b.watches[id]
	return opts, ok
}

func (b *bus) request(mode string, opts Options) {
	if b.publish == nil {
		return
	}

	data, err := json.Marshal(controlPayload{
		Mode:         mode,
		HighAccuracy: opts.EnableHighAccuracy,
		MaximumAgeMs: opts.MaximumAge.Milliseconds(),
		TimeoutMs:    opts.Timeout.Milliseconds(),
	})
	if err != nil {
		return
	}

	if err := b.publish(data); err != nil {
		log.WithField("prefix", logPrefix).WithError(err).Warn("publish position request")
	}
}

// handle parses one payload from the device and dispatches it
func (b *bus) handle(data []byte) {
	var p samplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.WithField("prefix", logPrefix).WithError(err).Warn("malformed position payload")
		return
	}

	if p.Error != "" {
		code, ok := payloadErrorCodes[p.Error]
		if !ok {
			code = PositionUnavailable
		}
		e := &Error{Code: code, Message: p.Message}
		for _, s := range b.snapshot() {
			if s.onError != nil {
				s.onError(e)
			}
		}
		return
	}

	sample := schema.DeviceLocation{
		Location: schema.Location{
			Latitude:  p.Lat,
			Longitude: p.Lng,
		},
		AccuracyMeters: p.Accuracy,
	}
	if p.Timestamp > 0 {
		sample.Timestamp = time.UnixMilli(p.Timestamp)
	} else {
		sample.Timestamp = b.now()
	}

	if err := sample.Validate(); err != nil {
		log.WithFields(log.Fields{
			"prefix": logPrefix,
			"lat":    p.Lat,
			"lng":    p.Lng,
		}).WithError(err).Warn("drop invalid position sample")
		return
	}

	b.Lock()
	if b.last == nil || !sample.Timestamp.Before(b.last.Timestamp) {
		b.last = &sample
	}
	b.Unlock()

	for _, s := range b.snapshot() {
		if s.onSample != nil {
			s.onSample(sample)
		}
	}
}

func (b *bus) cached(maxAge time.Duration) (schema.DeviceLocation, bool) {
	b.Lock()
	defer b.Unlock()

	if b.last == nil {
		return schema.DeviceLocation{}, false
	}
	if b.now().Sub(b.last.Timestamp) > maxAge {
		return schema.DeviceLocation{}, false
	}
	return *b.last, true
}

// CurrentPosition returns the cached sample when it is recent enough,
// otherwise it asks the device for a fix and waits for the next sample.
func (b *bus) CurrentPosition(ctx context.Context, opts Options) (schema.DeviceLocation, error) {
	if sample, ok := b.cached(opts.MaximumAge); ok {
		return sample, nil
	}

	samples := make(chan schema.DeviceLocation, 1)
	errs := make(chan *Error, 1)
	id := b.subscribe(subscriber{
		onSample: func(l schema.DeviceLocation) {
			select {
			case samples <- l:
			default:
			}
		},
		onError: func(e *Error) {
			select {
			case errs <- e:
			default:
			}
		},
	})
	defer b.unsubscribe(id)

	b.request(modeOnce, opts)
	defer func() {
		if watch, ok := b.latestWatch(); ok {
			b.request(modeWatch, watch)
		}
	}()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case sample := <-samples:
		return sample, nil
	case e := <-errs:
		return schema.DeviceLocation{}, e
	case <-timeout:
		return schema.DeviceLocation{}, ErrTimeout
	case <-ctx.Done():
		return schema.DeviceLocation{}, AsError(ctx.Err())
	}
}

type busWatch struct {
	bus  *bus
	id   int
	once sync.Once
}

// Clear releases the subscription. The device is told to stop streaming when
// no other watch is left, otherwise it is handed the newest remaining watch.
func (w *busWatch) Clear() {
	w.once.Do(func() {
		b := w.bus
		b.unsubscribe(w.id)

		b.Lock()
		delete(b.watches, w.id)
		b.Unlock()

		if watch, ok := b.latestWatch(); ok {
			b.request(modeWatch, watch)
		} else {
			b.request(modeStop, Options{})
		}
	})
}

func (b *bus) Watch(opts Options, onSample func(schema.DeviceLocation), onError func(*Error)) (Watch, error) {
	id := b.subscribe(subscriber{
		onSample: onSample,
		onError:  onError,
	})

	b.Lock()
	b.watches[id] = opts
	b.Unlock()

	b.request(modeWatch, opts)

	return &busWatch{bus: b, id: id}, nil
}
