package geofence

import (
	"context"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"

	"github.com/bitmark-inc/geoquest-agent/external/position"
	"github.com/bitmark-inc/geoquest-agent/geo"
	"github.com/bitmark-inc/geoquest-agent/schema"
)

const (
	logPrefix = "geofence"

	// WeakSignalAccuracy is the accuracy from which a fix cannot certify presence
	WeakSignalAccuracy = 100.0

	coordinateEpsilon = 1e-6
	accuracyEpsilon   = 0.5
)

var (
	// InitialFixOptions asks for a quick first fix
	InitialFixOptions = position.Options{
		EnableHighAccuracy: false,
		Timeout:            30 * time.Second,
		MaximumAge:         60 * time.Second,
	}

	// WatchOptions is used for the continuous subscription
	WatchOptions = position.Options{
		EnableHighAccuracy: true,
		MaximumAge:         30 * time.Second,
	}
)

// Classify returns the proximity state of a sample and its distance to the
// geofence center
func Classify(sample schema.DeviceLocation, fence schema.Geofence) (schema.ProximityState, float64) {
	distance := geo.DistanceBetween(sample.Location, fence.Center)

	switch {
	case sample.AccuracyMeters >= WeakSignalAccuracy:
		return schema.ProximityWeakSignal, distance
	case distance > fence.RadiusMeters:
		return schema.ProximityTooFar, distance
	default:
		return schema.ProximityReady, distance
	}
}

func duplicated(a, b schema.DeviceLocation) bool {
	return math.Abs(a.Latitude-b.Latitude) < coordinateEpsilon &&
		math.Abs(a.Longitude-b.Longitude) < coordinateEpsilon &&
		math.Abs(a.AccuracyMeters-b.AccuracyMeters) < accuracyEpsilon
}

// Update is a snapshot of the monitor
type Update struct {
	State          schema.ProximityState  `json:"state"`
	Sample         *schema.DeviceLocation `json:"sample,omitempty"`
	DistanceMeters *float64               `json:"distance_meters,omitempty"`
	Error          *position.Error        `json:"error,omitempty"`
}

// Monitor tracks device samples against one geofence. It owns the position
// subscription from Start until Stop.
type Monitor struct {
	sync.RWMutex

	fence  schema.Geofence
	source position.Source
	scope  tally.Scope

	state    schema.ProximityState
	last     *schema.DeviceLocation
	distance float64
	lastErr  *position.Error
	ready    *schema.DeviceLocation

	onReady   func(schema.DeviceLocation)
	listeners map[int]func(Update)
	nextID    int

	watch   position.Watch
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

func NewMonitor(fence schema.Geofence, source position.Source, scope tally.Scope) *Monitor {
	if scope == nil {
		scope = tally.NoopScope
	}

	return &Monitor{
		fence:     fence,
		source:    source,
		scope:     scope.SubScope("geofence"),
		state:     schema.ProximityAcquiring,
		listeners: map[int]func(Update){},
	}
}

// OnReady registers the callback receiving the qualifying sample each time
// the state becomes READY
func (m *Monitor) OnReady(fn func(schema.DeviceLocation)) {
	m.Lock()
	defer m.Unlock()
	m.onReady = fn
}

// Subscribe registers a listener for every state or error change
func (m *Monitor) Subscribe(fn func(Update)) func() {
	m.Lock()
	defer m.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = fn

	return func() {
		m.Lock()
		defer m.Unlock()
		delete(m.listeners, id)
	}
}

// Start requests one quick fix and subscribes to high accuracy samples
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	w, err := m.source.Watch(WatchOptions, m.handleSample, m.handleError)
	if err != nil {
		cancel()
		m.handleError(position.AsError(err))
		return err
	}

	m.Lock()
	m.watch = w
	m.cancel = cancel
	m.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		sample, err := m.source.CurrentPosition(ctx, InitialFixOptions)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.RLock()
			acquired := m.last != nil
			m.RUnlock()

			// a watched sample already superseded the quick fix
			if !acquired {
				m.handleError(position.AsError(err))
			}
			return
		}
		m.handleSample(sample)
	}()

	log.WithFields(log.Fields{
		"prefix": logPrefix,
		"lat":    m.fence.Center.Latitude,
		"lng":    m.fence.Center.Longitude,
		"radius": m.fence.RadiusMeters,
	}).Info("geofence monitor started")

	return nil
}

// Stop releases the position subscription. Samples arriving afterwards are
// ignored.
func (m *Monitor) Stop() {
	m.Lock()
	if m.stopped {
		m.Unlock()
		return
	}
	m.stopped = true
	w := m.watch
	cancel := m.cancel
	m.Unlock()

	if cancel != nil {
		cancel()
	}
	if w != nil {
		w.Clear()
	}
	m.wg.Wait()

	log.WithField("prefix", logPrefix).Info("geofence monitor stopped")
}

func (m *Monitor) snapshot() Update {
	u := Update{
		State: m.state,
		Error: m.lastErr,
	}
	if m.last != nil {
		sample := *m.last
		distance := m.distance
		u.Sample = &sample
		u.DistanceMeters = &distance
	}
	return u
}

func (m *Monitor) listenerList() []func(Update) {
	fns := make([]func(Update), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func (m *Monitor) handleSample(sample schema.DeviceLocation) {
	m.Lock()

	if m.stopped {
		m.Unlock()
		return
	}

	if m.last != nil {
		if sample.Timestamp.Before(m.last.Timestamp) {
			m.Unlock()
			return
		}
		if duplicated(sample, *m.last) {
			m.Unlock()
			return
		}
	}

	m.scope.Counter("samples").Inc(1)

	state, distance := Classify(sample, m.fence)
	previous := m.state

	m.last = &sample
	m.distance = distance
	m.lastErr = nil
	m.state = state
	if state == schema.ProximityReady {
		m.ready = &sample
	}

	if state != previous {
		m.scope.Tagged(map[string]string{"state": string(state)}).Counter("transitions").Inc(1)
		log.WithFields(log.Fields{
			"prefix":   logPrefix,
			"from":     previous,
			"to":       state,
			"distance": distance,
			"accuracy": sample.AccuracyMeters,
		}).Debug("proximity state changed")
	}

	var onReady func(schema.DeviceLocation)
	if state == schema.ProximityReady && previous != schema.ProximityReady {
		onReady = m.onReady
	}

	update := m.snapshot()
	listeners := m.listenerList()
	m.Unlock()

	if onReady != nil {
		onReady(sample)
	}
	for _, fn := range listeners {
		fn(update)
	}
}

func (m *Monitor) handleError(e *position.Error) {
	if e == nil {
		return
	}

	m.Lock()
	if m.stopped {
		m.Unlock()
		return
	}

	m.lastErr = e
	m.scope.Tagged(map[string]string{"code": string(e.Code)}).Counter("errors").Inc(1)

	log.WithFields(log.Fields{
		"prefix": logPrefix,
		"code":   e.Code,
		"state":  m.state,
	}).Warnf("position error: %s", e.Message)

	update := m.snapshot()
	listeners := m.listenerList()
	m.Unlock()

	for _, fn := range listeners {
		fn(update)
	}
}

// State is the current proximity state
func (m *Monitor) State() schema.ProximityState {
	m.RLock()
	defer m.RUnlock()
	return m.state
}

// LastError is the error reported since the last valid sample, if any
func (m *Monitor) LastError() *position.Error {
	m.RLock()
	defer m.RUnlock()
	return m.lastErr
}

// ReadyLocation returns the most recent sample that qualified as READY
func (m *Monitor) ReadyLocation() (schema.DeviceLocation, bool) {
	m.RLock()
	defer m.RUnlock()

	if m.ready == nil {
		return schema.DeviceLocation{}, false
	}
	return *m.ready, true
}

func (m *Monitor) Snapshot() Update {
	m.RLock()
	defer m.RUnlock()
	return m.snapshot()
}

func (m *Monitor) Geofence() schema.Geofence {
	return m.fence
}
