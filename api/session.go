package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/bitmark-inc/geoquest-agent/capture"
	"github.com/bitmark-inc/geoquest-agent/geofence"
	"github.com/bitmark-inc/geoquest-agent/schema"
	"github.com/bitmark-inc/geoquest-agent/submission"
	"github.com/bitmark-inc/geoquest-agent/utils"
)

// session is one mounted submission screen. It owns the position
// subscription and the camera until it is torn down.
type session struct {
	sync.Mutex

	ID        string
	QuestID   string
	Fence     schema.Geofence
	CreatedAt time.Time

	monitor      *geofence.Monitor
	orchestrator *submission.Orchestrator
	live         *capture.LiveCapture

	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) closeCamera() {
	s.Lock()
	defer s.Unlock()

	if s.live != nil {
		s.live.Close()
		s.live = nil
	}
}

func (s *session) teardown() {
	s.closeCamera()
	s.monitor.Stop()
	s.closeOnce.Do(func() { close(s.done) })
}

type sessionResponse struct {
	ID        string            `json:"id"`
	QuestID   string            `json:"quest_id"`
	Geofence  schema.Geofence   `json:"geofence"`
	CreatedAt time.Time         `json:"created_at"`
	Proximity proximityResponse `json:"proximity"`
	State     submission.State  `json:"submission_state"`
}

func (s *session) response(c *gin.Context) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		QuestID:   s.QuestID,
		Geofence:  s.Fence,
		CreatedAt: s.CreatedAt,
		Proximity: newProximityResponse(localizer(c), s.monitor.Snapshot()),
		State:     s.orchestrator.State(),
	}
}

// mountSession starts watching the device against a quest geofence. Any
// previously mounted session is torn down first.
func (s *Server) mountSession(c *gin.Context) {
	var body struct {
		QuestID      string   `json:"quest_id"`
		Latitude     *float64 `json:"lat"`
		Longitude    *float64 `json:"lng"`
		RadiusMeters float64  `json:"radius_meters"`
	}

	if err := c.BindJSON(&body); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}

	if body.QuestID == "" || body.Latitude == nil || body.Longitude == nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
		return
	}

	fence := schema.Geofence{
		Center:       schema.Location{Latitude: *body.Latitude, Longitude: *body.Longitude},
		RadiusMeters: body.RadiusMeters,
	}
	if err := fence.Validate(); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidGeofence, err)
		return
	}

	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	if s.session != nil {
		log.WithField("session_id", s.session.ID).Info("replace mounted session")
		s.session.teardown()
		s.session = nil
	}

	monitor := geofence.NewMonitor(fence, s.source, s.scope)
	sess := &session{
		ID:           uuid.New().String(),
		QuestID:      body.QuestID,
		Fence:        fence,
		CreatedAt:    time.Now(),
		monitor:      monitor,
		orchestrator: submission.New(body.QuestID, monitor, s.source, s.submitter, s.scope),
		done:         make(chan struct{}),
	}

	// a failed start is kept on the monitor as its last error
	if err := monitor.Start(context.Background()); err != nil {
		log.WithError(err).Warn("start geofence monitor")
	}

	s.session = sess
	c.JSON(http.StatusOK, sess.response(c))
}

func (s *Server) unmountSession(c *gin.Context) {
	sess := c.MustGet("session").(*session)

	s.sessionLock.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.sessionLock.Unlock()

	sess.teardown()
	c.JSON(http.StatusOK, gin.H{"result": "OK"})
}

// recognizeSessionMiddleware rejects requests for a session that is not mounted
func (s *Server) recognizeSessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.sessionLock.Lock()
		sess := s.session
		s.sessionLock.Unlock()

		if sess == nil || sess.ID != c.Param("sessionID") {
			abortWithEncoding(c, http.StatusNotFound, errorSessionNotFound)
			return
		}

		c.Set("session", sess)
		c.Next()
	}
}

type positionErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type proximityResponse struct {
	State          schema.ProximityState  `json:"state"`
	Sample         *schema.DeviceLocation `json:"sample,omitempty"`
	DistanceMeters *float64               `json:"distance_meters,omitempty"`
	Error          *positionErrorResponse `json:"error,omitempty"`
}

func newProximityResponse(l *i18n.Localizer, u geofence.Update) proximityResponse {
	r := proximityResponse{
		State:          u.State,
		Sample:         u.Sample,
		DistanceMeters: u.DistanceMeters,
	}
	if u.Error != nil {
		message := u.Error.Message
		if message == "" {
			message = string(u.Error.Code)
		}
		r.Error = &positionErrorResponse{
			Code:    string(u.Error.Code),
			Message: utils.Localize(l, string(u.Error.Code), message),
		}
	}
	return r
}

func (s *Server) currentProximity(c *gin.Context) {
	sess := c.MustGet("session").(*session)
	c.JSON(http.StatusOK, newProximityResponse(localizer(c), sess.monitor.Snapshot()))
}
