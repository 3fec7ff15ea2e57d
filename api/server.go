package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/uber-go/tally"

	"github.com/bitmark-inc/geoquest-agent/capture"
	"github.com/bitmark-inc/geoquest-agent/external/position"
	client "github.com/bitmark-inc/geoquest-agent/external/submission"
	"github.com/bitmark-inc/geoquest-agent/logmodule"
	"github.com/bitmark-inc/geoquest-agent/safety"
	"github.com/bitmark-inc/geoquest-agent/store"
)

var log *logrus.Entry

func init() {
	log = logrus.WithField("prefix", "gin")
}

// Server to run a http server instance
type Server struct {
	// Server instance
	server *http.Server

	// Stores
	pinger store.Pinger

	// Pipeline components
	source     position.Source
	extractor  *capture.Extractor
	classifier *safety.Classifier
	submitter  client.Submitter
	scope      tally.Scope

	// the mounted submission screen, at most one
	sessionLock sync.Mutex
	session     *session
}

// NewServer new instance of server
func NewServer(
	pinger store.Pinger,
	source position.Source,
	extractor *capture.Extractor,
	classifier *safety.Classifier,
	submitter client.Submitter,
	scope tally.Scope) *Server {
	if scope == nil {
		scope = tally.NoopScope
	}

	return &Server{
		pinger:     pinger,
		source:     source,
		extractor:  extractor,
		classifier: classifier,
		submitter:  submitter,
		scope:      scope,
	}
}

// Run to run the server
func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.setupRouter(),
	}

	return s.server.ListenAndServe()
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         10 * time.Second,
	}))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept-Language", "Geo-Position"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}

	apiRoute := r.Group("/api")
	apiRoute.Use(logmodule.Ginrus("API"))
	apiRoute.Use(cors.New(corsConfig))

	apiRoute.POST("/locations/check", s.checkLocation)

	sessionRoute := apiRoute.Group("/sessions")
	{
		sessionRoute.POST("", s.mountSession)
	}

	sessionRoute.Use(s.recognizeSessionMiddleware())
	{
		sessionRoute.DELETE("/:sessionID", s.unmountSession)

		sessionRoute.GET("/:sessionID/proximity", s.currentProximity)
		sessionRoute.GET("/:sessionID/proximity/stream", s.streamProximity)

		sessionRoute.POST("/:sessionID/camera", s.openCamera)
		sessionRoute.POST("/:sessionID/camera/capture", s.captureFrame)
		sessionRoute.POST("/:sessionID/camera/retake", s.retakeFrame)
		sessionRoute.POST("/:sessionID/camera/confirm", s.confirmFrame)
		sessionRoute.DELETE("/:sessionID/camera", s.releaseCamera)

		sessionRoute.POST("/:sessionID/upload", s.uploadImage)

		sessionRoute.POST("/:sessionID/submit", s.submit)
		sessionRoute.POST("/:sessionID/retry", s.retry)
		sessionRoute.GET("/:sessionID/outcome", s.currentOutcome)
	}

	r.GET("/healthz", s.healthz)

	return r
}

// Shutdown to shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessionLock.Lock()
	if s.session != nil {
		s.session.teardown()
		s.session = nil
	}
	s.sessionLock.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// shouldInterupt sends error message and determine if it should interupt the current flow
func shouldInterupt(err error, c *gin.Context) bool {
	if err == nil {
		return false
	}

	log.Error(err)
	abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer)
	return true
}

func (s *Server) healthz(c *gin.Context) {
	if s.pinger != nil {
		err := s.pinger.Ping()
		if shouldInterupt(err, c) {
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"version": viper.GetString("server.version"),
	})
}

func responseWithEncoding(c *gin.Context, code int, obj interface{}) {
	acceptEncoding := c.GetHeader("Accept-Encoding")
	switch acceptEncoding {
	default:
		c.JSON(code, obj)
	}
}

func abortWithEncoding(c *gin.Context, code int, obj ErrorResponse, errors ...error) {
	for _, err := range errors {
		c.Error(err)
	}
	responseWithEncoding(c, code, obj)
	c.Abort()
}
