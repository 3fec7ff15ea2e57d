package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/bitmark-inc/geoquest-agent/capture"
	"github.com/bitmark-inc/geoquest-agent/external/camera"
	"github.com/bitmark-inc/geoquest-agent/schema"
	"github.com/bitmark-inc/geoquest-agent/submission"
	"github.com/bitmark-inc/geoquest-agent/utils"
)

// maxUploadRead bounds how much of an upload is read. Anything above the
// size gate is rejected anyway.
const maxUploadRead = 4 * schema.MaxImageSizeBytes

var warningMessages = map[string]string{
	capture.WarningNoEmbeddedLocation: "This photo has no embedded location, expect a lower trust score.",
}

type notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rejectionResponse struct {
	ErrorResponse
	Reasons []capture.Rejection `json:"reasons"`
}

type assetResponse struct {
	Asset         *schema.CapturedAsset `json:"asset"`
	Warnings      []notice              `json:"warnings,omitempty"`
	SubmitAllowed bool                  `json:"submit_allowed"`
}

type liveResponse struct {
	Facing      camera.Facing `json:"facing"`
	HasFrame    bool          `json:"has_frame"`
	RetakesLeft int           `json:"retakes_left"`
}

func newAssetResponse(l *i18n.Localizer, sess *session, asset *schema.CapturedAsset) assetResponse {
	r := assetResponse{
		Asset:         asset,
		SubmitAllowed: submission.Allowed(sess.monitor.State(), asset),
	}
	for _, w := range asset.Warnings {
		r.Warnings = append(r.Warnings, notice{
			Code:    w,
			Message: utils.Localize(l, w, warningMessages[w]),
		})
	}
	return r
}

// abortWithCaptureError maps camera and capture errors to responses
func abortWithCaptureError(c *gin.Context, err error) {
	var rejection *capture.RejectionError
	if errors.As(err, &rejection) {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, rejectionResponse{
			ErrorResponse: errorImageRejected,
			Reasons:       localizeRejections(localizer(c), rejection.Reasons),
		})
		return
	}

	switch {
	case errors.Is(err, camera.ErrCameraBusy):
		abortWithEncoding(c, http.StatusConflict, errorCameraBusy, err)
	case errors.Is(err, camera.ErrNoCamera):
		abortWithEncoding(c, http.StatusServiceUnavailable, errorNoCamera, err)
	case errors.Is(err, capture.ErrLiveClosed), errors.Is(err, camera.ErrCameraReleased):
		abortWithEncoding(c, http.StatusConflict, errorCameraNotOpen, err)
	case errors.Is(err, capture.ErrNoFrame):
		abortWithEncoding(c, http.StatusConflict, errorNoFrame, err)
	case errors.Is(err, capture.ErrFrameCaptured):
		abortWithEncoding(c, http.StatusConflict, errorFrameCaptured, err)
	case errors.Is(err, capture.ErrRetakeExhausted):
		abortWithEncoding(c, http.StatusConflict, errorRetakeExhausted, err)
	case errors.Is(err, submission.ErrSubmissionInFlight):
		abortWithEncoding(c, http.StatusConflict, errorSubmissionFlight, err)
	case errors.Is(err, submission.ErrOutcomePending):
		abortWithEncoding(c, http.StatusConflict, errorOutcomePending, err)
	default:
		log.WithError(err).Error("capture")
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
	}
}

func (s *Server) openCamera(c *gin.Context) {
	sess := c.MustGet("session").(*session)

	var body struct {
		Facing camera.Facing `json:"facing"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&body); err != nil {
			abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
			return
		}
	}

	switch body.Facing {
	case "", camera.FacingRear, camera.FacingFront:
	default:
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
		return
	}

	sess.Lock()
	defer sess.Unlock()

	if sess.live != nil {
		sess.live.Close()
		sess.live = nil
	}

	live, err := s.extractor.OpenLive(c.Request.Context(), body.Facing)
	if err != nil {
		abortWithCaptureError(c, err)
		return
	}
	sess.live = live

	c.JSON(http.StatusOK, liveResponse{
		Facing:      live.Facing(),
		HasFrame:    false,
		RetakesLeft: live.RetakesLeft(),
	})
}

// withLive runs fn on the open live capture of the session
func withLive(c *gin.Context, fn func(sess *session, live *capture.LiveCapture)) {
	sess := c.MustGet("session").(*session)

	sess.Lock()
	defer sess.Unlock()

	if sess.live == nil {
		abortWithEncoding(c, http.StatusConflict, errorCameraNotOpen)
		return
	}
	fn(sess, sess.live)
}

func (s *Server) captureFrame(c *gin.Context) {
	withLive(c, func(_ *session, live *capture.LiveCapture) {
		if err := live.Capture(c.Request.Context()); err != nil {
			abortWithCaptureError(c, err)
			return
		}

		c.JSON(http.StatusOK, liveResponse{
			Facing:      live.Facing(),
			HasFrame:    live.HasFrame(),
			RetakesLeft: live.RetakesLeft(),
		})
	})
}

func (s *Server) retakeFrame(c *gin.Context) {
	withLive(c, func(_ *session, live *capture.LiveCapture) {
		if err := live.Retake(c.Request.Context()); err != nil {
			abortWithCaptureError(c, err)
			return
		}

		c.JSON(http.StatusOK, liveResponse{
			Facing:      live.Facing(),
			HasFrame:    live.HasFrame(),
			RetakesLeft: live.RetakesLeft(),
		})
	})
}

func (s *Server) confirmFrame(c *gin.Context) {
	withLive(c, func(sess *session, live *capture.LiveCapture) {
		asset, err := live.Confirm()
		if err != nil {
			abortWithCaptureError(c, err)
			return
		}
		sess.live = nil

		if err := sess.orchestrator.SetAsset(asset); err != nil {
			abortWithCaptureError(c, err)
			return
		}

		c.JSON(http.StatusOK, newAssetResponse(localizer(c), sess, asset))
	})
}

// releaseCamera is called when the participant navigates away from the camera
func (s *Server) releaseCamera(c *gin.Context) {
	sess := c.MustGet("session").(*session)
	sess.closeCamera()
	c.JSON(http.StatusOK, gin.H{"result": "OK"})
}

func (s *Server) uploadImage(c *gin.Context) {
	sess := c.MustGet("session").(*session)

	header, err := c.FormFile("image")
	if err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	f, err := header.Open()
	if shouldInterupt(err, c) {
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadRead))
	if shouldInterupt(err, c) {
		return
	}

	fence := sess.Fence
	asset, err := s.extractor.FromUpload(capture.Upload{
		Data:         data,
		Filename:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Fence:        &fence,
	})
	if err != nil {
		abortWithCaptureError(c, err)
		return
	}

	if err := sess.orchestrator.SetAsset(asset); err != nil {
		abortWithCaptureError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAssetResponse(localizer(c), sess, asset))
}
