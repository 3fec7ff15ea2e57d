package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/spf13/viper"

	"github.com/bitmark-inc/geoquest-agent/schema"
	"github.com/bitmark-inc/geoquest-agent/submission"
)

const defaultSubmitTimeout = 60 * time.Second

// submissionContext keeps the upload running when the client goes away. It is
// bounded by submission.timeout instead.
func submissionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := viper.GetDuration("submission.timeout")
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
}

type outcomeResponse struct {
	State   submission.State          `json:"state"`
	Outcome *schema.SubmissionOutcome `json:"outcome,omitempty"`
}

func newOutcomeResponse(l *i18n.Localizer, o *submission.Orchestrator) outcomeResponse {
	r := outcomeResponse{State: o.State()}
	if outcome := o.Outcome(); outcome != nil {
		localized := localizeOutcome(l, *outcome)
		r.Outcome = &localized
	}
	return r
}

func abortWithSubmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, submission.ErrNoAsset):
		abortWithEncoding(c, http.StatusConflict, errorNoAsset, err)
	case errors.Is(err, submission.ErrSubmissionInFlight):
		abortWithEncoding(c, http.StatusConflict, errorSubmissionFlight, err)
	case errors.Is(err, submission.ErrOutcomePending):
		abortWithEncoding(c, http.StatusConflict, errorOutcomePending, err)
	default:
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
	}
}

func (s *Server) submit(c *gin.Context) {
	sess := c.MustGet("session").(*session)

	asset := sess.orchestrator.Asset()
	if asset == nil {
		abortWithEncoding(c, http.StatusConflict, errorNoAsset)
		return
	}

	if !submission.Allowed(sess.monitor.State(), asset) {
		abortWithEncoding(c, http.StatusForbidden, errorSubmitNotAllowed)
		return
	}

	ctx, cancel := submissionContext(c)
	defer cancel()

	if _, err := sess.orchestrator.Submit(ctx); err != nil {
		abortWithSubmissionError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOutcomeResponse(localizer(c), sess.orchestrator))
}

func (s *Server) retry(c *gin.Context) {
	sess := c.MustGet("session").(*session)

	if err := sess.orchestrator.Retry(); err != nil {
		abortWithSubmissionError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOutcomeResponse(localizer(c), sess.orchestrator))
}

func (s *Server) currentOutcome(c *gin.Context) {
	sess := c.MustGet("session").(*session)
	c.JSON(http.StatusOK, newOutcomeResponse(localizer(c), sess.orchestrator))
}
