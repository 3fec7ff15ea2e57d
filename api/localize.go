package api

import (
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/bitmark-inc/geoquest-agent/capture"
	"github.com/bitmark-inc/geoquest-agent/schema"
	"github.com/bitmark-inc/geoquest-agent/utils"
)

func localizer(c *gin.Context) *i18n.Localizer {
	return utils.NewLocalizer(c.GetHeader("Accept-Language"))
}

func localizeRejections(l *i18n.Localizer, reasons []capture.Rejection) []capture.Rejection {
	localized := make([]capture.Rejection, 0, len(reasons))
	for _, r := range reasons {
		localized = append(localized, capture.Rejection{
			Code:    r.Code,
			Message: utils.Localize(l, r.Code, r.Message),
		})
	}
	return localized
}

func localizeVerdict(l *i18n.Localizer, v schema.SafetyVerdict) schema.SafetyVerdict {
	v.Reason = utils.Localize(l, v.ReasonCode, v.Reason)
	return v
}

// localizeOutcome translates outcomes built on this device. Messages from the
// verification server are shown verbatim.
func localizeOutcome(l *i18n.Localizer, o schema.SubmissionOutcome) schema.SubmissionOutcome {
	switch o.Code {
	case schema.CodeLocationUnavailable, schema.CodeNetworkError, schema.CodeInvalidSubmission:
		o.Message = utils.Localize(l, o.Code, o.Message)
	}
	return o
}
