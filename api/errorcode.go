package api

import (
	"github.com/bitmark-inc/geoquest-agent/capture"
	"github.com/bitmark-inc/geoquest-agent/external/camera"
	"github.com/bitmark-inc/geoquest-agent/submission"
)

var (
	errorMessageMap = map[int64]string{
		999: "internal server error",

		1010: "invalid parameters",
		1011: "cannot parse request",
		1012: "invalid geofence",

		1100: "session not found",

		1200: camera.ErrCameraBusy.Error(),
		1201: camera.ErrNoCamera.Error(),
		1202: "camera is not open",
		1203: capture.ErrNoFrame.Error(),
		1204: capture.ErrFrameCaptured.Error(),
		1205: capture.ErrRetakeExhausted.Error(),

		1300: "image rejected",

		1400: submission.ErrNoAsset.Error(),
		1401: submission.ErrSubmissionInFlight.Error(),
		1402: submission.ErrOutcomePending.Error(),
		1403: "live photos can only be submitted inside the quest area",
	}

	errorInternalServer = errorJSON(999)

	errorInvalidParameters  = errorJSON(1010)
	errorCannotParseRequest = errorJSON(1011)
	errorInvalidGeofence    = errorJSON(1012)

	errorSessionNotFound = errorJSON(1100)

	errorCameraBusy       = errorJSON(1200)
	errorNoCamera         = errorJSON(1201)
	errorCameraNotOpen    = errorJSON(1202)
	errorNoFrame          = errorJSON(1203)
	errorFrameCaptured    = errorJSON(1204)
	errorRetakeExhausted  = errorJSON(1205)
	errorImageRejected    = errorJSON(1300)
	errorNoAsset          = errorJSON(1400)
	errorSubmissionFlight = errorJSON(1401)
	errorOutcomePending   = errorJSON(1402)
	errorSubmitNotAllowed = errorJSON(1403)
)

type ErrorResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// errorJSON converts an error code to a standardized error object
func errorJSON(code int64) ErrorResponse {
	var message string
	if msg, ok := errorMessageMap[code]; ok {
		message = msg
	} else {
		message = "unknown"
	}

	return ErrorResponse{
		Code:    code,
		Message: message,
	}
}
