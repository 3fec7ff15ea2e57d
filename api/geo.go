package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

// parseGeoPosition will parse latitude and longitude from the geo-position string
func parseGeoPosition(geoPosition string) (float64, float64, error) {
	positions := strings.Split(geoPosition, ";")

	if len(positions) != 2 {
		return 0, 0, fmt.Errorf("invalid geo-position value")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(positions[0]), 64)
	if err != nil {
		return 0, 0, err
	}

	long, err := strconv.ParseFloat(strings.TrimSpace(positions[1]), 64)
	if err != nil {
		return 0, 0, err
	}

	return lat, long, nil
}

// checkLocation classifies a candidate quest location. The coordinate comes
// from the body or, when absent, from the Geo-Position header. A geocode may
// be supplied, otherwise it is resolved.
func (s *Server) checkLocation(c *gin.Context) {
	var body struct {
		Latitude         *float64 `json:"lat"`
		Longitude        *float64 `json:"lng"`
		FormattedAddress string   `json:"formatted_address"`
		Types            []string `json:"types"`
	}

	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&body); err != nil {
			abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
			return
		}
	}

	var loc schema.Location
	switch {
	case body.Latitude != nil && body.Longitude != nil:
		loc = schema.Location{Latitude: *body.Latitude, Longitude: *body.Longitude}
	case c.GetHeader("Geo-Position") != "":
		lat, lng, err := parseGeoPosition(c.GetHeader("Geo-Position"))
		if err != nil {
			abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
			return
		}
		loc = schema.Location{Latitude: lat, Longitude: lng}
	default:
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
		return
	}

	if err := loc.Validate(); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	var place *schema.PlaceInfo
	if body.FormattedAddress != "" || len(body.Types) > 0 {
		place = &schema.PlaceInfo{
			FormattedAddress: body.FormattedAddress,
			Types:            body.Types,
		}
	}

	verdict := s.classifier.Classify(c.Request.Context(), loc, place)
	c.JSON(http.StatusOK, localizeVerdict(localizer(c), verdict))
}
