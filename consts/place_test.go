package consts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/geoquest-agent/consts"
)

func TestPublicPlaceTypes(t *testing.T) {
	for _, tag := range []string{"park", "cafe", "museum", "zoo", "point_of_interest", "transit_station"} {
		assert.True(t, consts.IsPublicPlaceType(tag), tag)
		assert.False(t, consts.IsPrivatePlaceType(tag), tag)
	}
}

func TestPrivatePlaceTypes(t *testing.T) {
	for _, tag := range []string{"street_address", "premise", "subpremise", "route"} {
		assert.True(t, consts.IsPrivatePlaceType(tag), tag)
		assert.False(t, consts.IsPublicPlaceType(tag), tag)
	}
}

func TestEstablishmentType(t *testing.T) {
	assert.True(t, consts.IsEstablishmentType("establishment"))
	assert.True(t, consts.IsEstablishmentType("point_of_interest"))
	assert.False(t, consts.IsEstablishmentType("premise"))
}

func TestPlaceTypeLabel(t *testing.T) {
	assert.Equal(t, "tourist attraction", consts.PlaceTypeLabel("tourist_attraction"))
	assert.Equal(t, "park", consts.PlaceTypeLabel(" park "))
}
