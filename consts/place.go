package consts

import (
	"strings"
)

// Google place type tags used by the location checks.
const (
	Park              = "park"
	Restaurant        = "restaurant"
	Cafe              = "cafe"
	Store             = "store"
	ShoppingMall      = "shopping_mall"
	TouristAttraction = "tourist_attraction"
	TransitStation    = "transit_station"
	TrainStation      = "train_station"
	SubwayStation     = "subway_station"
	BusStation        = "bus_station"
	NaturalFeature    = "natural_feature"
	Museum            = "museum"
	Library           = "library"
	Church            = "church"
	Mosque            = "mosque"
	Synagogue         = "synagogue"
	HinduTemple       = "hindu_temple"
	PlaceOfWorship    = "place_of_worship"
	Stadium           = "stadium"
	AmusementPark     = "amusement_park"
	Zoo               = "zoo"
	Aquarium          = "aquarium"
	PointOfInterest   = "point_of_interest"
	Establishment     = "establishment"

	StreetAddress = "street_address"
	Premise       = "premise"
	Subpremise    = "subpremise"
	Route         = "route"

	// beaches have no dedicated google type; curated places may carry it.
	Beach = "beach"

	PublicSpace = "public space"
)

// PublicPlaceTypes lists tags that mark a publicly accessible place, in the
// order of preference used to label a location.
var PublicPlaceTypes = []string{
	Park,
	Beach,
	NaturalFeature,
	TouristAttraction,
	Museum,
	Library,
	Zoo,
	Aquarium,
	AmusementPark,
	Stadium,
	Church,
	Mosque,
	Synagogue,
	HinduTemple,
	PlaceOfWorship,
	TransitStation,
	TrainStation,
	SubwayStation,
	BusStation,
	Restaurant,
	Cafe,
	ShoppingMall,
	Store,
	PointOfInterest,
	Establishment,
}

// PrivatePlaceTypes lists tags that usually point at a private residence.
var PrivatePlaceTypes = []string{
	StreetAddress,
	Premise,
	Subpremise,
	Route,
}

var publicPlaceTypes map[string]bool
var privatePlaceTypes map[string]bool

func init() {
	publicPlaceTypes = make(map[string]bool, len(PublicPlaceTypes))
	for _, t := range PublicPlaceTypes {
		publicPlaceTypes[t] = true
	}

	privatePlaceTypes = make(map[string]bool, len(PrivatePlaceTypes))
	for _, t := range PrivatePlaceTypes {
		privatePlaceTypes[t] = true
	}
}

func IsPublicPlaceType(t string) bool {
	return publicPlaceTypes[t]
}

func IsPrivatePlaceType(t string) bool {
	return privatePlaceTypes[t]
}

// IsEstablishmentType reports tags that redeem an address-like result, such
// as a shop inside a residential building.
func IsEstablishmentType(t string) bool {
	return t == Establishment || t == PointOfInterest
}

// PlaceTypeLabel turns a tag into a readable label, e.g. tourist_attraction -> tourist attraction
func PlaceTypeLabel(t string) string {
	return strings.ReplaceAll(strings.TrimSpace(t), "_", " ")
}
