package geo

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/geoquest-agent/external/geoinfo"
	"github.com/bitmark-inc/geoquest-agent/schema"
	"github.com/bitmark-inc/geoquest-agent/store"
)

var (
	ErrNoGeoInfoFound         = fmt.Errorf("no geo information found")
	ErrResolverNotInitialized = fmt.Errorf("place resolver is not initialized")
)

// DefaultPlaceDistance is how far a curated place may be from the queried point
const DefaultPlaceDistance = 50.0

// PlaceResolver - interface for reverse geocoding a location into a place
type PlaceResolver interface {
	ResolvePlace(context.Context, schema.Location) (schema.PlaceInfo, error)
}

type MultipleResolverErrors struct {
	errors []error
}

func (e *MultipleResolverErrors) Error() string {
	errorStrings := make([]string, len(e.errors))
	for i, err := range e.errors {
		errorStrings[i] = fmt.Sprintf("#%d: %s", i, err.Error())
	}
	return strings.Join(errorStrings, "\n")
}

func NewMultipleResolverErrors(errors []error) *MultipleResolverErrors {
	return &MultipleResolverErrors{
		errors: errors,
	}
}

type GeocodingPlaceResolver struct {
	client geoinfo.GeoInfo
}

func NewGeocodingPlaceResolver(client geoinfo.GeoInfo) *GeocodingPlaceResolver {
	return &GeocodingPlaceResolver{
		client: client,
	}
}

func (g *GeocodingPlaceResolver) ResolvePlace(ctx context.Context, loc schema.Location) (schema.PlaceInfo, error) {
	geos, err := g.client.Get(ctx, loc)
	if nil != err {
		return schema.PlaceInfo{}, err
	}

	if len(geos) == 0 {
		return schema.PlaceInfo{}, ErrNoGeoInfoFound
	}

	return schema.PlaceInfo{
		FormattedAddress: geos[0].FormattedAddress,
		Types:            geos[0].Types,
	}, nil
}

type MongodbPlaceResolver struct {
	store       store.PlaceStore
	maxDistance float64
}

func NewMongodbPlaceResolver(s store.PlaceStore, maxDistance float64) *MongodbPlaceResolver {
	if maxDistance <= 0 {
		maxDistance = DefaultPlaceDistance
	}
	return &MongodbPlaceResolver{
		store:       s,
		maxDistance: maxDistance,
	}
}

func (m *MongodbPlaceResolver) ResolvePlace(ctx context.Context, loc schema.Location) (schema.PlaceInfo, error) {
	place, err := m.store.NearestPlace(ctx, loc, m.maxDistance)
	if err != nil {
		if err == store.ErrPlaceNotFound {
			return schema.PlaceInfo{}, ErrNoGeoInfoFound
		}
		return schema.PlaceInfo{}, err
	}

	return place.Info(), nil
}

type MultiplePlaceResolver struct {
	resolvers []PlaceResolver
}

func NewMultiplePlaceResolver(resolvers ...PlaceResolver) *MultiplePlaceResolver {
	return &MultiplePlaceResolver{
		resolvers: resolvers,
	}
}

func (r *MultiplePlaceResolver) ResolvePlace(ctx context.Context, loc schema.Location) (schema.PlaceInfo, error) {
	if len(r.resolvers) == 0 {
		return schema.PlaceInfo{}, ErrResolverNotInitialized
	}

	var errors []error
	for _, resolver := range r.resolvers {
		result, err := resolver.ResolvePlace(ctx, loc)
		if err != nil {
			errors = append(errors, err)
		} else {
			return result, nil
		}
	}

	return schema.PlaceInfo{}, NewMultipleResolverErrors(errors)
}

// CachedPlaceResolver keeps resolved places in a shared cache. Keys are
// rounded to five decimals, roughly one meter.
type CachedPlaceResolver struct {
	resolver PlaceResolver
	cache    store.Cache
	ttl      time.Duration
}

func NewCachedPlaceResolver(resolver PlaceResolver, cache store.Cache, ttl time.Duration) *CachedPlaceResolver {
	return &CachedPlaceResolver{
		resolver: resolver,
		cache:    cache,
		ttl:      ttl,
	}
}

func (c *CachedPlaceResolver) ResolvePlace(ctx context.Context, loc schema.Location) (schema.PlaceInfo, error) {
	key := fmt.Sprintf("place:%.5f:%.5f", loc.Latitude, loc.Longitude)

	var cached schema.PlaceInfo
	if hit, err := c.cache.Get(ctx, key, &cached); err != nil {
		log.WithField("prefix", "geo").Warnf("read place cache with error: %s", err)
	} else if hit {
		return cached, nil
	}

	place, err := c.resolver.ResolvePlace(ctx, loc)
	if err != nil {
		return place, err
	}

	if err := c.cache.Set(ctx, key, place, c.ttl); err != nil {
		log.WithField("prefix", "geo").Warnf("write place cache with error: %s", err)
	}
	return place, nil
}
