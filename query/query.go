package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/livetransit/common"
	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/feed"
	"github.com/alwitt/livetransit/geo"
	"github.com/alwitt/livetransit/metrics"
	"github.com/alwitt/livetransit/snapshot"
	"github.com/apex/log"
)

// ErrNotFound the requested key is not in the snapshot
var ErrNotFound = errors.New("not found")

// StatusSource anything reporting a feed status
type StatusSource interface {
	Status() feed.Status
}

// HealthReport store sizes and feed errors
type HealthReport struct {
	// VehiclesCount current vehicle snapshot size
	VehiclesCount int
	// TripUpdatesCount current trip update snapshot size
	TripUpdatesCount int
	// Vehicles vehicle feed status
	Vehicles feed.Status
	// TripUpdates trip update feed status
	TripUpdates feed.Status
}

// LiveQuery read surface over the vehicle and trip update snapshots.
//
// Every operation first removes entries older than the staleness threshold.
type LiveQuery interface {
	// StaleAfter the staleness threshold
	StaleAfter() time.Duration
	// ListVehicles all current vehicle payloads
	ListVehicles() []decoder.Document
	// GetVehicle one vehicle payload, ErrNotFound when absent
	GetVehicle(key string) (decoder.Document, error)
	// ListVehicleFeatures positioned vehicles as GeoJSON, optionally limited to one route
	ListVehicleFeatures(route string) geo.FeatureCollection
	// ListTripUpdates all current trip update payloads
	ListTripUpdates() []decoder.Document
	// GetTripUpdate one trip update payload, ErrNotFound when absent
	GetTripUpdate(key string) (decoder.Document, error)
	// Health store sizes and feed status
	Health() HealthReport
	// Ready whether at least one feed connection is open
	Ready() bool
}

// LiveQueryParams LiveQuery parameters
type LiveQueryParams struct {
	// Vehicles the vehicle snapshot
	Vehicles snapshot.Store
	// TripUpdates the trip update snapshot
	TripUpdates snapshot.Store
	// VehicleFeed the vehicle feed status, optional
	VehicleFeed StatusSource
	// TripUpdateFeed the trip update feed status, optional
	TripUpdateFeed StatusSource
	// StaleAfter the staleness threshold
	StaleAfter time.Duration
}

// liveQueryImpl implements LiveQuery
type liveQueryImpl struct {
	common.Component
	LiveQueryParams
}

// GetLiveQuery define a new LiveQuery
func GetLiveQuery(params LiveQueryParams) (LiveQuery, error) {
	if params.Vehicles == nil || params.TripUpdates == nil {
		return nil, fmt.Errorf("both snapshot stores are required")
	}
	if params.StaleAfter <= 0 {
		return nil, fmt.Errorf("invalid staleness threshold %s", params.StaleAfter)
	}
	return &liveQueryImpl{
		Component: common.Component{
			LogTags: log.Fields{"module": "query", "component": "live-query"},
		},
		LiveQueryParams: params,
	}, nil
}

// StaleAfter the staleness threshold
func (q *liveQueryImpl) StaleAfter() time.Duration {
	return q.LiveQueryParams.StaleAfter
}

func (q *liveQueryImpl) sweep(store snapshot.Store, name string) {
	metrics.ObserveEvictions(name, store.EvictOlderThan(q.LiveQueryParams.StaleAfter))
}

func payloads(records []snapshot.Record) []decoder.Document {
	result := make([]decoder.Document, 0, len(records))
	for _, record := range records {
		result = append(result, record.Payload)
	}
	return result
}

func lookup(store snapshot.Store, key string) (decoder.Document, error) {
	record, ok := store.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return record.Payload, nil
}

// ListVehicles all current vehicle payloads
func (q *liveQueryImpl) ListVehicles() []decoder.Document {
	q.sweep(q.Vehicles, decoder.VehiclePosition.String())
	return payloads(q.Vehicles.ListAll())
}

// GetVehicle one vehicle payload
func (q *liveQueryImpl) GetVehicle(key string) (decoder.Document, error) {
	q.sweep(q.Vehicles, decoder.VehiclePosition.String())
	return lookup(q.Vehicles, key)
}

// ListVehicleFeatures positioned vehicles as GeoJSON
func (q *liveQueryImpl) ListVehicleFeatures(route string) geo.FeatureCollection {
	q.sweep(q.Vehicles, decoder.VehiclePosition.String())
	return geo.ProjectVehicles(q.Vehicles.ListAll(), route)
}

// ListTripUpdates all current trip update payloads
func (q *liveQueryImpl) ListTripUpdates() []decoder.Document {
	q.sweep(q.TripUpdates, decoder.TripUpdate.String())
	return payloads(q.TripUpdates.ListAll())
}

// GetTripUpdate one trip update payload
func (q *liveQueryImpl) GetTripUpdate(key string) (decoder.Document, error) {
	q.sweep(q.TripUpdates, decoder.TripUpdate.String())
	return lookup(q.TripUpdates, key)
}

func feedStatus(source StatusSource, variant decoder.Variant) feed.Status {
	if source == nil {
		return feed.Status{Feed: variant.String()}
	}
	return source.Status()
}

// Health store sizes and feed status
func (q *liveQueryImpl) Health() HealthReport {
	q.sweep(q.Vehicles, decoder.VehiclePosition.String())
	q.sweep(q.TripUpdates, decoder.TripUpdate.String())
	return HealthReport{
		VehiclesCount:    q.Vehicles.Len(),
		TripUpdatesCount: q.TripUpdates.Len(),
		Vehicles:         feedStatus(q.VehicleFeed, decoder.VehiclePosition),
		TripUpdates:      feedStatus(q.TripUpdateFeed, decoder.TripUpdate),
	}
}

// Ready whether at least one feed connection is open
func (q *liveQueryImpl) Ready() bool {
	for _, source := range []StatusSource{q.VehicleFeed, q.TripUpdateFeed} {
		if source != nil && source.Status().State == feed.Open {
			return true
		}
	}
	return false
}
