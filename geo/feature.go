package geo

import (
	"strings"

	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/snapshot"
)

// Point GeoJSON point geometry
type Point struct {
	Type string `json:"type"`
	// Coordinates longitude then latitude
	Coordinates [2]float64 `json:"coordinates"`
}

// VehicleProperties flattened vehicle attributes attached to a feature.
//
// Attributes absent from the payload are omitted.
type VehicleProperties struct {
	ID                  interface{} `json:"id,omitempty"`
	Label               interface{} `json:"label,omitempty"`
	RouteCode           interface{} `json:"route_code,omitempty"`
	RouteID             interface{} `json:"routeId,omitempty"`
	TripID              interface{} `json:"tripId,omitempty"`
	DirectionID         interface{} `json:"directionId,omitempty"`
	StartTime           interface{} `json:"startTime,omitempty"`
	StartDate           interface{} `json:"startDate,omitempty"`
	CurrentStopSequence interface{} `json:"currentStopSequence,omitempty"`
	CurrentStatus       interface{} `json:"currentStatus,omitempty"`
	Timestamp           interface{} `json:"timestamp,omitempty"`
	StopID              interface{} `json:"stopId,omitempty"`
	Speed               interface{} `json:"speed,omitempty"`
	// UpdatedAt when the record was accepted, in unix milliseconds
	UpdatedAt int64 `json:"updated_at"`
}

// Feature GeoJSON feature for one vehicle
type Feature struct {
	Type       string            `json:"type"`
	Geometry   Point             `json:"geometry"`
	Properties VehicleProperties `json:"properties"`
}

// FeatureCollection GeoJSON feature collection
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection wrap features into a collection
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// ProjectVehicle convert a vehicle record into a point feature.
//
// Returns false when the payload does not carry a finite latitude and longitude.
func ProjectVehicle(record snapshot.Record) (Feature, bool) {
	msg := record.Payload
	lat, ok := msg.Float("vehicle", "position", "latitude")
	if !ok {
		return Feature{}, false
	}
	lon, ok := msg.Float("vehicle", "position", "longitude")
	if !ok {
		return Feature{}, false
	}
	return Feature{
		Type:     "Feature",
		Geometry: Point{Type: "Point", Coordinates: [2]float64{lon, lat}},
		Properties: VehicleProperties{
			ID:                  msg.Value("id"),
			Label:               msg.Value("vehicle", "vehicle", "label"),
			RouteCode:           msg.Value("route_code"),
			RouteID:             msg.Value("vehicle", "trip", "routeId"),
			TripID:              msg.Value("vehicle", "trip", "tripId"),
			DirectionID:         msg.Value("vehicle", "trip", "directionId"),
			StartTime:           msg.Value("vehicle", "trip", "startTime"),
			StartDate:           msg.Value("vehicle", "trip", "startDate"),
			CurrentStopSequence: msg.Value("vehicle", "currentStopSequence"),
			CurrentStatus:       msg.Value("vehicle", "currentStatus"),
			Timestamp:           msg.Value("vehicle", "timestamp"),
			StopID:              msg.Value("vehicle", "stopId"),
			Speed:               msg.Value("vehicle", "position", "speed"),
			UpdatedAt:           record.ReceivedAt.UnixMilli(),
		},
	}, true
}

// MatchesRoute whether a vehicle payload runs on a route.
//
// The route code or the trip's route id must equal the filter. An empty filter
// matches everything.
func MatchesRoute(payload decoder.Document, route string) bool {
	route = strings.TrimSpace(route)
	if route == "" {
		return true
	}
	if code, ok := payload.String("route_code"); ok && code == route {
		return true
	}
	if routeID, ok := payload.String("vehicle", "trip", "routeId"); ok && routeID == route {
		return true
	}
	return false
}

// ProjectVehicles project the records on a route into a feature collection
func ProjectVehicles(records []snapshot.Record, route string) FeatureCollection {
	features := make([]Feature, 0, len(records))
	for _, record := range records {
		if !MatchesRoute(record.Payload, route) {
			continue
		}
		if feature, ok := ProjectVehicle(record); ok {
			features = append(features, feature)
		}
	}
	return NewFeatureCollection(features)
}
