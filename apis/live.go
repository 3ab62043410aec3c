// Copyright 2025-2026 The livetransit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apis

import (
	"errors"
	"net/http"

	"github.com/alwitt/goutils"
	"github.com/alwitt/livetransit/common"
	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/feed"
	"github.com/alwitt/livetransit/query"
	"github.com/apex/log"
	"github.com/gorilla/mux"
)

// APIRestLiveHandler REST handler for the live vehicle and trip update snapshots
type APIRestLiveHandler struct {
	goutils.RestAPIHandler
	live query.LiveQuery
}

// GetAPIRestLiveHandler define APIRestLiveHandler
func GetAPIRestLiveHandler(
	live query.LiveQuery, httpConfig *common.APIServerConfig,
) (APIRestLiveHandler, error) {
	if live == nil {
		return APIRestLiveHandler{}, errors.New("no live query provided")
	}
	logTags := log.Fields{
		"module":    "apis",
		"component": "live",
	}
	return APIRestLiveHandler{
		RestAPIHandler: defineRestAPIHandler(logTags, &httpConfig.Logging),
		live:           live,
	}, nil
}

// respond write a JSON response, logging any failure
func (h APIRestLiveHandler) respond(
	w http.ResponseWriter, r *http.Request, respCode int, respBody interface{}, contentType string,
) {
	w.Header().Set("Content-Type", contentType)
	if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
		log.WithError(err).WithFields(h.GetLogTagsForContext(r.Context())).Error(
			"Failed to form response",
		)
	}
}

// =======================================================================
// Vehicles

// APIRestRespVehicles response for listing all vehicles
type APIRestRespVehicles struct {
	OK bool `json:"ok"`
	// Count number of vehicles listed
	Count int `json:"count"`
	// StaleAfterSeconds age after which a vehicle drops out of the listing
	StaleAfterSeconds int64 `json:"stale_after_seconds"`
	// Vehicles latest message per vehicle
	Vehicles []decoder.Document `json:"vehicles"`
}

// ListVehicles godoc
// @Summary List current vehicles
// @Description List the latest position message of every vehicle seen within the staleness window
// @tags Live
// @Produce json
// @Param Livetransit-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespVehicles "success"
// @Header 200 {string} Livetransit-Request-ID "Request ID to match against logs"
// @Router /api/vehicles [get]
func (h APIRestLiveHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.live.ListVehicles()
	h.respond(w, r, http.StatusOK, APIRestRespVehicles{
		OK:                true,
		Count:             len(vehicles),
		StaleAfterSeconds: int64(h.live.StaleAfter().Seconds()),
		Vehicles:          vehicles,
	}, "application/json")
}

// ListVehiclesHandler Wrapper around ListVehicles
func (h APIRestLiveHandler) ListVehiclesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListVehicles(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestRespVehicle response for one vehicle
type APIRestRespVehicle struct {
	OK      bool             `json:"ok"`
	Vehicle decoder.Document `json:"vehicle"`
}

// GetVehicle godoc
// @Summary Get one vehicle
// @Description Fetch the latest position message of one vehicle
// @tags Live
// @Produce json
// @Param Livetransit-Request-ID header string false "User provided request ID to match against logs"
// @Param vehicleId path string true "Vehicle key"
// @Success 200 {object} APIRestRespVehicle "success"
// @Failure 404 {object} ErrorResponse "error"
// @Header 200,404 {string} Livetransit-Request-ID "Request ID to match against logs"
// @Router /api/vehicle/{vehicleId} [get]
func (h APIRestLiveHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var respBody interface{}
	defer func() {
		h.respond(w, r, respCode, respBody, "application/json")
	}()

	vehicle, err := h.live.GetVehicle(mux.Vars(r)["vehicleId"])
	if err != nil {
		respCode = http.StatusNotFound
		respBody = ErrorResponse{OK: false, Error: notFoundMessage}
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespVehicle{OK: true, Vehicle: vehicle}
}

// GetVehicleHandler Wrapper around GetVehicle
func (h APIRestLiveHandler) GetVehicleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetVehicle(w, r)
	}
}

// -----------------------------------------------------------------------

// ListVehicleFeatures godoc
// @Summary Vehicles as GeoJSON
// @Description List positioned vehicles as a GeoJSON feature collection, optionally limited to one route
// @tags Live
// @Produce json
// @Param Livetransit-Request-ID header string false "User provided request ID to match against logs"
// @Param route query string false "Route code or GTFS route ID"
// @Success 200 {object} geo.FeatureCollection "success"
// @Header 200 {string} Livetransit-Request-ID "Request ID to match against logs"
// @Router /api/vehicles.geojson [get]
func (h APIRestLiveHandler) ListVehicleFeatures(w http.ResponseWriter, r *http.Request) {
	features := h.live.ListVehicleFeatures(r.URL.Query().Get("route"))
	h.respond(w, r, http.StatusOK, features, "application/geo+json")
}

// ListVehicleFeaturesHandler Wrapper around ListVehicleFeatures
func (h APIRestLiveHandler) ListVehicleFeaturesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListVehicleFeatures(w, r)
	}
}

// =======================================================================
// Trip updates

// APIRestRespTripUpdates response for listing all trip updates
type APIRestRespTripUpdates struct {
	OK bool `json:"ok"`
	// Count number of trip updates listed
	Count int `json:"count"`
	// StaleAfterSeconds age after which a trip update drops out of the listing
	StaleAfterSeconds int64 `json:"stale_after_seconds"`
	// TripUpdates latest message per trip
	TripUpdates []decoder.Document `json:"tripUpdates"`
}

// ListTripUpdates godoc
// @Summary List current trip updates
// @Description List the latest update message of every trip seen within the staleness window
// @tags Live
// @Produce json
// @Param Livetransit-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespTripUpdates "success"
// @Header 200 {string} Livetransit-Request-ID "Request ID to match against logs"
// @Router /api/trip-updates [get]
func (h APIRestLiveHandler) ListTripUpdates(w http.ResponseWriter, r *http.Request) {
	trips := h.live.ListTripUpdates()
	h.respond(w, r, http.StatusOK, APIRestRespTripUpdates{
		OK:                true,
		Count:             len(trips),
		StaleAfterSeconds: int64(h.live.StaleAfter().Seconds()),
		TripUpdates:       trips,
	}, "application/json")
}

// ListTripUpdatesHandler Wrapper around ListTripUpdates
func (h APIRestLiveHandler) ListTripUpdatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListTripUpdates(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestRespTripUpdate response for one trip update
type APIRestRespTripUpdate struct {
	OK   bool             `json:"ok"`
	Trip decoder.Document `json:"trip"`
}

// GetTripUpdate godoc
// @Summary Get one trip update
// @Description Fetch the latest update message of one trip
// @tags Live
// @Produce json
// @Param Livetransit-Request-ID header string false "User provided request ID to match against logs"
// @Param tripId path string true "Trip key"
// @Success 200 {object} APIRestRespTripUpdate "success"
// @Failure 404 {object} ErrorResponse "error"
// @Header 200,404 {string} Livetransit-Request-ID "Request ID to match against logs"
// @Router /api/trip-update/{tripId} [get]
func (h APIRestLiveHandler) GetTripUpdate(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var respBody interface{}
	defer func() {
		h.respond(w, r, respCode, respBody, "application/json")
	}()

	trip, err := h.live.GetTripUpdate(mux.Vars(r)["tripId"])
	if err != nil {
		respCode = http.StatusNotFound
		respBody = ErrorResponse{OK: false, Error: notFoundMessage}
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespTripUpdate{OK: true, Trip: trip}
}

// GetTripUpdateHandler Wrapper around GetTripUpdate
func (h APIRestLiveHandler) GetTripUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetTripUpdate(w, r)
	}
}

// =======================================================================
// Health

// APIRestRespHealth response for the health summary
type APIRestRespHealth struct {
	OK               bool    `json:"ok"`
	VehiclesCount    int     `json:"vehicles_count"`
	TripUpdatesCount int     `json:"tripUpdates_count"`
	VehiclesError    *string `json:"vehicles_error"`
	TripUpdatesError *string `json:"tripUpdates_error"`
	// Feeds connection diagnostics per feed
	Feeds map[string]feed.Status `json:"feeds"`
}

// Health godoc
// @Summary Snapshot health
// @Description Report the snapshot sizes and the last error of each feed
// @tags Live
// @Produce json
// @Param Livetransit-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespHealth "success"
// @Header 200 {string} Livetransit-Request-ID "Request ID to match against logs"
// @Router /api/health [get]
func (h APIRestLiveHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.live.Health()
	h.respond(w, r, http.StatusOK, APIRestRespHealth{
		OK:               true,
		VehiclesCount:    report.VehiclesCount,
		TripUpdatesCount: report.TripUpdatesCount,
		VehiclesError:    report.Vehicles.LastError,
		TripUpdatesError: report.TripUpdates.LastError,
		Feeds: map[string]feed.Status{
			decoder.VehiclePosition.String(): report.Vehicles,
			decoder.TripUpdate.String():      report.TripUpdates,
		},
	}, "application/json")
}

// HealthHandler Wrapper around Health
func (h APIRestLiveHandler) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Health(w, r)
	}
}

// -----------------------------------------------------------------------

// Alive godoc
// @Summary For REST API liveness check
// @Description Will return success to indicate REST API module is live
// @tags Live
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Router /alive [get]
func (h APIRestLiveHandler) Alive(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), "application/json")
}

// AliveHandler Wrapper around Alive
func (h APIRestLiveHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For REST API readiness check
// @Description Will return success once at least one feed connection is open
// @tags Live
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /ready [get]
func (h APIRestLiveHandler) Ready(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var respBody interface{}
	defer func() {
		h.respond(w, r, respCode, respBody, "application/json")
	}()

	if h.live.Ready() {
		respCode = http.StatusOK
		respBody = h.GetStdRESTSuccessMsg(r.Context())
	} else {
		msg := "not ready"
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, "no feed connection is open",
		)
	}
}

// ReadyHandler Wrapper around Ready
func (h APIRestLiveHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}

// =======================================================================

// RegisterLiveAPI attach the live snapshot routes to a router
func RegisterLiveAPI(parent *mux.Router, h APIRestLiveHandler) {
	_ = RegisterPathPrefix(parent, "/api/vehicles", MethodHandlers{
		"get": h.ListVehiclesHandler(),
	})
	_ = RegisterPathPrefix(parent, "/api/vehicles.geojson", MethodHandlers{
		"get": h.ListVehicleFeaturesHandler(),
	})
	_ = RegisterPathPrefix(parent, "/api/vehicle/{vehicleId}", MethodHandlers{
		"get": h.GetVehicleHandler(),
	})
	_ = RegisterPathPrefix(parent, "/api/trip-updates", MethodHandlers{
		"get": h.ListTripUpdatesHandler(),
	})
	_ = RegisterPathPrefix(parent, "/api/trip-update/{tripId}", MethodHandlers{
		"get": h.GetTripUpdateHandler(),
	})
	_ = RegisterPathPrefix(parent, "/api/health", MethodHandlers{
		"get": h.HealthHandler(),
	})

	// Health check
	_ = RegisterPathPrefix(parent, "/alive", MethodHandlers{
		"get": h.AliveHandler(),
	})
	_ = RegisterPathPrefix(parent, "/ready", MethodHandlers{
		"get": h.ReadyHandler(),
	})
}
