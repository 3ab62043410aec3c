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
	"github.com/alwitt/livetransit/schedule"
	"github.com/apex/log"
	"github.com/gorilla/mux"
)

// APIRestScheduleHandler REST handler for GTFS static reference lookups
type APIRestScheduleHandler struct {
	goutils.RestAPIHandler
	repo schedule.Repository
}

// GetAPIRestScheduleHandler define APIRestScheduleHandler
func GetAPIRestScheduleHandler(
	repo schedule.Repository, httpConfig *common.APIServerConfig,
) (APIRestScheduleHandler, error) {
	if repo == nil {
		return APIRestScheduleHandler{}, errors.New("no schedule repository provided")
	}
	logTags := log.Fields{
		"module":    "apis",
		"component": "schedule",
	}
	return APIRestScheduleHandler{
		RestAPIHandler: defineRestAPIHandler(logTags, &httpConfig.Logging),
		repo:           repo,
	}, nil
}

// lookupFailure convert a repository error into a response
func (h APIRestScheduleHandler) lookupFailure(r *http.Request, err error) (int, interface{}) {
	if errors.Is(err, schedule.ErrNotFound) {
		return http.StatusNotFound, ErrorResponse{OK: false, Error: notFoundMessage}
	}
	log.WithError(err).WithFields(h.GetLogTagsForContext(r.Context())).Error(
		"Schedule lookup failed",
	)
	return http.StatusInternalServerError, ErrorResponse{OK: false, Error: err.Error()}
}

func (h APIRestScheduleHandler) write(
	w http.ResponseWriter, r *http.Request, respCode int, respBody interface{},
) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
		log.WithError(err).WithFields(h.GetLogTagsForContext(r.Context())).Error(
			"Failed to form response",
		)
	}
}

// APIRestRespRoutes response for listing routes
type APIRestRespRoutes struct {
	OK     bool             `json:"ok"`
	Routes []schedule.Route `json:"routes"`
}

// ListRoutes godoc
// @Summary List GTFS routes
// @tags Schedule
// @Produce json
// @Success 200 {object} APIRestRespRoutes "success"
// @Failure 500 {object} ErrorResponse "error"
// @Router /api/gtfs/routes [get]
func (h APIRestScheduleHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var respBody interface{}
	defer func() {
		h.write(w, r, respCode, respBody)
	}()

	routes, err := h.repo.ListRoutes(r.Context())
	if err != nil {
		respCode, respBody = h.lookupFailure(r, err)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespRoutes{OK: true, Routes: routes}
}

// ListRoutesHandler Wrapper around ListRoutes
func (h APIRestScheduleHandler) ListRoutesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ListRoutes(w, r)
	}
}

// APIRestRespRoute response for one route
type APIRestRespRoute struct {
	OK    bool           `json:"ok"`
	Route schedule.Route `json:"route"`
}

// GetRoute godoc
// @Summary Get one GTFS route
// @tags Schedule
// @Produce json
// @Param routeId path string true "GTFS route ID"
// @Success 200 {object} APIRestRespRoute "success"
// @Failure 404 {object} ErrorResponse "error"
// @Failure 500 {object} ErrorResponse "error"
// @Router /api/gtfs/routes/{routeId} [get]
func (h APIRestScheduleHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var respBody interface{}
	defer func() {
		h.write(w, r, respCode, respBody)
	}()

	route, err := h.repo.GetRoute(r.Context(), mux.Vars(r)["routeId"])
	if err != nil {
		respCode, respBody = h.lookupFailure(r, err)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespRoute{OK: true, Route: route}
}

// GetRouteHandler Wrapper around GetRoute
func (h APIRestScheduleHandler) GetRouteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetRoute(w, r)
	}
}

// APIRestRespStop response for one stop
type APIRestRespStop struct {
	OK   bool          `json:"ok"`
	Stop schedule.Stop `json:"stop"`
}

// GetStop godoc
// @Summary Get one GTFS stop
// @tags Schedule
// @Produce json
// @Param stopId path string true "GTFS stop ID"
// @Success 200 {object} APIRestRespStop "success"
// @Failure 404 {object} ErrorResponse "error"
// @Failure 500 {object} ErrorResponse "error"
// @Router /api/gtfs/stops/{stopId} [get]
func (h APIRestScheduleHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	var respCode int
	var respBody interface{}
	defer func() {
		h.write(w, r, respCode, respBody)
	}()

	stop, err := h.repo.GetStop(r.Context(), mux.Vars(r)["stopId"])
	if err != nil {
		respCode, respBody = h.lookupFailure(r, err)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespStop{OK: true, Stop: stop}
}

// GetStopHandler Wrapper around GetStop
func (h APIRestScheduleHandler) GetStopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.GetStop(w, r)
	}
}

// RegisterScheduleAPI attach the schedule routes to a router
func RegisterScheduleAPI(parent *mux.Router, h APIRestScheduleHandler) {
	routesRouter := RegisterPathPrefix(parent, "/api/gtfs/routes", MethodHandlers{
		"get": h.ListRoutesHandler(),
	})
	_ = RegisterPathPrefix(routesRouter, "/{routeId}", MethodHandlers{
		"get": h.GetRouteHandler(),
	})
	_ = RegisterPathPrefix(parent, "/api/gtfs/stops/{stopId}", MethodHandlers{
		"get": h.GetStopHandler(),
	})
}
