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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/alwitt/livetransit/schedule"
	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

type testScheduleRepo struct {
	routes  map[string]schedule.Route
	stops   map[string]schedule.Stop
	failure error
}

func (r *testScheduleRepo) ListRoutes(_ context.Context) ([]schedule.Route, error) {
	if r.failure != nil {
		return nil, r.failure
	}
	result := []schedule.Route{}
	for _, route := range r.routes {
		result = append(result, route)
	}
	return result, nil
}

func (r *testScheduleRepo) GetRoute(_ context.Context, routeID string) (schedule.Route, error) {
	if r.failure != nil {
		return schedule.Route{}, r.failure
	}
	route, ok := r.routes[routeID]
	if !ok {
		return schedule.Route{}, schedule.ErrNotFound
	}
	return route, nil
}

func (r *testScheduleRepo) GetStop(_ context.Context, stopID string) (schedule.Stop, error) {
	if r.failure != nil {
		return schedule.Stop{}, r.failure
	}
	stop, ok := r.stops[stopID]
	if !ok {
		return schedule.Stop{}, schedule.ErrNotFound
	}
	return stop, nil
}

func (r *testScheduleRepo) Close() error {
	return nil
}

func TestScheduleAPI(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	repo := &testScheduleRepo{
		routes: map[string]schedule.Route{
			"801": {ID: "801", ShortName: "A", LongName: "Metro A Line"},
		},
		stops: map[string]schedule.Stop{
			"80101": {ID: "80101", Name: "Downtown Long Beach Station", Lat: 33.768, Lon: -118.1929},
		},
	}
	uut, err := GetAPIRestScheduleHandler(repo, testAPIConfig())
	assert.Nil(err)
	router := mux.NewRouter()
	RegisterScheduleAPI(router, uut)

	// Case 0: list routes
	{
		resp := doGet(router, "/api/gtfs/routes")
		assert.Equal(http.StatusOK, resp.Code)
		var body APIRestRespRoutes
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &body))
		assert.True(body.OK)
		assert.Len(body.Routes, 1)
	}

	// Case 1: one route
	{
		resp := doGet(router, "/api/gtfs/routes/801")
		assert.Equal(http.StatusOK, resp.Code)
		var body APIRestRespRoute
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal("Metro A Line", body.Route.LongName)
	}

	// Case 2: unknown route
	{
		resp := doGet(router, "/api/gtfs/routes/999")
		assert.Equal(http.StatusNotFound, resp.Code)
		var body ErrorResponse
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal("Not found", body.Error)
	}

	// Case 3: one stop
	{
		resp := doGet(router, "/api/gtfs/stops/80101")
		assert.Equal(http.StatusOK, resp.Code)
		var body APIRestRespStop
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal("Downtown Long Beach Station", body.Stop.Name)
	}

	// Case 4: unknown stop
	{
		resp := doGet(router, "/api/gtfs/stops/0")
		assert.Equal(http.StatusNotFound, resp.Code)
	}

	// Case 5: repository failure
	repo.failure = fmt.Errorf("database is locked")
	{
		resp := doGet(router, "/api/gtfs/routes")
		assert.Equal(http.StatusInternalServerError, resp.Code)
		var body ErrorResponse
		assert.Nil(json.Unmarshal(resp.Body.Bytes(), &body))
		assert.False(body.OK)
		assert.Equal("database is locked", body.Error)
	}
}
