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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alwitt/livetransit/apis"
	"github.com/alwitt/livetransit/common"
	"github.com/alwitt/livetransit/core"
	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/feed"
	"github.com/alwitt/livetransit/metrics"
	"github.com/alwitt/livetransit/query"
	"github.com/alwitt/livetransit/relay"
	"github.com/alwitt/livetransit/schedule"
	"github.com/alwitt/livetransit/snapshot"
	"github.com/apex/log"
	"github.com/go-chi/cors"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	relayQueueDepth     = 4096
	relayPublishTimeout = time.Second * 5
)

// defineStreamClient build the stream client of one feed
func defineStreamClient(
	variant decoder.Variant,
	config common.FeedConfig,
	store snapshot.Store,
	forwarder feed.Forwarder,
) (feed.StreamClient, error) {
	return feed.GetStreamClient(feed.StreamClientParams{
		Variant:        variant,
		URL:            config.URL,
		ReconnectDelay: common.Seconds(config.ReconnectDelay),
		Dialer: feed.GetWebsocketDialer(feed.WebsocketParams{
			HandshakeTimeout: common.Seconds(config.HandshakeTimeout),
			ReadIdleTimeout:  common.Seconds(config.ReadIdleTimeout),
			MaxMessageBytes:  config.MaxMessageBytes,
		}),
		Decoder:   decoder.GetDecoder(variant),
		Store:     store,
		Forwarder: forwarder,
	})
}

// defineRelayStream build the JetStream stream parameters for the relay subjects
func defineRelayStream(config *common.RelayConfig) core.StreamParam {
	param := core.StreamParam{
		Name:     config.Stream.Name,
		Subjects: []string{config.SubjectPrefix + ".>"},
	}
	if config.Stream.MaxAge > 0 {
		maxAge := common.Seconds(config.Stream.MaxAge)
		param.MaxAge = &maxAge
	}
	if config.Stream.MaxMsgsPerSubject > 0 {
		perSubject := config.Stream.MaxMsgsPerSubject
		param.MaxMsgsPerSubject = &perSubject
	}
	return param
}

// defineMetricsRegistry build the registry behind /metrics
func defineMetricsRegistry(stores map[string]snapshot.Store) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}
	for name, store := range stores {
		if err := metrics.RegisterStoreSize(registry, name, store.Len); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// defineAPIRouter build the HTTP handler chain for the API server
func defineAPIRouter(
	config *common.APIServerConfig,
	instance string,
	live query.LiveQuery,
	scheduleRepo schedule.Repository,
	registry *prometheus.Registry,
) (http.Handler, error) {
	liveHandler, err := apis.GetAPIRestLiveHandler(live, config)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(router, config.Endpoints.PathPrefix, nil)

	apis.RegisterLiveAPI(mainRouter, liveHandler)

	if scheduleRepo != nil {
		scheduleHandler, err := apis.GetAPIRestScheduleHandler(scheduleRepo, config)
		if err != nil {
			return nil, err
		}
		apis.RegisterScheduleAPI(mainRouter, scheduleHandler)
	}

	// Metrics
	_ = apis.RegisterPathPrefix(mainRouter, "/metrics", apis.MethodHandlers{
		"get": promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP,
	})

	// Add request ID and logging
	router.Use(apis.RequestIDMiddleware(config.Logging.RequestIDHeader))
	accessLog := apis.GetRequestLogger(instance)
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(accessLog, next)
	})

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{config.Logging.RequestIDHeader},
		MaxAge:         300,
	})
	return corsHandler(router), nil
}

// logDiagnostics log the feed status and snapshot sizes
func logDiagnostics(
	logTags log.Fields, clients []feed.StreamClient, stores map[string]snapshot.Store,
) {
	for _, client := range clients {
		status := client.Status()
		lastError := ""
		if status.LastError != nil {
			lastError = *status.LastError
		}
		log.WithFields(logTags).Infof(
			"Feed %s state=%s attempts=%d connections=%d accepted=%d decode-errors=%d last-error='%s'",
			status.Feed,
			status.State,
			status.ConnectAttempts,
			status.Connections,
			status.AcceptedEntities,
			status.DecodeErrors,
			lastError,
		)
	}
	for name, store := range stores {
		log.WithFields(logTags).Infof("Snapshot %s holds %d entries", name, store.Len())
	}
}

// RunServer run the live transit server until the context ends
func RunServer(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "server",
		"instance":  instance,
	}

	vehicles := snapshot.GetStore(decoder.VehiclePosition.String(), nil)
	tripUpdates := snapshot.GetStore(decoder.TripUpdate.String(), nil)
	stores := map[string]snapshot.Store{
		decoder.VehiclePosition.String(): vehicles,
		decoder.TripUpdate.String():      tripUpdates,
	}

	registry, err := defineMetricsRegistry(stores)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define metrics registry")
		return err
	}

	localCtxt, lclCancel := context.WithCancel(runTimeContext)
	defer lclCancel()

	// -------------------------------------------------------------------
	// Optional relay

	var forwarder feed.Forwarder
	if config.Relay != nil {
		natsClient, err := core.GetNatsClient(core.GetNATSConnectParams(config.Relay, logTags))
		if err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Failed to define NATS client with %s", config.Relay.ServerURI,
			)
			return err
		}
		defer natsClient.Close(context.Background())

		if config.Relay.UseJetStream && config.Relay.Stream != nil {
			if err := natsClient.EnsureStream(defineRelayStream(config.Relay)); err != nil {
				log.WithError(err).WithFields(logTags).Errorf(
					"Unable to prepare relay stream %s", config.Relay.Stream.Name,
				)
				return err
			}
		}

		fanOut, err := relay.GetRelay(relay.RelayParams{
			Publisher:      natsClient,
			SubjectPrefix:  config.Relay.SubjectPrefix,
			QueueDepth:     relayQueueDepth,
			PublishTimeout: relayPublishTimeout,
		})
		if err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to define relay")
			return err
		}
		if err := fanOut.Start(localCtxt, wg); err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to start relay")
			return err
		}
		forwarder = fanOut
	}

	// -------------------------------------------------------------------
	// Feeds

	vehicleClient, err := defineStreamClient(
		decoder.VehiclePosition, config.Feeds.VehiclePositions, vehicles, forwarder,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define vehicle position feed")
		return err
	}
	tripClient, err := defineStreamClient(
		decoder.TripUpdate, config.Feeds.TripUpdates, tripUpdates, forwarder,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define trip update feed")
		return err
	}
	clients := []feed.StreamClient{vehicleClient, tripClient}
	for _, client := range clients {
		if err := client.Start(localCtxt, wg); err != nil {
			return err
		}
	}

	live, err := query.GetLiveQuery(query.LiveQueryParams{
		Vehicles:       vehicles,
		TripUpdates:    tripUpdates,
		VehicleFeed:    vehicleClient,
		TripUpdateFeed: tripClient,
		StaleAfter:     common.Seconds(config.Snapshot.StaleAfter),
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define live query")
		return err
	}

	// -------------------------------------------------------------------
	// Optional schedule lookups

	var scheduleRepo schedule.Repository
	if config.Schedule != nil {
		db, err := schedule.OpenSQLite(localCtxt, config.Schedule.SQLitePath)
		if err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Unable to open schedule database %s", config.Schedule.SQLitePath,
			)
			return err
		}
		scheduleRepo = schedule.GetRepository(db, config.Schedule.SQLitePath)
		defer func() {
			if err := scheduleRepo.Close(); err != nil {
				log.WithError(err).WithFields(logTags).Error("Schedule database close failed")
			}
		}()
	}

	// -------------------------------------------------------------------
	// Periodic diagnostics

	if config.Diagnostics.StatusLogInterval > 0 {
		timer, err := common.GetIntervalTimerInstance(localCtxt, "diagnostics", wg)
		if err != nil {
			return err
		}
		if err := timer.Start(
			common.Seconds(config.Diagnostics.StatusLogInterval),
			func(_ context.Context) error {
				logDiagnostics(logTags, clients, stores)
				return nil
			},
		); err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to start diagnostics timer")
			return err
		}
		defer func() {
			_ = timer.Stop()
		}()
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	httpHandler, err := defineAPIRouter(&config.API, instance, live, scheduleRepo, registry)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define HTTP handler")
		return err
	}

	serverListen := fmt.Sprintf(
		"%s:%d", config.API.Server.ListenOn, config.API.Server.Port,
	)
	httpSrv := &http.Server{
		Addr:         serverListen,
		ReadTimeout:  common.Seconds(config.API.Server.ReadTimeout),
		WriteTimeout: common.Seconds(config.API.Server.WriteTimeout),
		IdleTimeout:  common.Seconds(config.API.Server.IdleTimeout),
		Handler:      h2c.NewHandler(httpHandler, &http2.Server{}),
	}

	// Cancel runtime context on shutdown
	httpSrv.RegisterOnShutdown(lclCancel)

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).WithFields(logTags).Error("HTTP Server Failure")
			lclCancel()
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-localCtxt.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).WithFields(logTags).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
