package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livetransit"

const (
	// ResultAccepted entity written into the snapshot store
	ResultAccepted = "accepted"
	// ResultKeyless entity dropped for lack of a key
	ResultKeyless = "keyless"

	// OutcomeOpened connection established
	OutcomeOpened = "opened"
	// OutcomeFailed connection attempt failed
	OutcomeFailed = "failed"
	// OutcomeClosed established connection ended
	OutcomeClosed = "closed"

	// ResultSuccess operation succeeded
	ResultSuccess = "success"
	// ResultFailure operation failed
	ResultFailure = "failure"
	// ResultDropped work discarded before it was attempted
	ResultDropped = "dropped"
)

var (
	feedEntities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "entities_total",
			Help:      "Decoded feed entities by result",
		},
		[]string{"feed", "result"},
	)
	feedDecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "decode_errors_total",
			Help:      "Feed frames dropped as malformed",
		},
		[]string{"feed"},
	)
	feedConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connections_total",
			Help:      "Feed connection lifecycle events by outcome",
		},
		[]string{"feed", "outcome"},
	)
	feedState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "state",
			Help:      "Feed connection state (0 connecting, 1 open, 2 reconnecting, 3 errored)",
		},
		[]string{"feed"},
	)
	snapshotEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "evictions_total",
			Help:      "Snapshot entries removed as stale",
		},
		[]string{"store"},
	)
	relayPublish = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "publish_total",
			Help:      "Relay publish attempts by result",
		},
		[]string{"result"},
	)
)

// Register registers the instruments with a registry
func Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		feedEntities,
		feedDecodeErrors,
		feedConnections,
		feedState,
		snapshotEvictions,
		relayPublish,
	} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// RegisterStoreSize registers a gauge reporting the current size of a snapshot store
func RegisterStoreSize(reg prometheus.Registerer, store string, size func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "snapshot",
			Name:        "entries",
			Help:        "Current snapshot entries",
			ConstLabels: prometheus.Labels{"store": store},
		},
		func() float64 { return float64(size()) },
	))
}

// ObserveEntities record decoded entities of a feed
func ObserveEntities(feed, result string, count int) {
	if count > 0 {
		feedEntities.WithLabelValues(feed, result).Add(float64(count))
	}
}

// ObserveDecodeError record a malformed frame
func ObserveDecodeError(feed string) {
	feedDecodeErrors.WithLabelValues(feed).Inc()
}

// ObserveConnection record a connection lifecycle event
func ObserveConnection(feed, outcome string) {
	feedConnections.WithLabelValues(feed, outcome).Inc()
}

// SetFeedState record the current connection state of a feed
func SetFeedState(feed string, state int) {
	feedState.WithLabelValues(feed).Set(float64(state))
}

// ObserveEvictions record stale entries removed from a store
func ObserveEvictions(store string, count int) {
	if count > 0 {
		snapshotEvictions.WithLabelValues(store).Add(float64(count))
	}
}

// ObserveRelayPublish record a relay publish attempt
func ObserveRelayPublish(result string) {
	relayPublish.WithLabelValues(result).Inc()
}
