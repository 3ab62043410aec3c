package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/alwitt/livetransit/common"
	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/feed"
	"github.com/alwitt/livetransit/metrics"
	"github.com/alwitt/livetransit/snapshot"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// Publisher sends raw messages on a subject
type Publisher interface {
	Publish(ctxt context.Context, subject string, data []byte) error
}

// Message what is published for every accepted entity
type Message struct {
	Key        string           `json:"key"`
	Feed       string           `json:"feed"`
	ReceivedAt time.Time        `json:"received_at"`
	Payload    decoder.Document `json:"payload"`
}

// Relay fans accepted entities out to a message broker.
//
// Forward never blocks; when the queue is full the record is dropped and counted.
type Relay interface {
	feed.Forwarder
	// Start launch the publishing worker. It runs until the context is cancelled.
	Start(ctxt context.Context, wg *sync.WaitGroup) error
	// Dropped number of entities discarded because the queue was full
	Dropped() uint64
}

// RelayParams Relay parameters
type RelayParams struct {
	// Publisher broker transport
	Publisher Publisher `validate:"required"`
	// SubjectPrefix leading subject token(s)
	SubjectPrefix string `validate:"required"`
	// QueueDepth number of entities buffered ahead of the publisher
	QueueDepth int `validate:"gte=1"`
	// PublishTimeout max time for one publish
	PublishTimeout time.Duration `validate:"gt=0"`
}

// relayImpl implements Relay
type relayImpl struct {
	common.Component
	RelayParams
	worker  common.TaskProcessor
	dropped uint64
}

// GetRelay define a new Relay
func GetRelay(params RelayParams) (Relay, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, err
	}
	worker, err := common.GetNewTaskProcessorInstance(
		fmt.Sprintf("relay/%s", params.SubjectPrefix), params.QueueDepth,
	)
	if err != nil {
		return nil, err
	}
	instance := &relayImpl{
		Component: common.Component{
			LogTags: log.Fields{
				"module": "relay", "component": "publisher", "instance": params.SubjectPrefix,
			},
		},
		RelayParams: params,
		worker:      worker,
	}
	if err := worker.AddToTaskExecutionMap(reflect.TypeOf(Message{}), instance.publish); err != nil {
		return nil, err
	}
	return instance, nil
}

// SanitizeSubjectToken make a string safe for use as one subject token
func SanitizeSubjectToken(token string) string {
	if token == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		switch r {
		case '.', '*', '>':
			return '_'
		}
		return r
	}, token)
}

// Subject the subject an entity of a feed is published on
func Subject(prefix, feedName, key string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, feedName, SanitizeSubjectToken(key))
}

// Forward queue an accepted record for publishing
func (r *relayImpl) Forward(_ context.Context, variant decoder.Variant, record snapshot.Record) {
	msg := Message{
		Key:        record.Key,
		Feed:       variant.String(),
		ReceivedAt: record.ReceivedAt,
		Payload:    record.Payload,
	}
	if err := r.worker.Submit(msg); err != nil {
		atomic.AddUint64(&r.dropped, 1)
		metrics.ObserveRelayPublish(metrics.ResultDropped)
		log.WithError(err).WithFields(r.LogTags).Debugf("Dropping '%s'", record.Key)
	}
}

// Dropped number of entities discarded because the queue was full
func (r *relayImpl) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// Start launch the publishing worker
func (r *relayImpl) Start(ctxt context.Context, wg *sync.WaitGroup) error {
	return r.worker.StartEventLoop(ctxt, wg)
}

// publish send one queued message
func (r *relayImpl) publish(ctxt context.Context, param interface{}) error {
	msg, ok := param.(Message)
	if !ok {
		return fmt.Errorf("unexpected relay task %T", param)
	}
	subject := Subject(r.SubjectPrefix, msg.Feed, msg.Key)
	payload, err := json.Marshal(&msg)
	if err != nil {
		metrics.ObserveRelayPublish(metrics.ResultFailure)
		return fmt.Errorf("unable to serialize '%s': %w", msg.Key, err)
	}
	pubCtxt, cancel := context.WithTimeout(ctxt, r.PublishTimeout)
	defer cancel()
	if err := r.Publisher.Publish(pubCtxt, subject, payload); err != nil {
		metrics.ObserveRelayPublish(metrics.ResultFailure)
		return fmt.Errorf("publish on '%s' failed: %w", subject, err)
	}
	metrics.ObserveRelayPublish(metrics.ResultSuccess)
	return nil
}
