package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alwitt/livetransit/common"
	"github.com/alwitt/livetransit/decoder"
	"github.com/alwitt/livetransit/metrics"
	"github.com/alwitt/livetransit/snapshot"
	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

// Forwarder receives every record accepted into the snapshot store
type Forwarder interface {
	// Forward pass on an accepted record as stored. Failures stay with the forwarder.
	Forward(ctxt context.Context, feed decoder.Variant, record snapshot.Record)
}

// StreamClient maintains a connection to one feed and keeps its snapshot store current
type StreamClient interface {
	// Start launch the connection loop. It runs until the context is cancelled.
	Start(ctxt context.Context, wg *sync.WaitGroup) error
	// Status fetch the current diagnostic view
	Status() Status
}

// StreamClientParams stream client parameters
type StreamClientParams struct {
	// Variant the kind of telemetry on the feed
	Variant decoder.Variant
	// URL the feed endpoint
	URL string `validate:"required"`
	// ReconnectDelay the fixed wait before reconnecting
	ReconnectDelay time.Duration `validate:"gt=0"`
	// Dialer opens the feed connections
	Dialer Dialer `validate:"required"`
	// Decoder parses the feed frames
	Decoder decoder.Decoder `validate:"required"`
	// Store receives the decoded entities
	Store snapshot.Store `validate:"required"`
	// Forwarder optional consumer of accepted entities
	Forwarder Forwarder
}

// streamClientImpl implements StreamClient
type streamClientImpl struct {
	common.Component
	StreamClientParams
	feedName string
	clock    func() time.Time

	lock    sync.Mutex
	started bool
	status  Status
}

// GetStreamClient define a new StreamClient
func GetStreamClient(params StreamClientParams) (StreamClient, error) {
	feedName := params.Variant.String()
	logTags := log.Fields{
		"module": "feed", "component": "stream-client", "instance": feedName,
	}
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		log.WithError(err).WithFields(logTags).Error("Invalid stream client parameters")
		return nil, err
	}
	return &streamClientImpl{
		Component:          common.Component{LogTags: logTags},
		StreamClientParams: params,
		feedName:           feedName,
		clock:              time.Now,
		status: Status{
			Feed: feedName, URL: params.URL, State: Connecting,
		},
	}, nil
}

// Start launch the connection loop
func (c *streamClientImpl) Start(ctxt context.Context, wg *sync.WaitGroup) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		err := fmt.Errorf("stream client already started")
		log.WithError(err).WithFields(c.LogTags).Error("Unable to start")
		return err
	}
	c.started = true
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithFields(c.LogTags).Infof("Starting feed loop against %s", c.URL)
		defer log.WithFields(c.LogTags).Info("Feed loop exiting")
		c.run(ctxt)
	}()
	return nil
}

// Status fetch the current diagnostic view
func (c *streamClientImpl) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.status
}

// errSessionEnded marks the end of one connection so the retry loop schedules the next
var errSessionEnded = errors.New("feed session ended")

// run connect, read until the connection ends, wait, repeat
func (c *streamClientImpl) run(ctxt context.Context) {
	retry := backoff.WithContext(backoff.NewConstantBackOff(c.ReconnectDelay), ctxt)
	err := backoff.RetryNotify(
		func() error {
			c.runSession(ctxt)
			if ctxt.Err() != nil {
				return backoff.Permanent(ctxt.Err())
			}
			return errSessionEnded
		},
		retry,
		func(_ error, wait time.Duration) {
			c.setState(Reconnecting)
			log.WithFields(c.LogTags).Infof("Reconnecting in %s", wait)
		},
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).WithFields(c.LogTags).Debug("Reconnect loop stopped")
	}
}

// runSession one connection from dial until it ends
func (c *streamClientImpl) runSession(ctxt context.Context) {
	c.lock.Lock()
	c.status.ConnectAttempts++
	c.lock.Unlock()
	c.setState(Connecting)

	conn, err := c.Dialer.Dial(ctxt, c.URL)
	if err != nil {
		if ctxt.Err() != nil {
			return
		}
		log.WithError(err).WithFields(c.LogTags).Errorf("Unable to connect to %s", c.URL)
		metrics.ObserveConnection(c.feedName, metrics.OutcomeFailed)
		c.recordError(err)
		c.setState(Errored)
		return
	}

	c.lock.Lock()
	c.status.Connections++
	c.lock.Unlock()
	c.setState(Open)
	metrics.ObserveConnection(c.feedName, metrics.OutcomeOpened)
	log.WithFields(c.LogTags).Infof("Connected to %s", c.URL)

	// Unblock the read when the process shuts down
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctxt.Done():
			_ = conn.Close()
		case <-sessionDone:
		}
	}()
	defer func() {
		_ = conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctxt.Err() != nil {
				return
			}
			metrics.ObserveConnection(c.feedName, metrics.OutcomeClosed)
			if errors.Is(err, ErrConnectionClosed) {
				log.WithFields(c.LogTags).Infof("Connection closed by %s", c.URL)
				return
			}
			log.WithError(err).WithFields(c.LogTags).Error("Connection failed")
			c.recordError(err)
			c.setState(Errored)
			return
		}
		c.handleFrame(ctxt, frame)
	}
}

// handleFrame decode one frame and apply its entities to the store
func (c *streamClientImpl) handleFrame(ctxt context.Context, frame decoder.Frame) {
	result, err := c.Decoder.Decode(frame)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Warn("Dropping malformed frame")
		metrics.ObserveDecodeError(c.feedName)
		c.lock.Lock()
		c.status.DecodeErrors++
		c.lock.Unlock()
		c.recordError(err)
		return
	}
	metrics.ObserveEntities(c.feedName, metrics.ResultKeyless, result.Keyless)
	if len(result.Entities) == 0 {
		return
	}
	for _, entity := range result.Entities {
		record := c.Store.Put(entity.Key, entity.Payload)
		if c.Forwarder != nil {
			c.Forwarder.Forward(ctxt, c.Variant, record)
		}
	}
	metrics.ObserveEntities(c.feedName, metrics.ResultAccepted, len(result.Entities))

	now := c.clock()
	c.lock.Lock()
	defer c.lock.Unlock()
	c.status.AcceptedEntities += uint64(len(result.Entities))
	c.status.LastMessageAt = &now
	c.status.LastError = nil
	c.status.LastErrorAt = nil
}

func (c *streamClientImpl) setState(state ConnectionState) {
	c.lock.Lock()
	c.status.State = state
	c.lock.Unlock()
	metrics.SetFeedState(c.feedName, int(state))
}

func (c *streamClientImpl) recordError(err error) {
	msg := err.Error()
	now := c.clock()
	c.lock.Lock()
	defer c.lock.Unlock()
	c.status.LastError = &msg
	c.status.LastErrorAt = &now
}
