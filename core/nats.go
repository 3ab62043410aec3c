package core

import (
	"context"
	"time"

	"github.com/alwitt/livetransit/common"
	"github.com/apex/log"
	"github.com/nats-io/nats.go"
)

// NATSConnectParams NATS connection parameter
type NATSConnectParams struct {
	// ServerURI connect to NATS cluster with URI
	ServerURI string `validate:"required,uri"`
	// ConnectTimeout max time to wait for connection
	ConnectTimeout time.Duration
	// MaxReconnectAttempt on connection failure, max number of reconnect
	// attempt. "-1" means infinite
	MaxReconnectAttempt int
	// ReconnectWait wait duration between reconnect attempts
	ReconnectWait time.Duration
	// UseJetStream publish through JetStream instead of core NATS
	UseJetStream bool
	// OnDisconnectCallback callback on disconnect
	OnDisconnectCallback func(*nats.Conn, error)
	// OnReconnectCallback callback on reconnect
	OnReconnectCallback func(*nats.Conn)
	// OnCloseCallback callback on close
	OnCloseCallback func(*nats.Conn)
}

// GetNATSConnectParams convert relay config into connection parameters.
//
// The connection callbacks log against the given tags.
func GetNATSConnectParams(cfg *common.RelayConfig, logTags log.Fields) NATSConnectParams {
	return NATSConnectParams{
		ServerURI:           cfg.ServerURI,
		ConnectTimeout:      common.Seconds(cfg.ConnectTimeout),
		MaxReconnectAttempt: cfg.Reconnect.MaxAttempts,
		ReconnectWait:       common.Seconds(cfg.Reconnect.WaitInterval),
		UseJetStream:        cfg.UseJetStream,
		OnDisconnectCallback: func(_ *nats.Conn, e error) {
			if e != nil {
				log.WithError(e).WithFields(logTags).Error(
					"Disconnect callback triggered with failure",
				)
			}
		},
		OnReconnectCallback: func(_ *nats.Conn) {
			log.WithFields(logTags).Info("Reconnected with NATS server")
		},
		OnCloseCallback: func(_ *nats.Conn) {
			log.WithFields(logTags).Info("Disconnected from NATS server")
		},
	}
}

// NatsClient NATS client used to fan out accepted records
type NatsClient struct {
	common.Component
	nc *nats.Conn
	js nats.JetStreamContext
}

// Close flush and close the NATS client
func (c NatsClient) Close(ctxt context.Context) {
	if err := c.nc.FlushWithContext(ctxt); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("NATS flush failed")
	}
	c.nc.Close()
	log.WithFields(c.LogTags).Infof("Close NATS client")
}

// Publish send one message on a subject.
//
// With JetStream enabled the call waits for the stream ACK.
func (c NatsClient) Publish(ctxt context.Context, subject string, data []byte) error {
	if c.js != nil {
		_, err := c.js.Publish(subject, data, nats.Context(ctxt))
		return err
	}
	return c.nc.Publish(subject, data)
}

// GetNatsClient define a new NATS client
func GetNatsClient(param NATSConnectParams) (NatsClient, error) {
	logTags := log.Fields{
		"module":    "core",
		"component": "nats-client",
		"instance":  param.ServerURI,
	}
	// Create the NATS transport
	nc, err := nats.Connect(
		param.ServerURI,
		nats.Timeout(param.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(param.MaxReconnectAttempt),
		nats.ReconnectWait(param.ReconnectWait),
		nats.DisconnectErrHandler(param.OnDisconnectCallback),
		nats.ReconnectHandler(param.OnReconnectCallback),
		nats.ClosedHandler(param.OnCloseCallback),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("NATS client connect failed")
		return NatsClient{}, err
	}

	client := NatsClient{
		Component: common.Component{LogTags: logTags},
		nc:        nc,
	}
	if !param.UseJetStream {
		log.WithFields(logTags).Info("Created NATS client")
		return client, nil
	}

	// Define the JetStream client
	js, err := nc.JetStream()
	if err != nil {
		log.WithError(err).WithFields(logTags).Error(
			"Failed to define JetStream client",
		)
		nc.Close()
		return NatsClient{}, err
	}
	log.WithFields(logTags).Info("Created JetStream client")
	client.js = js
	return client, nil
}
