package core

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alwitt/livetransit/common"
	"github.com/apex/log"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestNATSConnectParams(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	cfg := common.RelayConfig{
		ServerURI:      "nats://127.0.0.1:4222",
		ConnectTimeout: 5,
		Reconnect:      common.NATSReconnectConfig{MaxAttempts: -1, WaitInterval: 3},
		SubjectPrefix:  "livetransit",
		UseJetStream:   true,
	}
	params := GetNATSConnectParams(&cfg, log.Fields{"module": "core_test"})
	assert.Equal("nats://127.0.0.1:4222", params.ServerURI)
	assert.Equal(time.Second*5, params.ConnectTimeout)
	assert.Equal(-1, params.MaxReconnectAttempt)
	assert.Equal(time.Second*3, params.ReconnectWait)
	assert.True(params.UseJetStream)
	assert.NotNil(params.OnDisconnectCallback)
	assert.NotNil(params.OnReconnectCallback)
	assert.NotNil(params.OnCloseCallback)
}

func TestNatsClientPublish(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	serverURI := os.Getenv("UNIT_TEST_NATS_URI")
	if serverURI == "" {
		t.Skip("UNIT_TEST_NATS_URI not set")
	}

	uut, err := GetNatsClient(NATSConnectParams{
		ServerURI:           serverURI,
		ConnectTimeout:      time.Second,
		MaxReconnectAttempt: 0,
		ReconnectWait:       time.Second,
	})
	assert.Nil(err)
	defer uut.Close(context.Background())

	received := make(chan *nats.Msg, 1)
	sub, err := uut.nc.ChanSubscribe("ut.core.publish", received)
	assert.Nil(err)
	defer func() {
		_ = sub.Unsubscribe()
	}()

	utCtxt, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	assert.Nil(uut.Publish(utCtxt, "ut.core.publish", []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal("hello", string(msg.Data))
	case <-utCtxt.Done():
		assert.Fail("message not delivered")
	}
}
