package common

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestViperConfigParsing(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	validate := validator.New()

	// Case 0: parse config with no defaults in place
	{
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 1: load the configs
	{
		var cfg SystemConfig
		InstallDefaultConfigValues()
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal(240, cfg.Snapshot.StaleAfter)
		assert.Equal(2, cfg.Feeds.VehiclePositions.ReconnectDelay)
		assert.Equal(2, cfg.Feeds.TripUpdates.ReconnectDelay)
		assert.Equal(uint16(8088), cfg.API.Server.Port)
		assert.Nil(cfg.Relay)
		assert.Nil(cfg.Schedule)
	}

	// Case 2: override the feed endpoint and staleness threshold
	{
		config := []byte(`---
feeds:
  vehicle_positions:
    url: ws://127.0.0.1:9000/vehicles
    reconnect_delay_sec: 5
snapshot:
  stale_after_sec: 30`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal("ws://127.0.0.1:9000/vehicles", cfg.Feeds.VehiclePositions.URL)
		assert.Equal(5, cfg.Feeds.VehiclePositions.ReconnectDelay)
		assert.Equal(30, cfg.Snapshot.StaleAfter)
	}

	// Case 3: invalid feed URL scheme
	{
		config := []byte(`---
feeds:
  trip_updates:
    url: http://127.0.0.1:9000/trips`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 4: invalid listen address
	{
		config := []byte(`---
api:
  server_config:
    listen_on: 1243`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 5: relay section requires a subject prefix
	{
		config := []byte(`---
relay:
  server_uri: nats://127.0.0.1:4222
  connect_timeout_sec: 5
  reconnect:
    max_attempts: -1
    wait_interval_sec: 2`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(cfg.Relay)
		assert.NotNil(validate.Struct(&cfg))
	}
}
