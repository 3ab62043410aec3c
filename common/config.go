package common

import "github.com/spf13/viper"

// ===============================================================================
// Feed Related Config

// FeedConfig defines the parameters for one upstream streaming feed
type FeedConfig struct {
	// URL is the websocket endpoint of the feed
	URL string `mapstructure:"url" json:"url" yaml:"url" validate:"required,url,startswith=ws"`
	// ReconnectDelay is the fixed wait between a connection ending and the next attempt in seconds
	ReconnectDelay int `mapstructure:"reconnect_delay_sec" json:"reconnect_delay_sec" yaml:"reconnect_delay_sec" validate:"gte=1"`
	// HandshakeTimeout is the max duration of the websocket handshake in seconds
	HandshakeTimeout int `mapstructure:"handshake_timeout_sec" json:"handshake_timeout_sec" yaml:"handshake_timeout_sec" validate:"gte=1"`
	// ReadIdleTimeout is the max duration without an inbound frame before the
	// connection is considered dead, in seconds. Zero disables the check.
	ReadIdleTimeout int `mapstructure:"read_idle_timeout_sec" json:"read_idle_timeout_sec" yaml:"read_idle_timeout_sec" validate:"gte=0"`
	// MaxMessageBytes is the largest inbound frame accepted
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" json:"max_message_bytes" yaml:"max_message_bytes" validate:"gte=1024"`
}

// FeedsConfig defines the two telemetry feeds
type FeedsConfig struct {
	// VehiclePositions is the vehicle position feed
	VehiclePositions FeedConfig `mapstructure:"vehicle_positions" json:"vehicle_positions" yaml:"vehicle_positions" validate:"required"`
	// TripUpdates is the trip update feed
	TripUpdates FeedConfig `mapstructure:"trip_updates" json:"trip_updates" yaml:"trip_updates" validate:"required"`
}

// SnapshotConfig defines the snapshot store parameters
type SnapshotConfig struct {
	// StaleAfter is the max age of a snapshot entry in seconds
	StaleAfter int `mapstructure:"stale_after_sec" json:"stale_after_sec" yaml:"stale_after_sec" validate:"gte=1"`
}

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" yaml:"wait_interval_sec" validate:"gte=1"`
}

// RelayConfig defines parameters for republishing accepted records onto NATS
type RelayConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" yaml:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" yaml:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" yaml:"reconnect" validate:"required"`
	// SubjectPrefix is prepended to every relay subject
	SubjectPrefix string `mapstructure:"subject_prefix" json:"subject_prefix" yaml:"subject_prefix" validate:"required"`
	// UseJetStream publishes through JetStream instead of core NATS
	UseJetStream bool `mapstructure:"use_jetstream" json:"use_jetstream" yaml:"use_jetstream"`
	// Stream is the JetStream stream to capture the relay subjects with. Only used with JetStream.
	Stream *RelayStreamConfig `mapstructure:"stream,omitempty" json:"stream,omitempty" yaml:"stream,omitempty" validate:"omitempty"`
}

// RelayStreamConfig defines the JetStream stream the relay maintains
type RelayStreamConfig struct {
	// Name is the stream name
	Name string `mapstructure:"name" json:"name" yaml:"name" validate:"required"`
	// MaxAge is how long a relayed record is retained, zero keeps it until other limits apply
	MaxAge int `mapstructure:"max_age_sec" json:"max_age_sec" yaml:"max_age_sec" validate:"gte=0"`
	// MaxMsgsPerSubject is the number of records kept per entity, zero is unlimited
	MaxMsgsPerSubject int64 `mapstructure:"max_msgs_per_subject" json:"max_msgs_per_subject" yaml:"max_msgs_per_subject" validate:"gte=0"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" yaml:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" yaml:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" yaml:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header" yaml:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers" yaml:"do_not_log_headers"`
}

// EndpointConfig defines API endpoint config
type EndpointConfig struct {
	// PathPrefix is the end-point path prefix for the APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" yaml:"path_prefix" validate:"required"`
}

// CORSConfig defines the cross-origin policy for browser map clients
type CORSConfig struct {
	// AllowedOrigins is the list of origins allowed to call the API
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// APIServerConfig defines configuration for the read API server
type APIServerConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" yaml:"server_config" validate:"required"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" yaml:"logging_config" validate:"required"`
	// Endpoints is the API endpoint config parameters
	Endpoints EndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" yaml:"endpoint_config" validate:"required"`
	// CORS is the cross-origin policy
	CORS CORSConfig `mapstructure:"cors" json:"cors" yaml:"cors"`
}

// ===============================================================================
// Supporting Config

// ScheduleConfig defines the GTFS static database used for schedule lookups
type ScheduleConfig struct {
	// SQLitePath is the path to the GTFS SQLite database
	SQLitePath string `mapstructure:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path" validate:"required"`
}

// DiagnosticsConfig defines periodic status reporting
type DiagnosticsConfig struct {
	// StatusLogInterval is the interval between feed status log lines in seconds.
	// Zero disables the report.
	StatusLogInterval int `mapstructure:"status_log_interval_sec" json:"status_log_interval_sec" yaml:"status_log_interval_sec" validate:"gte=0"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config
type SystemConfig struct {
	// Feeds are the upstream streaming feeds
	Feeds FeedsConfig `mapstructure:"feeds" json:"feeds" yaml:"feeds" validate:"required"`
	// Snapshot are the snapshot store parameters
	Snapshot SnapshotConfig `mapstructure:"snapshot" json:"snapshot" yaml:"snapshot" validate:"required"`
	// API are the read API server configs
	API APIServerConfig `mapstructure:"api" json:"api" yaml:"api" validate:"required"`
	// Relay are the optional NATS relay configs
	Relay *RelayConfig `mapstructure:"relay,omitempty" json:"relay,omitempty" yaml:"relay,omitempty" validate:"omitempty"`
	// Schedule are the optional GTFS static database configs
	Schedule *ScheduleConfig `mapstructure:"schedule,omitempty" json:"schedule,omitempty" yaml:"schedule,omitempty" validate:"omitempty"`
	// Diagnostics are the periodic status report configs
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" json:"diagnostics" yaml:"diagnostics"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default feed settings
	viper.SetDefault(
		"feeds.vehicle_positions.url", "wss://api.metro.net/ws/LACMTA_Rail/vehicle_positions",
	)
	viper.SetDefault(
		"feeds.trip_updates.url", "wss://api.metro.net/ws/LACMTA_Rail/trip_updates",
	)
	for _, feed := range []string{"vehicle_positions", "trip_updates"} {
		viper.SetDefault("feeds."+feed+".reconnect_delay_sec", 2)
		viper.SetDefault("feeds."+feed+".handshake_timeout_sec", 10)
		viper.SetDefault("feeds."+feed+".read_idle_timeout_sec", 120)
		viper.SetDefault("feeds."+feed+".max_message_bytes", 4*1024*1024)
	}

	// Default snapshot settings
	viper.SetDefault("snapshot.stale_after_sec", 240)

	// Default API server settings
	viper.SetDefault("api.endpoint_config.path_prefix", "/")
	viper.SetDefault("api.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("api.server_config.listen_port", 8088)
	viper.SetDefault("api.server_config.read_timeout_sec", 60)
	viper.SetDefault("api.server_config.write_timeout_sec", 60)
	viper.SetDefault("api.server_config.idle_timeout_sec", 600)
	viper.SetDefault("api.logging_config.request_id_header", "Livetransit-Request-ID")
	viper.SetDefault(
		"api.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
	viper.SetDefault("api.cors.allowed_origins", []string{"*"})

	// Default diagnostics settings
	viper.SetDefault("diagnostics.status_log_interval_sec", 60)
}
