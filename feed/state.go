package feed

import (
	"fmt"
	"time"
)

// ConnectionState lifecycle state of a stream client
type ConnectionState int

const (
	// Connecting a connection attempt is in progress
	Connecting ConnectionState = iota
	// Open the connection is established and frames are flowing
	Open
	// Reconnecting the connection ended, waiting out the reconnect delay
	Reconnecting
	// Errored the connection hit a transport failure
	Errored
)

// String toString function
func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Reconnecting:
		return "reconnecting"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status diagnostic view of a stream client
type Status struct {
	// Feed the feed name
	Feed string `json:"feed"`
	// URL the feed endpoint
	URL string `json:"url"`
	// State the current connection state
	State ConnectionState `json:"state"`
	// LastError the most recent decode or transport error, cleared on the next accepted message
	LastError *string `json:"last_error"`
	// LastErrorAt when LastError was recorded
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	// ConnectAttempts the number of connection attempts made
	ConnectAttempts uint64 `json:"connect_attempts"`
	// Connections the number of connections successfully opened
	Connections uint64 `json:"connections"`
	// AcceptedEntities the number of entities written into the snapshot store
	AcceptedEntities uint64 `json:"accepted_entities"`
	// DecodeErrors the number of frames dropped as malformed
	DecodeErrors uint64 `json:"decode_errors"`
	// LastMessageAt when the last entity was accepted
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}
