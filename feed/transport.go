package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/livetransit/decoder"
	"github.com/gorilla/websocket"
)

// ErrTransport connection level failure
var ErrTransport = errors.New("feed transport failure")

// ErrConnectionClosed the remote end closed the connection cleanly
var ErrConnectionClosed = errors.New("feed connection closed")

// Conn one open feed connection
type Conn interface {
	// ReadFrame block until the next frame arrives.
	//
	// A clean remote close returns ErrConnectionClosed; any other failure
	// returns an error wrapping ErrTransport.
	ReadFrame() (decoder.Frame, error)
	// Close close the connection. Safe to call concurrently with ReadFrame.
	Close() error
}

// Dialer opens feed connections
type Dialer interface {
	// Dial open a new connection to a feed endpoint
	Dial(ctxt context.Context, url string) (Conn, error)
}

// WebsocketParams websocket transport parameters
type WebsocketParams struct {
	// HandshakeTimeout max duration of the opening handshake
	HandshakeTimeout time.Duration
	// ReadIdleTimeout max wait for the next frame, zero waits forever
	ReadIdleTimeout time.Duration
	// MaxMessageBytes largest frame accepted
	MaxMessageBytes int64
}

// websocketDialer implements Dialer over gorilla websocket
type websocketDialer struct {
	dialer *websocket.Dialer
	params WebsocketParams
}

// GetWebsocketDialer define a new websocket Dialer
func GetWebsocketDialer(params WebsocketParams) Dialer {
	return &websocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: params.HandshakeTimeout,
		},
		params: params,
	}
}

// Dial open a new websocket connection
func (d *websocketDialer) Dial(ctxt context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctxt, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake rejected with HTTP %d: %v", ErrTransport, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if d.params.MaxMessageBytes > 0 {
		conn.SetReadLimit(d.params.MaxMessageBytes)
	}
	wrapped := &websocketConn{conn: conn, idleTimeout: d.params.ReadIdleTimeout}
	conn.SetPingHandler(func(appData string) error {
		wrapped.extendDeadline()
		err := conn.WriteControl(
			websocket.PongMessage, []byte(appData), time.Now().Add(time.Second),
		)
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return wrapped, nil
}

// websocketConn implements Conn
type websocketConn struct {
	conn        *websocket.Conn
	idleTimeout time.Duration
}

func (c *websocketConn) extendDeadline() {
	if c.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
}

// ReadFrame block until the next data frame arrives
func (c *websocketConn) ReadFrame() (decoder.Frame, error) {
	c.extendDeadline()
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(
			err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
		) {
			return decoder.Frame{}, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return decoder.Frame{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return decoder.Frame{Binary: msgType == websocket.BinaryMessage, Data: data}, nil
}

// Close close the websocket connection
func (c *websocketConn) Close() error {
	return c.conn.Close()
}
