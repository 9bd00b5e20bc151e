package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

// TransportSettings tunes the websocket connection to the server.
type TransportSettings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	ReadLimit        int64
	SendBuffer       int
}

func DefaultTransportSettings() *TransportSettings {
	return &TransportSettings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 2 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		ReadLimit:        1 << 20,
		SendBuffer:       256,
	}
}

// Handler consumes inbound envelopes. Calls are made from a single
// goroutine in delivery order.
type Handler interface {
	Handle(env *protocol.Envelope) error
}

// Transport is a websocket connection to the server that reconnects until
// its context ends. After every successful connection it hands the handler
// a synthetic connect envelope before anything read from the wire.
type Transport struct {
	url      string
	dialer   *websocket.Dialer
	settings *TransportSettings

	mu      sync.Mutex
	current *connection
}

type connection struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.ws.Close()
	})
}

// NewTransport creates a transport for a server. server may be a bare
// host[:port], an http(s) URL or a ws(s) URL; the /ws path is added when
// no path is given.
func NewTransport(server string, settings *TransportSettings) (*Transport, error) {
	wsURL, err := WebSocketURL(server)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = DefaultTransportSettings()
	}
	return &Transport{
		url:      wsURL,
		settings: settings,
		dialer: &websocket.Dialer{
			HandshakeTimeout: settings.HandshakeTimeout,
		},
	}, nil
}

// WebSocketURL normalizes a server address to the websocket endpoint.
func WebSocketURL(server string) (string, error) {
	s := strings.TrimSpace(server)
	if s == "" {
		return "", errors.New("missing server address")
	}
	if !strings.Contains(s, "://") {
		s = "ws://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server address %q: unsupported scheme %s", server, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// URL returns the websocket endpoint.
func (t *Transport) URL() string {
	return t.url
}

// Connected reports whether a connection is currently up.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Emit queues an event on the current connection. Events emitted while
// disconnected are dropped with ErrNotConnected.
func (t *Transport) Emit(msgType protocol.MessageType, data interface{}) error {
	raw, err := protocol.Marshal(msgType, data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	c := t.current
	t.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- raw:
		glog.V(2).Infof("[ts]%s->\n", msgType)
		return nil
	default:
		return fmt.Errorf("send %s: buffer full", msgType)
	}
}

// Run connects and reconnects until ctx is done, feeding handler.
func (t *Transport) Run(ctx context.Context, handler Handler) error {
	for {
		ws, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			glog.Infof("[t]connect %s error = %s\n", t.url, err)
		} else {
			t.serve(ctx, ws, handler)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.settings.ReconnectTimeout):
		}
	}
}

func (t *Transport) serve(ctx context.Context, ws *websocket.Conn, handler Handler) {
	c := &connection{
		ws:   ws,
		send: make(chan []byte, t.settings.SendBuffer),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	t.current = c
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		if t.current == c {
			t.current = nil
		}
		t.mu.Unlock()
		c.close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()
	go t.writePump(c)

	glog.Infof("[t]connected %s\n", t.url)
	if t.dispatch(handler, &protocol.Envelope{Type: protocol.TypeConnect}) {
		return
	}
	t.readPump(c, handler)
}

func (t *Transport) readPump(c *connection, handler Handler) {
	c.ws.SetReadLimit(t.settings.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				glog.Infof("[tr]%s<- error = %s\n", t.url, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))

		env, err := protocol.ParseEnvelope(message)
		if err != nil {
			glog.Warningf("[tr]drop malformed message: %s\n", err)
			continue
		}
		if env.Type == protocol.TypeConnect {
			// connect only ever comes from the transport itself
			glog.Warningf("[tr]drop %s from the wire\n", env.Type)
			continue
		}
		glog.V(2).Infof("[tr]%s<-\n", env.Type)
		if t.dispatch(handler, env) {
			return
		}
	}
}

// dispatch hands env to handler. It reports whether the connection should
// be dropped so the client starts over.
func (t *Transport) dispatch(handler Handler, env *protocol.Envelope) bool {
	err := handler.Handle(env)
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReloadRequested) {
		glog.Infof("[t]reload requested, reconnecting\n")
		return true
	}
	logHandleError(env.Type, err)
	return false
}

func (t *Transport) writePump(c *connection) {
	ticker := time.NewTicker(t.settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				glog.Infof("[ts]-> error = %s\n", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
