// Package signal is the relay transport adapter: a websocket client that
// carries opaque negotiation envelopes and nothing else.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arden/peercall/internal/core"
	"github.com/arden/peercall/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const writeDeadline = 5 * time.Second

// Client speaks JSON envelopes over one websocket to the relay. Outbound
// messages go through a bounded send queue; a full queue fails fast
// rather than blocking the session loop.
type Client struct {
	url        string
	router     core.SignalRouter
	pingPeriod time.Duration

	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewClient(url string, router core.SignalRouter, pingPeriod time.Duration) *Client {
	return &Client{
		url:        url,
		router:     router,
		pingPeriod: pingPeriod,
		send:       make(chan []byte, 32),
	}
}

// Dial connects to the relay and starts the pumps. Inbound envelopes are
// delivered to the router in arrival order by a single goroutine, which
// is the ordering guarantee the sessions rely on.
func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	log.Info().Str("module", "signal").Str("url", c.url).Msg("relay connected")

	go c.writePump(ctx)
	go c.readPump(ctx)
	return nil
}

// Send marshals and queues one envelope.
func (c *Client) Send(env domain.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.trySend(b)
}

func (c *Client) trySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) writePump(ctx context.Context) {
	var ping <-chan time.Time
	if c.pingPeriod > 0 {
		t := time.NewTicker(c.pingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			c.dispatch(data)
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	if env.Type == "" {
		log.Warn().Str("module", "signal").Msg("envelope without type")
		return
	}
	c.router.Inbound(env)
}
