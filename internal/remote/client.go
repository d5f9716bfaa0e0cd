// Package remote connects the bridge to the remote operator's strategy
// socket: inbound pit strategy requests, outbound mirror of what the bridge
// observes.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pitwall/pitbridge/internal/dispatcher"
	"github.com/pitwall/pitbridge/pkg/strategy"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

// Outbound message types.
const (
	TypeGame      = "game"
	TypeTelemetry = "telemetry"
	TypeOutcome   = "outcome"
)

// Envelope wraps every outbound message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// GamePayload is the payload of a game message. Game is null when no
// simulator is running.
type GamePayload struct {
	Game *string `json:"game"`
}

// OutcomePayload reports how a submitted request ended.
type OutcomePayload struct {
	RequestID  string `json:"requestId"`
	Game       string `json:"game"`
	Outcome    string `json:"outcome"`
	Actions    int    `json:"actions"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// Config holds remote connection settings.
type Config struct {
	URL    string
	Secret string
}

// Stream is a latest-value stream the client mirrors to the server.
type Stream[T any] interface {
	Subscribe() (<-chan T, func())
}

// Client receives pit strategy requests from the server and hands each valid
// one to submit. Undecodable messages are logged and dropped.
type Client struct {
	conn   *connection
	cfg    Config
	logger *slog.Logger
	submit func(strategy.Request)
}

// New creates a client; call Connect to dial.
func New(cfg Config, logger *slog.Logger, submit func(strategy.Request)) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger.With("component", "remote"),
		submit: submit,
	}
	c.conn = newConnection(c.logger, c.handle)
	return c
}

// Connect dials the server and starts the read and write loops.
func (c *Client) Connect() error {
	return c.conn.dial(c.cfg.URL, c.cfg.Secret)
}

// Close disconnects from the server.
func (c *Client) Close() error {
	return c.conn.close()
}

func (c *Client) handle(data []byte) {
	req, ok := strategy.Decode(data, func(err error) {
		c.logger.Debug("Ignoring remote message", "error", err, "raw", string(data))
	})
	if !ok {
		return
	}
	c.logger.Info("Received pit strategy request", "fields", req.Fields())
	c.submit(req)
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (c *Client) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.send(data)
	return nil
}

// PublishGame reports the running game. The last one is replayed after a
// reconnect.
func (c *Client) PublishGame(game string) error {
	p := GamePayload{}
	if game != "" {
		p.Game = &game
	}
	data, err := marshalEnvelope(TypeGame, p)
	if err != nil {
		return err
	}

	c.conn.mu.Lock()
	c.conn.cachedGameMsg = data
	c.conn.mu.Unlock()

	c.conn.send(data)
	return nil
}

// PublishTelemetry forwards a snapshot (fire-and-forget).
func (c *Client) PublishTelemetry(s telemetry.Snapshot) error {
	return c.sendEnvelope(TypeTelemetry, s)
}

// Record implements dispatcher.Recorder.
func (c *Client) Record(o dispatcher.Outcome) {
	p := OutcomePayload{
		RequestID:  o.RequestID,
		Game:       o.Game,
		Outcome:    o.Status(),
		Actions:    o.Actions,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		p.Error = o.Err.Error()
	}
	if err := c.sendEnvelope(TypeOutcome, p); err != nil {
		c.logger.Warn("Failed to report outcome", "requestId", o.RequestID, "error", err)
	}
}

// Mirror publishes every value of games and snapshots until ctx is done.
func (c *Client) Mirror(ctx context.Context, games Stream[string], snapshots Stream[telemetry.Snapshot]) error {
	gameCh, disposeGames := games.Subscribe()
	defer disposeGames()
	snapCh, disposeSnaps := snapshots.Subscribe()
	defer disposeSnaps()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case g, ok := <-gameCh:
			if !ok {
				gameCh = nil
				continue
			}
			if err := c.PublishGame(g); err != nil {
				c.logger.Warn("Failed to publish running game", "error", err)
			}
		case s, ok := <-snapCh:
			if !ok {
				snapCh = nil
				continue
			}
			if err := c.PublishTelemetry(s); err != nil {
				c.logger.Warn("Failed to publish telemetry", "error", err)
			}
		}
	}
}
