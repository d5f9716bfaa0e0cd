// Package greptime mirrors pit strategy outcomes into a GreptimeDB table so
// they can be queried with SQL next to the rest of the team's race data.
package greptime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	ingester "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	"github.com/jonboulle/clockwork"

	"github.com/pitwall/pitbridge/internal/config"
	"github.com/pitwall/pitbridge/internal/dispatcher"
)

const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
)

// Writer is the part of the ingester client the recorder uses.
type Writer interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// Dial creates an ingester client for cfg.
func Dial(cfg config.GreptimeConfig) (*ingester.Client, error) {
	c := ingester.NewConfig(cfg.Host).
		WithPort(cfg.Port).
		WithDatabase(cfg.Database)
	client, err := ingester.NewClient(c)
	if err != nil {
		return nil, fmt.Errorf("creating greptime client: %w", err)
	}
	return client, nil
}

type entry struct {
	outcome dispatcher.Outcome
	at      time.Time
}

// Recorder implements dispatcher.Recorder. Record only queues; Run does the
// writes so a slow database never holds up the dispatcher.
type Recorder struct {
	writer Writer
	table  string
	clock  clockwork.Clock
	logger *slog.Logger
	queue  chan entry
}

// NewRecorder creates a recorder writing to tableName. A queueSize of zero
// or less uses the default.
func NewRecorder(w Writer, tableName string, queueSize int, clock clockwork.Clock, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		writer: w,
		table:  tableName,
		clock:  clock,
		logger: logger.With("component", "greptime"),
		queue:  make(chan entry, queueSize),
	}
}

// Record queues o for writing. It never blocks; outcomes arriving while the
// queue is full are dropped.
func (r *Recorder) Record(o dispatcher.Outcome) {
	select {
	case r.queue <- entry{outcome: o, at: r.clock.Now()}:
	default:
		r.logger.Warn("GreptimeDB queue full, dropping outcome", "requestId", o.RequestID)
	}
}

// Run writes queued outcomes, batching whatever has piled up since the last
// write, until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case first := <-r.queue:
			batch := []entry{first}
		drain:
			for {
				select {
				case e := <-r.queue:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			r.write(ctx, batch)
		}
	}
}

func (r *Recorder) write(ctx context.Context, batch []entry) {
	tbl, err := outcomeTable(r.table, batch)
	if err != nil {
		r.logger.Error("Failed to build outcome table", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := r.writer.Write(ctx, tbl); err != nil {
		r.logger.Error("Failed to write outcomes to GreptimeDB", "rows", len(batch), "error", err)
		return
	}
	r.logger.Debug("Wrote outcomes to GreptimeDB", "rows", len(batch))
}

func outcomeTable(name string, batch []entry) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	err = errors.Join(
		tbl.AddTagColumn("game", types.STRING),
		tbl.AddTagColumn("outcome", types.STRING),
		tbl.AddFieldColumn("request_id", types.STRING),
		tbl.AddFieldColumn("actions", types.INT64),
		tbl.AddFieldColumn("duration_ms", types.INT64),
		tbl.AddFieldColumn("error", types.STRING),
		tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND),
	)
	if err != nil {
		return nil, err
	}

	for _, e := range batch {
		o := e.outcome
		game := o.Game
		if game == "" {
			game = "none"
		}
		var errText string
		if o.Err != nil {
			errText = o.Err.Error()
		}
		if err := tbl.AddRow(game, o.Status(), o.RequestID, int64(o.Actions), o.Duration.Milliseconds(), errText, e.at); err != nil {
			return nil, fmt.Errorf("adding row for %s: %w", o.RequestID, err)
		}
	}
	return tbl, nil
}
