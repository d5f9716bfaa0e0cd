package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/internal/ladder"
	"github.com/pitwall/pitbridge/internal/navigator"
	"github.com/pitwall/pitbridge/pkg/strategy"
)

var (
	// ErrQueueFull is returned by Submit when a non-blocking queue is full.
	ErrQueueFull = errors.New("strategy queue full")
	// ErrNoNavigator means the registry cannot resolve any navigator, not
	// even a fallback. It is the only error that stops Run.
	ErrNoNavigator = errors.New("no navigator to resolve")
)

const defaultQueueSize = 16

// GameSource is the latest-value stream of the running simulator's identity.
// An empty identity means no simulator is running.
type GameSource interface {
	Subscribe() (<-chan string, func())
	Latest() (string, bool)
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Outcome summarises one processed request.
type Outcome struct {
	RequestID string
	Game      string
	Matched   bool
	Actions   int
	Duration  time.Duration
	Err       error
}

// Status classifies the outcome for logs and metrics.
func (o Outcome) Status() string {
	switch {
	case o.Err == nil:
		return "applied"
	case errors.Is(o.Err, navigator.ErrUnsupportedSimulator):
		return "unsupported"
	case errors.Is(o.Err, context.Canceled):
		return "abandoned"
	case errors.Is(o.Err, ladder.ErrConfirmationTimeout):
		return "unconfirmed"
	case errors.Is(o.Err, navigator.ErrNotObservable):
		return "unobservable"
	default:
		return "failed"
	}
}

// Recorder receives every outcome after the dispatcher is back to Idle.
type Recorder interface {
	Record(o Outcome)
}

// Option configures the dispatcher.
type Option func(*config)

type config struct {
	queueSize int
	blocking  bool
	logged    bool
	recorders []Recorder
}

// QueueSize sets how many requests may wait behind the one being applied.
func QueueSize(size int) Option {
	return func(c *config) {
		c.queueSize = size
	}
}

// Blocking makes Submit wait for room when the queue is full instead of
// dropping the request.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging of every emitted action.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// WithRecorder reports outcomes to r. It may be given more than once.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorders = append(c.recorders, r)
	}
}

type job struct {
	id       string
	req      strategy.Request
	enqueued time.Time
}

// Dispatcher applies pit strategy requests one at a time with the navigator
// of whichever simulator is running when the request's turn comes.
type Dispatcher struct {
	registry  *navigator.Registry
	telemetry navigator.Telemetry
	games     GameSource
	sink      action.Sink
	logger    Logger
	cfg       config

	queue chan job
	state atomic.Int32

	mu         sync.RWMutex
	activeGame string

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
	emitted   metric.Int64Counter
}

// New creates a Dispatcher. Actions produced by navigators are forwarded to
// sink in order.
func New(
	logger Logger,
	registry *navigator.Registry,
	tel navigator.Telemetry,
	games GameSource,
	sink action.Sink,
	opts ...Option,
) (*Dispatcher, error) {
	if registry == nil || registry.Fallback() == nil {
		return nil, ErrNoNavigator
	}

	cfg := config{queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = defaultQueueSize
	}

	d := &Dispatcher{
		registry:  registry,
		telemetry: tel,
		games:     games,
		sink:      sink,
		logger:    logger,
		cfg:       cfg,
		queue:     make(chan job, cfg.queueSize),
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of strategy requests waiting"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.queueSize, int64(len(d.queue)))
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.requests.processed",
		metric.WithDescription("Total strategy requests processed, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.requests.dropped",
		metric.WithDescription("Total strategy requests dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.requests.failed",
		metric.WithDescription("Total strategy requests that ended in an error other than an unsupported game"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.emitted, err = m.Int64Counter(
		"dispatcher.actions.emitted",
		metric.WithDescription("Total key presses forwarded to the action sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating emitted counter: %w", err)
	}

	return d, nil
}

// Submit queues req behind any request already waiting. It returns
// ErrQueueFull when the queue is full, unless the dispatcher is Blocking,
// in which case it waits for room or for ctx.
func (d *Dispatcher) Submit(ctx context.Context, req strategy.Request) error {
	j := job{id: uuid.NewString(), req: req, enqueued: time.Now()}

	if d.cfg.blocking {
		select {
		case d.queue <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case d.queue <- j:
		default:
			d.dropped.Add(ctx, 1)
			d.logger.Warn("Dropping pit strategy request, queue full", "requestId", j.id)
			return ErrQueueFull
		}
	}

	d.logger.Debug("Queued pit strategy request", "requestId", j.id, "fields", req.Fields())
	return nil
}

// Run processes queued requests until ctx is done. Each request's actions
// are fully forwarded before the next request is resolved.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-d.queue:
			if err := d.process(ctx, j); err != nil {
				return err
			}
		}
	}
}

// State returns where the dispatcher is in its request cycle.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// QueueLen returns the number of requests waiting behind the in-flight one.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

// ActiveGame returns the game the in-flight request was resolved for, or ""
// when Idle.
func (d *Dispatcher) ActiveGame() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeGame
}

func (d *Dispatcher) process(ctx context.Context, j job) error {
	start := time.Now()
	d.setState(Resolving, "")

	game, _ := d.games.Latest()
	nav, matched := d.registry.Resolve(game)
	if nav == nil {
		d.setState(Idle, "")
		return ErrNoNavigator
	}
	d.logger.Debug("Resolved navigator",
		"requestId", j.id,
		"game", game,
		"matched", matched,
		"waited", start.Sub(j.enqueued),
	)

	d.setState(Applying, game)

	reqCtx, cancel := context.WithCancel(ctx)
	stopWatch := d.abandonOnGameChange(reqCtx, cancel, j.id, game)
	out := &forwarder{ctx: reqCtx, d: d, requestID: j.id, game: game}

	err := nav.SetStrategy(reqCtx, j.req, d.telemetry, out)

	cancel()
	stopWatch()
	d.setState(Idle, "")

	o := Outcome{
		RequestID: j.id,
		Game:      game,
		Matched:   matched,
		Actions:   out.count,
		Duration:  time.Since(start),
		Err:       err,
	}
	d.report(ctx, o)
	return nil
}

func (d *Dispatcher) report(ctx context.Context, o Outcome) {
	status := o.Status()
	kv := []any{
		"requestId", o.RequestID,
		"game", o.Game,
		"actions", o.Actions,
		"duration", o.Duration,
	}

	switch status {
	case "applied":
		d.logger.Info("Pit strategy applied", kv...)
	case "unsupported":
		d.logger.Info("Pit strategy not applied, game unsupported", kv...)
	case "abandoned":
		d.logger.Warn("Pit strategy abandoned", append(kv, "error", o.Err)...)
	case "unobservable":
		d.logger.Warn("Pit strategy not fully applied, pit menu not observable", append(kv, "error", o.Err)...)
	default:
		d.logger.Error("Pit strategy failed", append(kv, "error", o.Err)...)
	}

	if status != "applied" && status != "unsupported" {
		d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", status)))
	}

	d.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("game", o.Game),
		attribute.String("outcome", status),
	))

	for _, r := range d.cfg.recorders {
		r.Record(o)
	}
}

// abandonOnGameChange cancels the request when the running game is no longer
// the one it was resolved for. The returned function waits for the watcher
// to exit.
func (d *Dispatcher) abandonOnGameChange(ctx context.Context, cancel context.CancelFunc, requestID, game string) func() {
	games, dispose := d.games.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer dispose()
		for {
			select {
			case <-ctx.Done():
				return
			case g, ok := <-games:
				if !ok {
					return
				}
				if g != game {
					d.logger.Warn("Running game changed mid-application, abandoning",
						"requestId", requestID, "from", game, "to", g)
					cancel()
					return
				}
			}
		}
	}()

	return func() { <-done }
}

func (d *Dispatcher) setState(s State, game string) {
	d.mu.Lock()
	d.activeGame = game
	d.mu.Unlock()
	d.state.Store(int32(s))
}

// forwarder hands navigator output to the downstream sink and refuses
// further actions once the request is cancelled.
type forwarder struct {
	ctx       context.Context
	d         *Dispatcher
	requestID string
	game      string
	count     int
}

func (f *forwarder) Send(ctx context.Context, a action.Action) error {
	if err := f.ctx.Err(); err != nil {
		return err
	}
	if err := f.d.sink.Send(f.ctx, a); err != nil {
		return err
	}
	f.count++
	f.d.emitted.Add(f.ctx, 1, metric.WithAttributes(attribute.String("game", f.game)))
	if f.d.cfg.logged {
		f.d.logger.Debug("Emitted action", "requestId", f.requestID, "action", a.String(), "n", f.count)
	}
	return nil
}
