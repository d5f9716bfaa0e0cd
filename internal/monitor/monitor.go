package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pitwall/pitbridge/internal/dispatcher"
)

// Source is the dispatcher as seen by the monitor.
type Source interface {
	State() dispatcher.State
	ActiveGame() string
	QueueLen() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source   Source
	Games    interface{ Latest() (string, bool) }
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Path     string
	Interval time.Duration
}

// LastOutcome is the most recent processed request.
type LastOutcome struct {
	RequestID  string    `json:"requestId" yaml:"requestId"`
	Game       string    `json:"game" yaml:"game"`
	Status     string    `json:"status" yaml:"status"`
	Actions    int       `json:"actions" yaml:"actions"`
	DurationMs int64     `json:"durationMs" yaml:"durationMs"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	At         time.Time `json:"at" yaml:"at"`
}

// Status is what gets written to the status file on every tick.
type Status struct {
	Time        time.Time      `json:"time" yaml:"time"`
	RunningGame string         `json:"runningGame" yaml:"runningGame"`
	State       string         `json:"state" yaml:"state"`
	ActiveGame  string         `json:"activeGame,omitempty" yaml:"activeGame,omitempty"`
	QueueLen    int            `json:"queueLen" yaml:"queueLen"`
	Outcomes    map[string]int `json:"outcomes" yaml:"outcomes"`
	Last        *LastOutcome   `json:"last,omitempty" yaml:"last,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	mu        sync.RWMutex
	isRunning bool
	counts    map[string]int
	last      *LastOutcome
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:   deps,
		counts: make(map[string]int),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// SetSource attaches the dispatcher once it exists. The dispatcher takes the
// service as a recorder, so it is built after the service.
func (s *Service) SetSource(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.Source = src
}

// Record tallies a processed request.
func (s *Service) Record(o dispatcher.Outcome) {
	last := &LastOutcome{
		RequestID:  o.RequestID,
		Game:       o.Game,
		Status:     o.Status(),
		Actions:    o.Actions,
		DurationMs: o.Duration.Milliseconds(),
		At:         s.deps.Clock.Now(),
	}
	if o.Err != nil {
		last.Error = o.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[last.Status]++
	s.last = last
}

// GetStatus returns the current bridge status.
func (s *Service) GetStatus() Status {
	status := Status{
		Time:     s.deps.Clock.Now(),
		Outcomes: make(map[string]int),
	}
	if s.deps.Games != nil {
		status.RunningGame, _ = s.deps.Games.Latest()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if src := s.deps.Source; src != nil {
		status.State = src.State().String()
		status.ActiveGame = src.ActiveGame()
		status.QueueLen = src.QueueLen()
	}
	for k, v := range s.counts {
		status.Outcomes[k] = v
	}
	if s.last != nil {
		last := *s.last
		status.Last = &last
	}
	return status
}

// Run rewrites the status file every interval until ctx is done. A final
// status is written on the way out.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("status monitor already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "path", s.deps.Path, "interval", s.deps.Interval)

	statusFile, err := os.Create(s.deps.Path)
	if err != nil {
		return fmt.Errorf("creating status file: %w", err)
	}
	defer statusFile.Close()

	ticker := s.deps.Clock.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := writeStatus(statusFile, s.GetStatus()); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
			return nil
		case <-ticker.Chan():
			if err := writeStatus(statusFile, s.GetStatus()); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// ReadStatus reads a status file written by Run.
func ReadStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, fmt.Errorf("reading status file: %w", err)
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, fmt.Errorf("decoding status file: %w", err)
	}
	return status, nil
}

func writeStatus(f *os.File, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
