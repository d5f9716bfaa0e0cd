// Package influx records the outcome of every pit strategy application as an
// InfluxDB point, falling back to a gzip'd line-protocol file when the server
// is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/pitwall/pitbridge/internal/config"
	"github.com/pitwall/pitbridge/internal/dispatcher"
)

// Measurement is the name of the points written for each outcome.
const Measurement = "pit_strategy_application"

// ErrDisabled is returned by Connect when influx is switched off.
var ErrDisabled = errors.New("influx is disabled")

// Recorder implements dispatcher.Recorder on top of InfluxDB.
type Recorder struct {
	cfg    config.InfluxConfig
	logger zerolog.Logger

	mu           sync.Mutex
	client       influxdb2.Client
	writer       influxdb2_api.WriteAPI
	backupFile   *os.File
	backupWriter *gzip.Writer
	backupPath   string
	isValid      bool
}

// NewRecorder creates a recorder. backupPath receives points while the server
// cannot be reached.
func NewRecorder(cfg config.InfluxConfig, logger zerolog.Logger, backupPath string) *Recorder {
	return &Recorder{
		cfg:        cfg,
		logger:     logger.With().Str("component", "influx").Logger(),
		backupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB, or opens the backup file if
// the server does not answer.
func (r *Recorder) Connect(ctx context.Context) error {
	if !r.cfg.Enabled {
		return ErrDisabled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.client = influxdb2.NewClientWithOptions(
		r.cfg.URL(),
		r.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := r.client.Ping(ctx)
	if err != nil || !running {
		r.isValid = false
		r.logger.Warn().Err(err).Str("backupPath", r.backupPath).
			Msg("InfluxDB not reachable, writing to backup file")

		file, err := os.OpenFile(r.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("error creating backup file: %w", err)
		}
		r.backupFile = file
		r.backupWriter = gzip.NewWriter(file)
		return nil
	}

	if err := r.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	r.writer = r.client.WriteAPI(r.cfg.Org, r.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			r.logger.Error().Err(writeErr).Str("bucket", r.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(r.writer.Errors())

	r.isValid = true
	r.logger.Info().Str("url", r.cfg.URL()).Str("bucket", r.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (r *Recorder) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := r.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, r.cfg.Org)
	if err != nil {
		r.logger.Info().Str("org", r.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, r.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", r.cfg.Org, err)
		}
	}

	if _, err := r.client.BucketsAPI().FindBucketByName(ctx, r.cfg.Bucket); err != nil {
		r.logger.Info().Str("bucket", r.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = r.client.BucketsAPI().CreateBucketWithName(ctx, org, r.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", r.cfg.Bucket, err)
		}
	}

	return nil
}

// OutcomePoint builds the point written for o.
func OutcomePoint(o dispatcher.Outcome, at time.Time) *influxdb2_write.Point {
	game := o.Game
	if game == "" {
		game = "none"
	}
	return influxdb2_write.NewPoint(
		Measurement,
		map[string]string{
			"game":    game,
			"outcome": o.Status(),
		},
		map[string]any{
			"actions":     o.Actions,
			"duration_ms": o.Duration.Milliseconds(),
		},
		at,
	)
}

// Record implements dispatcher.Recorder.
func (r *Recorder) Record(o dispatcher.Outcome) {
	if err := r.WritePoint(OutcomePoint(o, time.Now())); err != nil {
		r.logger.Error().Err(err).Str("requestId", o.RequestID).Msg("Failed to record outcome")
	}
}

// WritePoint writes a point to InfluxDB or the backup file.
func (r *Recorder) WritePoint(point *influxdb2_write.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isValid {
		r.writer.WritePoint(point)
		return nil
	}
	if r.backupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := r.backupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer != nil {
		r.writer.Flush()
	}
	if r.client != nil {
		r.client.Close()
	}
	if r.backupWriter != nil {
		if err := r.backupWriter.Close(); err != nil {
			return fmt.Errorf("closing backup writer: %w", err)
		}
		r.backupWriter = nil
	}
	if r.backupFile != nil {
		if err := r.backupFile.Close(); err != nil {
			return err
		}
		r.backupFile = nil
	}
	return nil
}
