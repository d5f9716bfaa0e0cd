package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/pitwall/pitbridge/internal/channel"
	"github.com/pitwall/pitbridge/internal/config"
	"github.com/pitwall/pitbridge/internal/detect"
	"github.com/pitwall/pitbridge/internal/dispatcher"
	"github.com/pitwall/pitbridge/internal/feed"
	"github.com/pitwall/pitbridge/internal/greptime"
	"github.com/pitwall/pitbridge/internal/influx"
	"github.com/pitwall/pitbridge/internal/keys"
	"github.com/pitwall/pitbridge/internal/logging"
	"github.com/pitwall/pitbridge/internal/monitor"
	intOtel "github.com/pitwall/pitbridge/internal/otel"
	"github.com/pitwall/pitbridge/internal/remote"
	"github.com/pitwall/pitbridge/pkg/strategy"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

const (
	pressQueueSize  = 1
	shutdownTimeout = 5 * time.Second
)

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBridge(ctx, root)
		},
	}
}

// session holds what runBridge opens and must release on exit.
type session struct {
	slogManager  *logging.SlogManager
	logger       *slog.Logger
	zlog         zerolog.Logger
	logFile      *os.File
	otelProvider *intOtel.Provider
	closers      []io.Closer
}

func setupLogging(root *rootOptions, start time.Time) (*session, error) {
	s := &session{slogManager: logging.NewSlogManager()}

	// stdout until the log file exists
	s.slogManager.Setup(nil, "info", nil)
	s.logger = s.slogManager.Logger()

	if err := config.Load(root.configDir); err != nil {
		s.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		s.logger.Info("Loaded config", "dir", root.configDir)
	}
	if root.logLevel != "" {
		viper.Set("logLevel", root.logLevel)
	}
	level := config.GetString("logLevel")

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}

	logPath := logging.LogFilePath(logsDir, "pitbridge", start)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	file, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	s.logFile = file

	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		s.otelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      file,
			MetricWriter:   file,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			s.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelLogProvider = s.otelProvider.LoggerProvider()
		}
	}

	var extra []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		h, err := logging.NewGraylogHandler(graylogCfg.Address, level)
		if err != nil {
			s.logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, h)
			s.closers = append(s.closers, h)
		}
	}

	if config.GetBool("journal.enabled") {
		h, err := logging.NewJournalHandler(level)
		if err != nil {
			s.logger.Error("Failed to open systemd journal", "error", err)
		} else {
			extra = append(extra, h)
		}
	}

	s.slogManager.Setup(file, level, otelLogProvider, extra...)
	s.logger = s.slogManager.Logger()
	s.logger.Info("Logging to file", "path", logPath, "version", version)

	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	s.zlog = zerolog.New(file).Level(zlevel).With().Timestamp().Logger()

	return s, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("Error during shutdown", "error", err)
		}
	}
	if err := s.slogManager.Flush(ctx); err != nil {
		s.logger.Warn("Failed to flush logs", "error", err)
	}
	if s.otelProvider != nil {
		if err := s.otelProvider.Shutdown(ctx); err != nil {
			s.logger.Warn("Failed to shut down OTel", "error", err)
		}
	}
	s.logger.Info("Shut down")
	_ = s.logFile.Close()
}

func openFeed(path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening telemetry feed: %w", err)
	}
	return f, nil
}

func runBridge(ctx context.Context, root *rootOptions) error {
	start := time.Now()
	s, err := setupLogging(root, start)
	if err != nil {
		return err
	}
	defer s.close()
	logger := s.logger

	games := channel.NewLatest[string]()
	snapshots := channel.NewLatest[telemetry.Snapshot]()
	defer games.Close()
	defer snapshots.Close()

	detector := detect.New(nil, config.GetNavigationConfig().ConfirmTimeout)
	registry := buildRegistry(logger, detector)
	logger.Info("Navigators registered", "games", registry.Games())

	presses := channel.New[keys.Press](pressQueueSize)
	keysCfg := config.GetKeysConfig()
	player, err := keys.NewPlayer(presses, keys.NewLogKeyboard(s.zlog), keysCfg.Bindings, keysCfg.Interval, nil, s.zlog)
	if err != nil {
		return fmt.Errorf("configuring keys: %w", err)
	}

	dispatcherCfg := config.GetDispatcherConfig()
	opts := []dispatcher.Option{dispatcher.QueueSize(dispatcherCfg.QueueSize)}
	if dispatcherCfg.Blocking {
		opts = append(opts, dispatcher.Blocking())
	}
	if config.GetString("logLevel") == "debug" {
		opts = append(opts, dispatcher.Logged())
	}

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		backup := filepath.Join(config.GetString("logsDir"), fmt.Sprintf("influx_backup.%s.log.gz", start.Format("20060102_150405")))
		rec := influx.NewRecorder(influxCfg, s.zlog, backup)
		if err := rec.Connect(ctx); err != nil {
			logger.Error("Failed to set up InfluxDB recorder", "error", err)
		} else {
			opts = append(opts, dispatcher.WithRecorder(rec))
			s.closers = append(s.closers, rec)
		}
	}

	var outcomes *greptime.Recorder
	if gtCfg := config.GetGreptimeConfig(); gtCfg.Enabled {
		client, err := greptime.Dial(gtCfg)
		if err != nil {
			logger.Error("Failed to set up GreptimeDB recorder", "error", err)
		} else {
			outcomes = greptime.NewRecorder(client, gtCfg.Table, 0, nil, logger)
			opts = append(opts, dispatcher.WithRecorder(outcomes))
		}
	}

	var mon *monitor.Service
	if monitorCfg := config.GetMonitorConfig(); monitorCfg.Enabled {
		path := monitorCfg.StatusFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(config.GetString("logsDir"), path)
		}
		mon = monitor.NewService(monitor.Dependencies{
			Games:    games,
			Logger:   logger.With("component", "monitor"),
			Path:     path,
			Interval: monitorCfg.Interval,
		})
		opts = append(opts, dispatcher.WithRecorder(mon))
	}

	// The remote client needs the dispatcher to submit to and the dispatcher
	// reports outcomes to the client, so the client is created first and
	// submits through this variable.
	var d *dispatcher.Dispatcher
	remoteCfg := config.GetRemoteConfig()
	var client *remote.Client
	if remoteCfg.Enabled {
		client = remote.New(remote.Config{URL: remoteCfg.URL, Secret: remoteCfg.Secret}, logger, func(req strategy.Request) {
			if err := d.Submit(ctx, req); err != nil {
				logger.Warn("Pit strategy request not queued", "error", err)
			}
		})
		opts = append(opts, dispatcher.WithRecorder(client))
	}

	d, err = dispatcher.New(logging.NewDispatcherLogger(logger), registry, snapshots, games, keys.Sink(presses), opts...)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	s.slogManager.GetGame = d.ActiveGame
	s.slogManager.GetState = func() string { return d.State().String() }
	if mon != nil {
		mon.SetSource(d)
	}

	in, err := openFeed(config.GetString("telemetry.path"))
	if err != nil {
		return err
	}
	defer in.Close()
	reader := feed.NewReader(games, snapshots, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.Run(ctx) })
	g.Go(func() error { return player.Run(ctx) })
	if mon != nil {
		g.Go(func() error { return mon.Run(ctx) })
	}
	if outcomes != nil {
		g.Go(func() error { return outcomes.Run(ctx) })
	}
	// Not part of the group: a read from stdin cannot be interrupted, so
	// shutdown does not wait for it.
	go func() {
		err := reader.Run(ctx, in)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error("Telemetry feed failed", "error", err)
			return
		}
		logger.Warn("Telemetry feed closed, no further game or menu updates")
	}()

	if client != nil {
		if err := client.Connect(); err != nil {
			logger.Error("Failed to connect to remote strategy server", "url", remoteCfg.URL, "error", err)
		} else {
			s.closers = append(s.closers, client)
			g.Go(func() error { return client.Mirror(ctx, games, snapshots) })
		}
	}

	logger.Info("Bridge running")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
