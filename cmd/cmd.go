package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/homie-integration/internal/pkg/config"
	"github.com/anicoll/homie-integration/internal/pkg/homie"
	"github.com/anicoll/homie-integration/internal/pkg/metrics"
	"github.com/anicoll/homie-integration/internal/pkg/mqtt"
	"github.com/anicoll/homie-integration/internal/pkg/server"
	"github.com/anicoll/homie-integration/internal/pkg/sysstats"
)

const (
	firmwareName    = "homie-integration"
	firmwareVersion = "1.0.0"
)

func HomieCommand(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if ctx.IsSet("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("metrics-addr") {
		cfg.MetricsAddr = ctx.String("metrics-addr")
	}
	if cfg.Device.FirmwareName == "" {
		cfg.Device.FirmwareName = firmwareName
	}
	if cfg.Device.FirmwareVersion == "" {
		cfg.Device.FirmwareVersion = firmwareVersion
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := mqtt.New(cfg.Broker, cfg.Device.ID.String(), logger)
	return run(sigCtx, cfg, transport, sysstats.New(), logger)
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))), nil
}

// run publishes the host as a device until ctx is done.
func run(ctx context.Context, cfg *config.Config, transport homie.Transport, sampler HostSampler, logger *zap.Logger) error {
	recorder := metrics.New(cfg.Device.ID.String())

	dev, err := homie.New(cfg, transport,
		homie.WithLogger(logger),
		homie.WithRecorder(recorder),
		homie.WithCPULoad(sampler.CPULoadFunc()),
		homie.WithCPUTemperature(sampler.CPUTemperatureFunc()),
		homie.WithBroadcastHandler(func(level, payload string) {
			logger.Info("broadcast received", zap.String("level", level), zap.String("payload", payload))
		}),
	)
	if err != nil {
		return err
	}

	monitor, err := newHostMonitor(dev, sampler, recorder, logger)
	if err != nil {
		return err
	}

	if err := dev.Setup(); err != nil {
		return err
	}
	defer dev.Shutdown()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		c.Schedule(cron.Every(cfg.SampleInterval), cron.FuncJob(func() {
			monitor.sample(ctx)
		}))
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	})

	if cfg.MetricsAddr != "" {
		eg.Go(func() error {
			err := server.New(dev, recorder.Handler()).Run(ctx, cfg.MetricsAddr)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server stopped", zap.Error(err))
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("context done")
		return nil
	})

	return eg.Wait()
}
