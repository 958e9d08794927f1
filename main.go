package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"weldvision/internal/config"
	"weldvision/internal/logging"
	"weldvision/internal/models"
	"weldvision/internal/ui"
	"weldvision/processing"
	"weldvision/processing/capture"
	"weldvision/processing/detector"
	"weldvision/processing/render"
	"weldvision/processing/sink"
)

const sinkConnectTimeout = 10 * time.Second

func main() {
	cfg, cfgErr := config.LoadConfigFile(config.DefaultConfigPath)

	logger := logging.NewLogger("weldvision", cfg.Debug)
	defer logger.Sync()

	if cfgErr != nil {
		logger.Warnw("using default config", "error", cfgErr)
	}

	labels, err := loadLabels(cfg)
	if err != nil {
		logger.Warnw("falling back to built-in labels", "error", err)
		labels = models.Labels(config.DefaultLabels)
	}

	det, err := newDetector(cfg, labels, logger.Named("detector"))
	if err != nil {
		// the window still opens, detection stays unavailable
		logger.Errorw("failed to load detection model", "backend", cfg.Model.Backend, "path", cfg.Model.Path, "error", err)
	}

	out := newSink(cfg, logger.Named("sink"))

	app := ui.CreateApp(cfg, logger.Named("ui"))

	opts := processing.Options{
		Detector: det,
		Renderer: render.NewOverlay(labels),
		Sink:     out,
		Display:  app,
		OpenSource: func() (capture.FrameSource, error) {
			return capture.Open(cfg)
		},
		Labels:        labels,
		Width:         cfg.GetWidth(),
		Height:        cfg.GetHeight(),
		Interval:      cfg.TickInterval(),
		RecordMode:    cfg.RecordMode,
		OnStateChange: app.OnStateChange,
		Logger:        logger.Named("processor"),
	}

	app.Run(processing.NewProcessor(opts))
}

func loadLabels(cfg *config.Config) (models.Labels, error) {
	if cfg.Model.LabelsPath == "" {
		return models.Labels(cfg.Labels), nil
	}
	return models.LoadLabels(cfg.Model.LabelsPath)
}

func newDetector(cfg *config.Config, labels models.Labels, logger *zap.SugaredLogger) (detector.Detector, error) {
	switch cfg.Model.Backend {
	case config.BackendONNX:
		d, err := detector.LoadONNX(detector.ONNXParams{
			ModelPath:      cfg.Model.Path,
			RuntimeLibrary: cfg.Model.RuntimeLibrary,
			NumClasses:     len(labels),
			Confidence:     cfg.GetConfidence(),
			IoU:            cfg.Model.IoU,
		})
		if err != nil {
			return nil, err
		}
		logger.Infow("model loaded", "path", cfg.Model.Path, "classes", len(labels))
		return d, nil
	case config.BackendRemote:
		return detector.NewRemote(cfg.Model.RemoteHost, labels, logger), nil
	default:
		return nil, errors.Errorf("unknown model backend: %s", cfg.Model.Backend)
	}
}

// newSink connects every configured backend. Backends that fail to connect
// are logged and skipped; with none left records only go to the log.
func newSink(cfg *config.Config, logger *zap.SugaredLogger) sink.Sink {
	ctx, cancel := context.WithTimeout(context.Background(), sinkConnectTimeout)
	defer cancel()

	var sinks sink.Multi
	for _, backend := range cfg.Sink.Backends {
		s, err := openSink(ctx, cfg, backend, logger)
		if err != nil {
			logger.Errorw("sink unavailable", "backend", backend, "error", err)
			continue
		}
		logger.Infow("sink connected", "backend", backend)
		sinks = append(sinks, s)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, sink.NewLog(logger))
	}

	return sink.NewAsync(sinks, cfg.Sink.QueueSize, cfg.SinkTimeout(), logger)
}

func openSink(ctx context.Context, cfg *config.Config, backend config.SinkBackend, logger *zap.SugaredLogger) (sink.Sink, error) {
	switch backend {
	case config.SinkFirebase:
		return sink.NewFirebase(ctx, sink.FirebaseParams{
			CredentialsPath: cfg.Sink.CredentialsPath,
			DatabaseURL:     cfg.Sink.DatabaseURL,
			Collection:      cfg.Sink.Collection,
		})
	case config.SinkRedis:
		return sink.NewRedis(ctx, cfg.Sink.RedisAddr, cfg.Sink.Collection)
	case config.SinkSQL:
		db, err := sink.OpenPostgres(cfg.Sink.SQLDSN)
		if err != nil {
			return nil, err
		}
		return sink.NewSQL(db, cfg.Sink.Collection)
	case config.SinkLog:
		return sink.NewLog(logger), nil
	default:
		return nil, errors.Errorf("unknown sink backend: %s", backend)
	}
}
