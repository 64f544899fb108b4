package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zm-image/config"
	"zm-image/metrics"
	"zm-image/pipeline"
	"zm-image/resolver"
	"zm-image/scaler"
	"zm-image/storage"
	"zm-image/store"
	"zm-image/synth"
	"zm-image/variant"
)

var (
	logger *zap.Logger
	debug  bool
)

var rootCmd = &cobra.Command{
	Use:           "zm-image",
	Short:         "Serves event stills, scaled on request and cached next to the source",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging at debug level")
}

func main() {
	err := rootCmd.Execute()

	if logger != nil {
		// stderr cannot be synced on every platform
		_ = logger.Sync()
	}

	if err != nil {
		log.Fatal(err)
	}
}

// app holds the wired components shared by the commands.
type app struct {
	pipeline *pipeline.Pipeline
	store    *store.GormStore
	memory   *storage.RistrettoStorage
}

func (a *app) Close() {
	if a.memory != nil {
		_ = a.memory.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("failed to close metadata database", zap.Error(err))
		}
	}
}

func build(cfg *config.Config, m *metrics.Metrics, pm *metrics.PerformanceMetrics) (*app, error) {
	a := &app{}

	var st store.Store
	if cfg.DatabaseDSN != "" {
		gs, err := store.OpenMySQL(cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		a.store = gs
		st = gs
	} else {
		logger.Warn("no metadata database configured, only direct path requests will resolve")
	}

	var extractor synth.Extractor
	switch cfg.Extractor {
	case "libav":
		extractor = &synth.LibavExtractor{Quality: cfg.JpegQuality}
	case "ffmpeg", "":
		ffmpeg := &synth.FFmpegExtractor{Path: cfg.FfmpegPath, Logger: logger}
		if !ffmpeg.Available() {
			logger.Warn("ffmpeg binary not found, missing frames cannot be synthesized", zap.String("path", cfg.FfmpegPath))
		}
		extractor = ffmpeg
	default:
		a.Close()
		return nil, fmt.Errorf("unknown extractor: %s", cfg.Extractor)
	}

	engine, err := scaler.New(cfg.Resampler, cfg.JpegQuality)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.MemoryCache {
		a.memory, err = storage.NewRistrettoStorage(storage.Options{
			NumCounters: cfg.CacheNumCounters,
			MaxCost:     cfg.CacheMaxCost,
			BufferItems: cfg.CacheBufferItems,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	res := resolver.New(st, resolver.Options{
		Root:         cfg.Root(),
		EventsDir:    cfg.EventsDir(),
		Digits:       cfg.EventImageDigits,
		AllowedPaths: cfg.AllowedPaths,
	}, logger)

	a.pipeline = pipeline.New(
		res,
		synth.New(extractor, cfg.SynthesisTimeout, cfg.MaxSyntheses, logger),
		engine,
		variant.New(a.memory, logger),
		logger,
		m, pm,
	)

	logger.Info("image pipeline ready",
		zap.String("root", cfg.Root()),
		zap.String("events_dir", cfg.EventsDir()),
		zap.String("extractor", cfg.Extractor),
		zap.String("resampler", cfg.Resampler),
		zap.Bool("memory_cache", cfg.MemoryCache))

	return a, nil
}
