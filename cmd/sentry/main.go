package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixge/fgprof"
	"github.com/hybridgroup/mjpeg"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "github.com/tkoide/framesentry/docs" // Swagger docs
	"github.com/tkoide/framesentry/internal/config"
	"github.com/tkoide/framesentry/internal/detect"
	"github.com/tkoide/framesentry/internal/emitter"
	"github.com/tkoide/framesentry/internal/frame"
	"github.com/tkoide/framesentry/internal/logger"
	"github.com/tkoide/framesentry/internal/motion"
	"github.com/tkoide/framesentry/internal/overlay"
	"github.com/tkoide/framesentry/internal/pipeline"
	"github.com/tkoide/framesentry/internal/server"
	"github.com/tkoide/framesentry/internal/shmbus"
	"github.com/tkoide/framesentry/internal/source"
)

// @title FrameSentry API
// @version 0.1.0
// @description Frame bus publisher with motion detection, annotation overlay and live MJPEG streaming

// @contact.name API Support
// @contact.url https://github.com/tkoide/framesentry

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

// @tag.name System
// @tag.description System status and configuration

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	snap := cfg.Get()

	logger.Init(snap.Logging.Level)
	log.Info().Str("version", "0.1.0").Str("config", *configPath).Msg("Starting framesentry")

	// Profiling server on its own port
	go func() {
		addr := fmt.Sprintf(":%d", snap.Server.ProfilingPort)
		log.Info().Str("addr", addr).Msg("Starting profiling server")
		http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error().Err(err).Msg("Profiling server error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(snap.Source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open frame source")
	}
	defer src.Close()

	var det *motion.Detector
	if snap.Motion.Enabled {
		det = motion.NewDetector(uint8(snap.Motion.Threshold), snap.Motion.MinRegionArea)
	}

	var provider detect.Provider = detect.None{}

	var pub pipeline.Publisher
	var busPub *shmbus.Publisher
	if snap.Bus.Enabled {
		busPub, err = shmbus.Open(snap.Bus.Name,
			uint32(snap.Bus.MaxWidth), uint32(snap.Bus.MaxHeight), uint32(snap.Bus.Channels))
		if err != nil {
			log.Fatal().Err(err).Str("bus", snap.Bus.Name).Msg("Failed to open frame bus")
		}
		defer busPub.Close()
		pub = busPub
		log.Info().Str("bus", snap.Bus.Name).Int("capacity", busPub.Capacity()).
			Msg("Frame bus segment created")
	}

	pipe := pipeline.New(src, det, provider, overlay.NewRenderer(), pub)
	pipe.MotionEnabled = snap.Motion.Enabled

	var em *emitter.MQTTEmitter
	if snap.MQTT.Enabled {
		em = emitter.NewMQTTEmitter(snap.MQTT.Broker, snap.MQTT.ClientID,
			snap.MQTT.Topic, byte(snap.MQTT.QoS))
		if err := em.Connect(); err != nil {
			log.Warn().Err(err).Msg("MQTT connect failed, events will be dropped until reconnect")
		}
		defer em.Disconnect()

		pipe.OnMotion = func(f *frame.Frame, regions []detect.Region) {
			event := emitter.MotionEvent{
				Sequence:  f.Sequence,
				Timestamp: f.Timestamp,
				Count:     len(regions),
				Regions:   regions,
			}
			if err := em.Emit(event); err != nil {
				log.Debug().Err(err).Msg("Motion event dropped")
			}
		}
	}

	stream := mjpeg.NewStream()
	pipe.OnFrame = func(f *frame.Frame) {
		jpg, err := f.EncodeJPEG(80)
		if err != nil {
			return
		}
		stream.UpdateJPEG(jpg)
	}

	var emStats server.EmitterStats
	if em != nil {
		emStats = em
	}
	apiServer := server.New(cfg, pipe, stream, emStats)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipe.Run(ctx)
	})
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		return apiServer.Stop()
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Shutdown with error")
	}
	log.Info().Msg("Shutdown complete")
}

func buildSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Type {
	case "synthetic":
		return source.NewSynthetic(cfg.Width, cfg.Height, cfg.FPS), nil
	case "rawfile":
		return source.OpenRawFile(cfg.Path, cfg.Width, cfg.Height, cfg.FPS, cfg.Loop)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
