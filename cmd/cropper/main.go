package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tkoide/framesentry/internal/config"
	"github.com/tkoide/framesentry/internal/crop"
	"github.com/tkoide/framesentry/internal/logger"
	"github.com/tkoide/framesentry/internal/motion"
	"github.com/tkoide/framesentry/internal/shmbus"
	"github.com/tkoide/framesentry/internal/track"
)

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
	log.Info().Str("bus", snap.Bus.Name).Str("output", snap.Cropper.OutputDir).
		Msg("Starting cropper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := shmbus.AttachWithRetry(ctx, snap.Bus.Name, 500*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Fatal().Err(err).Msg("Failed to attach to frame bus")
	}
	defer sub.Detach()
	log.Info().Str("bus", snap.Bus.Name).Msg("Attached to frame bus")

	saver, err := crop.NewSaver(snap.Cropper.OutputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare output directory")
	}
	saver.Format = snap.Cropper.Format
	saver.Quality = snap.Cropper.Quality
	saver.Padding = snap.Cropper.Padding
	saver.MinSize = snap.Cropper.MinSize
	saver.KeepLatest = snap.Cropper.KeepLatest
	saver.MaxImages = snap.Cropper.MaxImages

	detector := motion.NewDetector(uint8(snap.Motion.Threshold), snap.Motion.MinRegionArea)
	tracker := track.NewTracker(snap.Cropper.IoUThreshold, snap.Cropper.TrackTimeout)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / snap.Cropper.PollHz))
	defer ticker.Stop()

	var lastSeen uint64
	var saved, skipped uint64

	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("saved", saved).Uint64("skipped", skipped).Msg("Cropper stopped")
			return
		case <-ticker.C:
		}

		f, err := sub.Poll(lastSeen)
		if err != nil {
			if errors.Is(err, shmbus.ErrNotFound) {
				log.Info().Uint64("last_sequence", lastSeen).
					Msg("Publisher gone, segment removed, exiting")
				return
			}
			log.Warn().Err(err).Msg("Poll failed")
			continue
		}
		if f == nil {
			continue
		}
		lastSeen = f.Sequence

		regions := detector.Detect(f)
		if len(regions) == 0 {
			continue
		}

		matches := tracker.Update(regions, f.Timestamp)
		var paths []string
		for i, m := range matches {
			if !m.New || !saver.Eligible(m.Region) {
				skipped++
				continue
			}
			path, err := saver.Save(f, m.Region, i)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to save crop")
				continue
			}
			saved++
			paths = append(paths, path)
			log.Debug().Str("path", path).Str("track", m.Track.ID.String()).
				Uint64("sequence", f.Sequence).Msg("Crop saved")
		}
		if len(paths) > 0 {
			if err := saver.Sweep(paths); err != nil {
				log.Warn().Err(err).Msg("Retention sweep failed")
			}
		}
	}
}
