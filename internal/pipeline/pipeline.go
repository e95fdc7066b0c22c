// Package pipeline drives the per-frame processing loop: pull a frame from
// the source, run motion detection, merge external object detections, render
// the overlay and hand the annotated frame to the publisher and any sinks.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tkoide/framesentry/internal/detect"
	"github.com/tkoide/framesentry/internal/frame"
	"github.com/tkoide/framesentry/internal/motion"
	"github.com/tkoide/framesentry/internal/overlay"
	"github.com/tkoide/framesentry/internal/source"
)

// Publisher is the annotated-frame output. *shmbus.Publisher satisfies it.
type Publisher interface {
	Publish(f *frame.Frame) error
}

// MotionSink receives the regions of every frame where motion was found.
type MotionSink func(f *frame.Frame, regions []detect.Region)

// FrameSink receives every annotated frame after rendering. Used for the
// MJPEG live stream.
type FrameSink func(f *frame.Frame)

// Stats is a snapshot of pipeline counters for the status API.
type Stats struct {
	FramesProcessed uint64  `json:"frames_processed"`
	FramesPublished uint64  `json:"frames_published"`
	MotionFrames    uint64  `json:"motion_frames"`
	DetectorErrors  uint64  `json:"detector_errors"`
	LastSequence    uint64  `json:"last_sequence"`
	FPS             float64 `json:"fps"`
}

type Pipeline struct {
	Source    source.Source
	Detector  *motion.Detector
	Provider  detect.Provider
	Renderer  *overlay.Renderer
	Publisher Publisher

	MotionEnabled bool
	OnMotion      MotionSink
	OnFrame       FrameSink

	mu    sync.RWMutex
	stats Stats

	// FPS window
	windowStart  time.Time
	windowFrames int
}

func New(src source.Source, det *motion.Detector, provider detect.Provider, renderer *overlay.Renderer, pub Publisher) *Pipeline {
	if provider == nil {
		provider = detect.None{}
	}
	return &Pipeline{
		Source:        src,
		Detector:      det,
		Provider:      provider,
		Renderer:      renderer,
		Publisher:     pub,
		MotionEnabled: true,
		windowStart:   time.Now(),
	}
}

// Run processes frames until the context is cancelled or the source is
// exhausted. Transient source errors are logged and retried; io.EOF ends
// the loop cleanly.
func (p *Pipeline) Run(ctx context.Context) error {
	log.Info().Msg("Pipeline started")
	defer log.Info().Msg("Pipeline stopped")

	for {
		f, err := p.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				log.Info().Msg("Source exhausted")
				return nil
			}
			log.Error().Err(err).Msg("Error reading frame")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.Process(f); err != nil {
			log.Error().Uint64("sequence", f.Sequence).Err(err).Msg("Error processing frame")
		}
	}
}

// Process runs one frame through detection, overlay and publish. The frame's
// sequence is assigned here; detector panics are contained so a bad frame
// cannot take down the loop.
func (p *Pipeline) Process(f *frame.Frame) error {
	p.mu.Lock()
	p.stats.FramesProcessed++
	p.stats.LastSequence++
	f.Sequence = p.stats.LastSequence
	motionEnabled := p.MotionEnabled
	p.tickFPS()
	p.mu.Unlock()

	var regions []detect.Region
	if motionEnabled && p.Detector != nil {
		regions = p.detectMotion(f)
	}
	if len(regions) > 0 {
		p.mu.Lock()
		p.stats.MotionFrames++
		p.mu.Unlock()
		if p.OnMotion != nil {
			p.OnMotion(f, regions)
		}
	}

	objects, err := p.Provider.Detect(f)
	if err != nil {
		log.Warn().Err(err).Msg("Object provider failed")
	}
	regions = append(regions, objects...)

	if p.Renderer != nil {
		p.mu.RLock()
		status := overlay.Status{
			FPS:           p.stats.FPS,
			Motion:        len(regions) > 0,
			MotionEnabled: motionEnabled,
			ObjectCount:   len(objects),
			ObjectEnabled: !isNoneProvider(p.Provider),
		}
		p.mu.RUnlock()
		p.Renderer.Draw(f, regions, status)
	}

	if p.OnFrame != nil {
		p.OnFrame(f)
	}

	if p.Publisher != nil {
		if err := p.Publisher.Publish(f); err != nil {
			return err
		}
		p.mu.Lock()
		p.stats.FramesPublished++
		p.mu.Unlock()
	}
	return nil
}

func (p *Pipeline) detectMotion(f *frame.Frame) (regions []detect.Region) {
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.stats.DetectorErrors++
			p.mu.Unlock()
			log.Error().Interface("panic", r).Uint64("sequence", f.Sequence).
				Msg("Motion detector panicked, frame passes through unannotated")
			regions = nil
		}
	}()
	return p.Detector.Detect(f)
}

// tickFPS updates the rolling FPS figure once a second. Caller holds p.mu.
func (p *Pipeline) tickFPS() {
	p.windowFrames++
	elapsed := time.Since(p.windowStart)
	if elapsed >= time.Second {
		p.stats.FPS = float64(p.windowFrames) / elapsed.Seconds()
		p.windowFrames = 0
		p.windowStart = time.Now()
	}
}

func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// SetMotionEnabled toggles motion detection at runtime.
func (p *Pipeline) SetMotionEnabled(enabled bool) {
	p.mu.Lock()
	p.MotionEnabled = enabled
	p.mu.Unlock()
	log.Info().Bool("enabled", enabled).Msg("Motion detection toggled")
}

func isNoneProvider(p detect.Provider) bool {
	_, ok := p.(detect.None)
	return ok
}
