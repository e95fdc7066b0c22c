package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hybridgroup/mjpeg"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/tkoide/framesentry/internal/config"
	"github.com/tkoide/framesentry/internal/emitter"
	"github.com/tkoide/framesentry/internal/health"
	"github.com/tkoide/framesentry/internal/pipeline"
)

// EmitterStats lets the server report broker counters without holding a
// concrete emitter; nil means MQTT is disabled.
type EmitterStats interface {
	Stats() emitter.Stats
}

type Server struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	stream  *mjpeg.Stream
	emitter EmitterStats
	checker *health.Checker
	srv     *http.Server
}

func New(cfg *config.Config, pipe *pipeline.Pipeline, stream *mjpeg.Stream, em EmitterStats) *Server {
	return &Server{
		cfg:     cfg,
		pipe:    pipe,
		stream:  stream,
		emitter: em,
		checker: health.NewChecker(5 * time.Second),
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/motion-detection/enable", s.handleMotionEnable)
	mux.HandleFunc("/api/motion-detection/disable", s.handleMotionDisable)

	if s.stream != nil {
		mux.Handle("/stream", s.stream)
	}

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	snap := s.cfg.Get()
	addr := fmt.Sprintf("%s:%d", snap.Server.Host, snap.Server.Port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.corsMiddleware(mux),
	}

	log.Info().Str("addr", addr).Msg("Starting API server")
	return s.srv.ListenAndServe()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// CORS middleware for browser clients
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleStatus godoc
// @Summary Get system status
// @Description Pipeline counters, bus segment health and host resource usage
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.cfg.Get()
	status := map[string]interface{}{
		"version":  "0.1.0",
		"pipeline": s.pipe.Stats(),
		"bus": map[string]interface{}{
			"name":    snap.Bus.Name,
			"enabled": snap.Bus.Enabled,
		},
	}

	if s.emitter != nil {
		status["mqtt"] = s.emitter.Stats()
	}

	broker := ""
	if snap.MQTT.Enabled {
		broker = snap.MQTT.Broker
	}
	status["health"] = s.checker.Check(snap.Bus.Name, broker)

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"used_percent": vm.UsedPercent,
			"total_mb":     vm.Total / (1024 * 1024),
			"used_mb":      vm.Used / (1024 * 1024),
		}
	}

	respondJSON(w, http.StatusOK, status)
}

// handleConfig godoc
// @Summary Get or update configuration
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} config.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/config [get]
// @Router /api/config [put]
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.cfg.Get())

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read body")
			return
		}

		var updates map[string]interface{}
		if err := json.Unmarshal(body, &updates); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		s.cfg.Update(func(c *config.Config) {
			applyConfigUpdates(c, updates)
		})

		log.Info().Msg("Configuration updated via API")
		respondJSON(w, http.StatusOK, s.cfg.Get())

	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMotionEnable godoc
// @Summary Enable motion detection
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/motion-detection/enable [post]
func (s *Server) handleMotionEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.pipe.SetMotionEnabled(true)
	respondJSON(w, http.StatusOK, map[string]string{"motion_detection": "enabled"})
}

// handleMotionDisable godoc
// @Summary Disable motion detection
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/motion-detection/disable [post]
func (s *Server) handleMotionDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.pipe.SetMotionEnabled(false)
	respondJSON(w, http.StatusOK, map[string]string{"motion_detection": "disabled"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func applyConfigUpdates(c *config.Config, updates map[string]interface{}) {
	if motion, ok := updates["motion"].(map[string]interface{}); ok {
		if threshold, ok := motion["threshold"].(float64); ok {
			c.Motion.Threshold = int(threshold)
		}
		if minArea, ok := motion["min_region_area"].(float64); ok {
			c.Motion.MinRegionArea = int(minArea)
		}
	}
	if cropper, ok := updates["cropper"].(map[string]interface{}); ok {
		if quality, ok := cropper["quality"].(float64); ok {
			c.Cropper.Quality = int(quality)
		}
		if maxImages, ok := cropper["max_images"].(float64); ok {
			c.Cropper.MaxImages = int(maxImages)
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
