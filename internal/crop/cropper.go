// Package crop persists region crops from bus frames as JPEG or PNG files
// for downstream AI consumption, with bounded on-disk retention.
package crop

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tkoide/framesentry/internal/detect"
	"github.com/tkoide/framesentry/internal/frame"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Saver crops detection regions out of frames and writes them to the
// output directory. File names follow
// {label}_{YYYYMMDD_HHMMSS}_{sequence}_{index}.{ext} so consumers can
// group by label and order by capture time.
type Saver struct {
	OutputDir string
	Format    string // FormatJPEG or FormatPNG
	Quality   int    // JPEG quality 1-100
	Padding   int    // extra pixels around the region, clamped to the frame
	MinSize   int    // regions narrower or shorter than this are skipped

	// Retention. KeepLatest keeps only the newest image per label;
	// otherwise MaxImages bounds the directory size (0 = unbounded).
	KeepLatest bool
	MaxImages  int
}

func NewSaver(outputDir string) (*Saver, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("crop: create output dir: %w", err)
	}
	return &Saver{
		OutputDir: outputDir,
		Format:    FormatJPEG,
		Quality:   90,
		Padding:   10,
		MinSize:   32,
		MaxImages: 100,
	}, nil
}

// Eligible reports whether the region is large enough to persist.
func (s *Saver) Eligible(r detect.Region) bool {
	return r.W >= s.MinSize && r.H >= s.MinSize
}

// Save crops the region (with padding) from the frame and writes it.
// Returns the written path.
func (s *Saver) Save(f *frame.Frame, r detect.Region, index int) (string, error) {
	cropped, err := f.Crop(r.X-s.Padding, r.Y-s.Padding, r.W+2*s.Padding, r.H+2*s.Padding)
	if err != nil {
		return "", fmt.Errorf("crop: %w", err)
	}

	var data []byte
	ext := ".jpg"
	if s.Format == FormatPNG {
		data, err = cropped.EncodePNG()
		ext = ".png"
	} else {
		data, err = cropped.EncodeJPEG(s.Quality)
	}
	if err != nil {
		return "", fmt.Errorf("crop: encode: %w", err)
	}

	ts := time.Unix(int64(f.Timestamp), 0)
	name := fmt.Sprintf("%s_%s_%06d_%02d%s",
		labelFor(r), ts.Format("20060102_150405"), f.Sequence, index, ext)
	path := filepath.Join(s.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("crop: write %s: %w", name, err)
	}
	return path, nil
}

// Sweep applies the retention policy after a batch of saves. savedPaths are
// the files just written; with KeepLatest they are the per-label survivors.
func (s *Saver) Sweep(savedPaths []string) error {
	if s.KeepLatest {
		return s.sweepKeepLatest(savedPaths)
	}
	if s.MaxImages > 0 {
		return s.sweepMaxImages()
	}
	return nil
}

func (s *Saver) sweepKeepLatest(savedPaths []string) error {
	latest := make(map[string]string)
	for _, p := range savedPaths {
		latest[labelOf(p)] = p
	}
	images, err := s.list()
	if err != nil {
		return err
	}
	for _, p := range images {
		keep, ok := latest[labelOf(p)]
		if ok && p != keep {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("crop: sweep: %w", err)
			}
		}
	}
	return nil
}

func (s *Saver) sweepMaxImages() error {
	images, err := s.list()
	if err != nil {
		return err
	}
	for len(images) > s.MaxImages {
		oldest := images[0]
		images = images[1:]
		if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("crop: sweep: %w", err)
		}
	}
	return nil
}

// list returns output images sorted by name; the timestamped naming scheme
// makes that oldest-first.
func (s *Saver) list() ([]string, error) {
	ext := "*.jpg"
	if s.Format == FormatPNG {
		ext = "*.png"
	}
	images, err := filepath.Glob(filepath.Join(s.OutputDir, ext))
	if err != nil {
		return nil, fmt.Errorf("crop: list: %w", err)
	}
	sort.Strings(images)
	return images, nil
}

// Spaces in class names become dashes so the underscore stays the filename
// field separator for labelOf.
func labelFor(r detect.Region) string {
	if r.Label != "" {
		return strings.ReplaceAll(r.Label, " ", "-")
	}
	return string(r.Kind)
}

func labelOf(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}
