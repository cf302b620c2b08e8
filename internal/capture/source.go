// Package capture provides depth frame sources and the seed detector that
// feeds new hand candidates to the tracker.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultFPS is the playback rate of a DirSource.
const DefaultFPS = 30

var (
	// ErrSourceNotOpen is returned when reading from a source that is not open.
	ErrSourceNotOpen = errors.New("source is not open")
	// ErrNoMoreFrames is returned once a non-looping source is exhausted.
	ErrNoMoreFrames = errors.New("no more frames")
)

// Source produces full resolution depth frames. Frames are single channel
// CV_32F Mats in millimetres. The caller owns and must close each frame.
type Source interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// DirSource plays back a directory of 16-bit depth PNG files in name order.
type DirSource struct {
	dir  string
	loop bool

	mu      sync.Mutex
	files   []string
	index   int
	fps     int
	running bool
}

// NewDirSource creates a source over the PNG files in dir.
func NewDirSource(dir string, loop bool) *DirSource {
	return &DirSource{
		dir:  dir,
		loop: loop,
		fps:  DefaultFPS,
	}
}

// Open lists the frames of the directory. It fails when there are none.
func (s *DirSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read frame directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		files = append(files, filepath.Join(s.dir, entry.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("no depth frames in %s", s.dir)
	}
	sort.Strings(files)

	s.files = files
	s.index = 0
	s.running = true
	return nil
}

// Close stops playback.
func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	return nil
}

// ReadFrame decodes the next frame.
func (s *DirSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}

	if s.index >= len(s.files) {
		if !s.loop {
			return nil, ErrNoMoreFrames
		}
		s.index = 0
	}

	path := s.files[s.index]
	s.index++

	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode depth frame %s", path)
	}
	if mat.Channels() != 1 {
		mat.Close()
		return nil, fmt.Errorf("depth frame %s has %d channels", path, mat.Channels())
	}

	depth := gocv.NewMat()
	mat.ConvertTo(&depth, gocv.MatTypeCV32F)
	mat.Close()

	return &depth, nil
}

// SetFPS sets the playback rate. Values less than or equal to 0 are ignored.
func (s *DirSource) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fps = fps
}

// FPS returns the playback rate.
func (s *DirSource) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fps
}

// IsOpen returns true if the source is open.
func (s *DirSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Len returns the number of frames found by Open.
func (s *DirSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.files)
}

// WriteDepthPNG stores a depth frame as a 16-bit PNG, the format DirSource
// reads.
func WriteDepthPNG(path string, depth gocv.Mat) error {
	raw := gocv.NewMat()
	defer raw.Close()
	depth.ConvertTo(&raw, gocv.MatTypeCV16U)

	if ok := gocv.IMWrite(path, raw); !ok {
		return fmt.Errorf("write depth frame %s", path)
	}
	return nil
}
