package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory depth frames for testing
type MockSource struct {
	frames  []*gocv.Mat
	index   int
	loop    bool
	fps     int
	mu      sync.Mutex
	running bool
}

func NewMockSource(frames []*gocv.Mat, loop bool) *MockSource {
	return &MockSource{
		frames: frames,
		loop:   loop,
		fps:    DefaultFPS,
	}
}

func (s *MockSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.index = 0
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *MockSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}

	if len(s.frames) == 0 {
		return nil, errors.New("no frames available")
	}

	if s.index >= len(s.frames) {
		if !s.loop {
			return nil, ErrNoMoreFrames
		}
		s.index = 0
	}

	// Clone so the caller can close its copy
	frame := s.frames[s.index].Clone()
	s.index++

	return &frame, nil
}

func (s *MockSource) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = fps
}

func (s *MockSource) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetFrames replaces the frame sequence
func (s *MockSource) SetFrames(frames []*gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = frames
	s.index = 0
}

// Reset restarts playback from the beginning
func (s *MockSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
}
