package app

import (
	"errors"
	"time"

	"github.com/ayusman/handpoint/internal/capture"
	"github.com/ayusman/handpoint/internal/debuglog"
)

// Start opens the source and begins the pipeline goroutine. Starting a
// running pipeline is a no-op.
func (a *App) Start() error {
	if a.config.Source == nil {
		return ErrNoSource
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.config.Source.Open(); err != nil {
		return err
	}

	if interval := a.tuning.GetFrameInterval(); interval > 0 {
		a.config.Source.SetFPS(int(time.Second / interval))
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	debuglog.Opsf("hand pipeline started at %d fps", a.config.Source.FPS())
	return nil
}

// Stop halts the pipeline and closes the source. It waits for the frame in
// flight to finish.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	<-doneCh

	if err := a.config.Source.Close(); err != nil {
		debuglog.Opsf("error closing source: %v", err)
	}
	debuglog.Opsf("hand pipeline stopped")
}

// Done returns a channel closed when the running pipeline exits, either
// because it was stopped or because the source ran out of frames. It is
// nil when the pipeline is not running.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doneCh
}

// runPipeline reads one frame per tick from the source and processes it.
// A non-looping source that runs dry ends the loop.
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	fps := a.config.Source.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			depth, err := a.config.Source.ReadFrame()
			if errors.Is(err, capture.ErrNoMoreFrames) {
				debuglog.Opsf("source exhausted")
				return
			}
			if err != nil {
				debuglog.Opsf("error reading frame: %v", err)
				continue
			}

			_, err = a.ProcessFrame(*depth)
			depth.Close()
			if err != nil {
				debuglog.Opsf("error processing frame: %v", err)
			}
		}
	}
}
