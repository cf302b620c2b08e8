// Package app runs the hand stream: it turns full resolution depth frames
// into hand frames by way of the seed detector and the point processor.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/ayusman/handpoint/internal/capture"
	"github.com/ayusman/handpoint/internal/config"
	"github.com/ayusman/handpoint/internal/debuglog"
	"github.com/ayusman/handpoint/internal/frame"
	"github.com/ayusman/handpoint/internal/hand"
	"github.com/ayusman/handpoint/internal/mapper"
	"github.com/ayusman/handpoint/internal/store"
	"gocv.io/x/gocv"
)

// IncludeCandidatePointsKey is the settings key of the include-candidates
// stream parameter.
const IncludeCandidatePointsKey = "include_candidate_points"

var (
	// ErrEmptyFrame is returned by ProcessFrame for an empty depth frame.
	ErrEmptyFrame = errors.New("empty depth frame")
	// ErrNoSource is returned by Start when no source is configured.
	ErrNoSource = errors.New("no frame source configured")
)

// Config holds configuration options for the application.
type Config struct {
	// Store records sessions and hand frames. Optional.
	Store *store.Store
	// Source feeds the pipeline started by Start. Optional for callers
	// that only use ProcessFrame.
	Source capture.Source
	// Tuning overrides the compiled-in defaults. Nil means defaults.
	Tuning *config.TuningConfig
}

// App is the hand stream.
type App struct {
	config Config
	tuning *config.TuningConfig

	processor *hand.PointProcessor
	seeds     *capture.SeedDetector
	scale     int

	// guarded by procMu
	procMu     sync.Mutex
	cache      mapper.ConversionCache
	fullSize   image.Point
	sessionID  string
	frameIndex int

	mu                sync.RWMutex
	includeCandidates bool
	maxHands          int
	callbacks         []func(HandFrame)
	stopCh            chan struct{}
	doneCh            chan struct{}
}

// New creates a new App with the given configuration. It fails for invalid
// tuning values.
func New(cfg Config) (*App, error) {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	settings := hand.SettingsFromTuning(tuning)
	processor, err := hand.NewPointProcessor(settings)
	if err != nil {
		return nil, err
	}

	seedCfg := capture.SeedDetectorConfig{
		MotionThreshold: tuning.GetMotionThreshold(),
		MinDepth:        settings.Segmentation.MinDepth,
		MaxDepth:        settings.Segmentation.MaxDepth,
		MinContourArea:  tuning.GetMinContourArea(),
		MaxSeeds:        tuning.GetMaxSeeds(),
	}

	a := &App{
		config:            cfg,
		tuning:            tuning,
		processor:         processor,
		seeds:             capture.NewSeedDetector(seedCfg),
		scale:             tuning.GetProcessingScale(),
		includeCandidates: tuning.GetIncludeCandidatePoints(),
		maxHands:          tuning.GetMaxHandCount(),
	}

	if cfg.Store != nil {
		include, err := cfg.Store.Settings().GetBool(IncludeCandidatePointsKey, a.includeCandidates)
		if err != nil {
			debuglog.Opsf("ignoring stored %s: %v", IncludeCandidatePointsKey, err)
		} else {
			a.includeCandidates = include
		}
	}

	return a, nil
}

// Settings returns the point processor settings of the stream.
func (a *App) Settings() hand.Settings {
	return a.processor.Settings()
}

// SetIncludeCandidatePoints sets whether hand frames report candidate
// points. The value is persisted when a store is configured.
func (a *App) SetIncludeCandidatePoints(include bool) error {
	a.mu.Lock()
	a.includeCandidates = include
	a.mu.Unlock()

	if a.config.Store == nil {
		return nil
	}
	if err := a.config.Store.Settings().SetBool(IncludeCandidatePointsKey, include); err != nil {
		return fmt.Errorf("persist %s: %w", IncludeCandidatePointsKey, err)
	}
	return nil
}

// IncludeCandidatePoints returns whether hand frames report candidate points.
func (a *App) IncludeCandidatePoints() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.includeCandidates
}

// RegisterHandFrameCallback registers fn to be called with every hand frame
// produced by ProcessFrame. fn runs inside ProcessFrame and must not call
// ProcessFrame, Reset or SessionID.
func (a *App) RegisterHandFrameCallback(fn func(HandFrame)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// ProcessFrame runs one full resolution depth frame through the stream and
// returns the resulting hand frame. depthFullSize is not retained.
func (a *App) ProcessFrame(depthFullSize gocv.Mat) (HandFrame, error) {
	if depthFullSize.Empty() {
		return HandFrame{}, ErrEmptyFrame
	}

	a.procMu.Lock()
	defer a.procMu.Unlock()

	size := image.Pt(depthFullSize.Cols(), depthFullSize.Rows())
	if size != a.fullSize {
		if err := a.resolutionChanged(size); err != nil {
			return HandFrame{}, err
		}
	}

	full := gocv.NewMat()
	depthFullSize.ConvertTo(&full, gocv.MatTypeCV32F)

	depth := gocv.NewMat()
	if a.scale > 1 {
		gocv.Resize(full, &depth, image.Pt(size.X/a.scale, size.Y/a.scale), 0, 0, gocv.InterpolationNearestNeighbor)
	} else {
		full.CopyTo(&depth)
	}

	seeds, velocity := a.seeds.Detect(depth)

	m := frame.New(depth, full, a.cache)
	m.SetVelocitySignal(velocity)
	a.processor.ProcessFrame(m, seeds)
	m.Close()

	hf := a.handFrame(a.frameIndex, a.processor.TrackedPoints())
	a.record(hf)
	a.frameIndex++

	a.mu.RLock()
	callbacks := a.callbacks
	a.mu.RUnlock()
	for _, fn := range callbacks {
		fn(hf)
	}

	debuglog.Diagf("frame %d: %d seeds, %d hands", hf.Index, len(seeds), len(hf.Hands))
	return hf, nil
}

// resolutionChanged rebuilds the conversion cache for a new sensor size and
// starts a new session, since tracked positions are meaningless across it.
func (a *App) resolutionChanged(size image.Point) error {
	if size.X < a.scale || size.Y < a.scale {
		return fmt.Errorf("depth frame %dx%d smaller than processing scale %d", size.X, size.Y, a.scale)
	}

	if a.fullSize != (image.Point{}) {
		debuglog.Opsf("depth resolution changed from %v to %v, resetting", a.fullSize, size)
		a.endSession()
		a.processor.Reset()
		a.seeds.Reset()
	}

	a.fullSize = size
	a.cache = mapper.NewConversionCache(size.X, size.Y,
		a.tuning.GetHorizontalFOVDegrees()*math.Pi/180,
		a.tuning.GetVerticalFOVDegrees()*math.Pi/180)

	// the next frame of this size retries the session
	if err := a.startSession(); err != nil {
		a.fullSize = image.Point{}
		return err
	}
	return nil
}

// Reset drops all tracked points and starts a new session on the next frame.
func (a *App) Reset() {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	a.endSession()
	a.processor.Reset()
	a.seeds.Reset()
	a.fullSize = image.Point{}
}

// SessionID returns the id of the recording session, or "" when nothing is
// being recorded.
func (a *App) SessionID() string {
	a.procMu.Lock()
	defer a.procMu.Unlock()
	return a.sessionID
}

func (a *App) startSession() error {
	a.frameIndex = 0
	if a.config.Store == nil {
		return nil
	}

	settings, err := json.Marshal(a.processor.Settings())
	if err != nil {
		return fmt.Errorf("encode session settings: %w", err)
	}

	sess := &store.Session{
		FullWidth:       a.fullSize.X,
		FullHeight:      a.fullSize.Y,
		ProcessingScale: a.scale,
		Settings:        settings,
	}
	if err := a.config.Store.Sessions().Create(sess); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	a.sessionID = sess.ID
	debuglog.Opsf("session %s started at %dx%d", sess.ID, a.fullSize.X, a.fullSize.Y)
	return nil
}

func (a *App) endSession() {
	if a.sessionID == "" {
		return
	}
	if err := a.config.Store.Sessions().End(a.sessionID, a.frameIndex); err != nil {
		debuglog.Opsf("end session %s: %v", a.sessionID, err)
	} else {
		debuglog.Opsf("session %s ended after %d frames", a.sessionID, a.frameIndex)
	}
	a.sessionID = ""
}

func (a *App) record(hf HandFrame) {
	if a.sessionID == "" || len(hf.Hands) == 0 {
		return
	}

	points := make([]store.HandPoint, len(hf.Hands))
	for i, h := range hf.Hands {
		points[i] = store.HandPoint{
			TrackingID: h.TrackingID,
			Type:       h.Type.String(),
			Status:     h.Status.String(),
			X:          h.Position.X,
			Y:          h.Position.Y,
			FullSizeX:  h.FullSizePosition.X,
			FullSizeY:  h.FullSizePosition.Y,
			WorldX:     h.WorldPosition.X,
			WorldY:     h.WorldPosition.Y,
			WorldZ:     h.WorldPosition.Z,
		}
	}

	if err := a.config.Store.HandPoints().Record(a.sessionID, hf.Index, points); err != nil {
		debuglog.Opsf("record frame %d: %v", hf.Index, err)
	}
}

// Close stops the pipeline, ends the recording session and releases the
// seed detector.
func (a *App) Close() {
	a.Stop()

	a.procMu.Lock()
	defer a.procMu.Unlock()

	a.endSession()
	a.seeds.Close()
}
