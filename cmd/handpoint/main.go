package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/ayusman/handpoint/internal/app"
	"github.com/ayusman/handpoint/internal/capture"
	"github.com/ayusman/handpoint/internal/config"
	"github.com/ayusman/handpoint/internal/debuglog"
	"github.com/ayusman/handpoint/internal/hand"
	"github.com/ayusman/handpoint/internal/store"
)

var (
	framesDir         = flag.String("frames", "", "Directory of 16-bit depth PNG frames (required)")
	configFile        = flag.String("config", "", "Path to a JSON tuning file (default: compiled-in defaults)")
	dbFile            = flag.String("db", "", "Path to the SQLite database recording sessions (empty disables recording)")
	fps               = flag.Int("fps", 0, "Playback rate in frames per second (0 uses the tuning frame interval)")
	scale             = flag.Int("scale", 0, "Processing scale, full resolution divided by processing resolution")
	hfov              = flag.Float64("hfov", 0, "Horizontal field of view in degrees")
	vfov              = flag.Float64("vfov", 0, "Vertical field of view in degrees")
	includeCandidates = flag.Bool("include-candidates", false, "Report candidate points as well as active hands")
	maxHands          = flag.Int("max-hands", -1, "Maximum hands per frame, 0 for no cap (-1 uses the tuning value)")
	loop              = flag.Bool("loop", false, "Loop the frame sequence until interrupted")
	debug             = flag.Bool("debug", false, "Log per-frame diagnostics")
	trace             = flag.Bool("trace", false, "Log per-point tracking decisions")
)

// summary collects statistics over the hand frames of a run.
type summary struct {
	mu        sync.Mutex
	frames    int
	maxHands  int
	seen      map[int]bool
	activeIDs map[int]bool
}

func (s *summary) add(hf app.HandFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.maxHands = max(s.maxHands, len(hf.Hands))
	for _, h := range hf.Hands {
		s.seen[h.TrackingID] = true
		if h.Type == hand.ActivePoint {
			s.activeIDs[h.TrackingID] = true
		}
	}
}

func (s *summary) print() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]int, 0, len(s.activeIDs))
	for id := range s.activeIDs {
		active = append(active, id)
	}
	sort.Ints(active)

	fmt.Printf("Frames processed: %d\n", s.frames)
	fmt.Printf("Tracking ids reported: %d\n", len(s.seen))
	fmt.Printf("Most hands in one frame: %d\n", s.maxHands)
	fmt.Printf("Active hand ids: %v\n", active)
}

func loadTuning() (*config.TuningConfig, error) {
	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			return nil, err
		}
	}

	if *fps > 0 {
		interval := (time.Second / time.Duration(*fps)).String()
		tuning.FrameInterval = &interval
	}
	if *scale > 0 {
		tuning.ProcessingScale = scale
	}
	if *hfov > 0 {
		tuning.HorizontalFOVDegrees = hfov
	}
	if *vfov > 0 {
		tuning.VerticalFOVDegrees = vfov
	}
	if *maxHands >= 0 {
		tuning.MaxHandCount = maxHands
	}

	return tuning, tuning.Validate()
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// openStore opens the recording database.
var openStore = store.New

func main() {
	flag.Parse()

	if *framesDir == "" {
		fmt.Fprintln(os.Stderr, "handpoint: -frames is required")
		flag.Usage()
		os.Exit(2)
	}

	writers := debuglog.LogWriters{Ops: os.Stdout}
	if *debug {
		writers.Diag = os.Stdout
	}
	if *trace {
		writers.Trace = os.Stdout
	}
	debuglog.SetLogWriters(writers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// run plays the frame directory until it is exhausted or ctx is done. The
// store and the stream are closed before it returns.
func run(ctx context.Context) error {
	tuning, err := loadTuning()
	if err != nil {
		return fmt.Errorf("failed to load tuning: %w", err)
	}

	var st *store.Store
	if *dbFile != "" {
		st, err = openStore(*dbFile)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()
	}

	source := capture.NewDirSource(*framesDir, *loop)
	stream, err := app.New(app.Config{
		Store:  st,
		Source: source,
		Tuning: tuning,
	})
	if err != nil {
		return fmt.Errorf("failed to create hand stream: %w", err)
	}
	defer stream.Close()

	if flagSet("include-candidates") {
		if err := stream.SetIncludeCandidatePoints(*includeCandidates); err != nil {
			log.Printf("Failed to store include-candidates: %v", err)
		}
	}

	stats := &summary{seen: make(map[int]bool), activeIDs: make(map[int]bool)}
	stream.RegisterHandFrameCallback(stats.add)

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start hand stream: %w", err)
	}

	fmt.Printf("Playing %d frames from %s\n", source.Len(), *framesDir)

	select {
	case <-ctx.Done():
		fmt.Println("Interrupted")
	case <-stream.Done():
	}

	sessionID := stream.SessionID()
	stream.Close()

	stats.print()
	if sessionID != "" {
		fmt.Printf("Recorded session: %s\n", sessionID)
	}
	return nil
}
