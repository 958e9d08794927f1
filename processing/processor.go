package processing

import (
	"context"
	stderrors "errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"weldvision/internal/config"
	"weldvision/internal/models"
	"weldvision/processing/capture"
	"weldvision/processing/detector"
	"weldvision/processing/sink"
)

var (
	ErrNoModel = stderrors.New("no detection model loaded")
	ErrRunning = stderrors.New("detection already running")
	ErrClosed  = stderrors.New("processor closed")
)

type State int

const (
	// StateIdle: no model, or the last run ended.
	StateIdle State = iota
	// StateReady: model loaded, no source open yet.
	StateReady
	// StateRunning: source open and ticking.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Renderer draws detections over a frame.
type Renderer interface {
	Render(img image.Image, dets []models.Detection) image.Image
}

// Display shows a rendered frame.
type Display interface {
	Show(img image.Image)
}

// SourceOpener opens the configured frame source.
type SourceOpener func() (capture.FrameSource, error)

// Ticker paces the loop. time.Ticker satisfies it through NewTimeTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Options struct {
	// Detector is nil when the model failed to load.
	Detector   detector.Detector
	Renderer   Renderer
	Sink       sink.Sink
	Display    Display
	OpenSource SourceOpener

	Labels     models.Labels
	Width      int
	Height     int
	Interval   time.Duration
	RecordMode config.RecordMode

	NewTicker     func(time.Duration) Ticker
	Now           func() time.Time
	OnStateChange func(State)
	Logger        *zap.SugaredLogger
}

type Stats struct {
	Frames  uint64
	FPS     uint
	Latency time.Duration
}

// Processor is the detection loop: one frame read, resized, detected,
// recorded and displayed per tick. Steps never overlap.
type Processor struct {
	opts   Options
	logger *zap.SugaredLogger

	mu     sync.Mutex
	state  State
	src    capture.FrameSource
	cancel context.CancelFunc
	done     chan struct{}
	starting bool
	closed   bool

	// frame size of the current run
	width, height int

	statsMu       sync.RWMutex
	stats         Stats
	frameCount    uint
	lastFpsUpdate time.Time
}

type passthrough struct{}

func (passthrough) Render(img image.Image, _ []models.Detection) image.Image { return img }

type noDisplay struct{}

func (noDisplay) Show(image.Image) {}

type noSink struct{}

func (noSink) Append(context.Context, models.DetectionRecord) error { return nil }
func (noSink) Close() error                                         { return nil }

func NewProcessor(opts Options) *Processor {
	if opts.Renderer == nil {
		opts.Renderer = passthrough{}
	}
	if opts.Display == nil {
		opts.Display = noDisplay{}
	}
	if opts.Sink == nil {
		opts.Sink = noSink{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second / time.Duration(config.DefaultFPS)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 640, 480
	}
	if opts.RecordMode == "" {
		opts.RecordMode = config.RecordAll
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	p := &Processor{
		opts:   opts,
		logger: opts.Logger,
		state:  StateIdle,
		width:  opts.Width,
		height: opts.Height,
	}
	if opts.Detector != nil {
		p.state = StateReady
	}
	return p
}

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CanStart reports whether Start would try to open a source.
func (p *Processor) CanStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && !p.starting && p.opts.Detector != nil && p.state != StateRunning
}

// Done is closed when the current run ends. It is nil before the first Start.
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Processor) Stats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// SetInterval changes the tick interval used from the next Start on.
func (p *Processor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.Interval = d
}

// SetSize changes the frame size used from the next Start on.
func (p *Processor) SetSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.Width, p.opts.Height = width, height
}

// SetConfidence forwards a new score threshold to the detector. It reports
// false when the detector has no adjustable threshold.
func (p *Processor) SetConfidence(c float32) bool {
	t, ok := p.opts.Detector.(detector.Thresholder)
	if !ok {
		return false
	}
	t.SetConfidence(c)
	return true
}

func (p *Processor) notify(s State) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(s)
	}
}

// Start opens the source and begins ticking. It is a no-op returning an
// error when there is no model, the loop is already running or starting, or
// the source cannot be opened; the state is left unchanged in every such case.
// The source is opened without holding the lock.
func (p *Processor) Start() error {
	p.mu.Lock()

	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.opts.Detector == nil:
		p.mu.Unlock()
		p.logger.Error("cannot start detection: no model loaded")
		return ErrNoModel
	case p.state == StateRunning || p.starting:
		p.mu.Unlock()
		p.logger.Debug("start ignored, detection already running")
		return ErrRunning
	}
	p.starting = true
	p.mu.Unlock()

	src, err := p.opts.OpenSource()

	p.mu.Lock()
	p.starting = false

	if err != nil {
		p.mu.Unlock()
		p.logger.Errorw("could not open video source", "error", err)
		return errors.Wrap(err, "open source")
	}
	if p.closed {
		p.mu.Unlock()
		if cerr := src.Close(); cerr != nil {
			p.logger.Warnw("failed to release video source", "error", cerr)
		}
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	interval := p.opts.Interval
	ticker := p.opts.NewTicker(interval)

	p.src = src
	p.cancel = cancel
	p.done = done
	width, height := p.opts.Width, p.opts.Height
	p.width, p.height = width, height
	p.state = StateRunning
	p.mu.Unlock()

	p.resetStats()
	p.logger.Infow("detection started", "interval", interval, "width", width, "height", height)
	p.notify(StateRunning)

	go p.run(ctx, src, ticker, done)
	return nil
}

func (p *Processor) run(ctx context.Context, src capture.FrameSource, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !p.step(ctx, src) {
				p.finish(src)
				return
			}
		}
	}
}

// finish ends the run that owns src. Stop may have got there first.
func (p *Processor) finish(src capture.FrameSource) {
	p.mu.Lock()
	if p.state != StateRunning || p.src != src {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.releaseLocked()
	p.state = StateIdle
	p.mu.Unlock()

	p.logger.Info("detection stopped")
	p.notify(StateIdle)
}

func (p *Processor) releaseLocked() {
	if p.src == nil {
		return
	}
	if err := p.src.Close(); err != nil {
		p.logger.Warnw("failed to release video source", "error", err)
	}
	p.src = nil
}

// Stop halts the loop, waits for an in-flight step and releases the source.
// Stopping a processor that is not running does nothing.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	cancel, done, src := p.cancel, p.done, p.src
	p.mu.Unlock()

	cancel()
	<-done
	p.finish(src)
}

// Close stops the loop and releases the sink and the model.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()

	var err error
	err = multierr.Append(err, errors.Wrap(p.opts.Sink.Close(), "close sink"))
	if p.opts.Detector != nil {
		err = multierr.Append(err, errors.Wrap(p.opts.Detector.Close(), "close detector"))
	}
	return err
}

// step processes one frame. It returns false once the source is exhausted
// or unreadable.
func (p *Processor) step(ctx context.Context, src capture.FrameSource) bool {
	start := time.Now()

	frame, err := src.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.logger.Info("end of video stream")
		} else {
			p.logger.Warnw("failed to read frame", "error", err)
		}
		return false
	}

	resized := imaging.Resize(frame, p.width, p.height, imaging.Linear)

	dets, err := p.opts.Detector.Detect(ctx, resized)
	if err != nil {
		p.logger.Warnw("detection failed", "error", err)
		dets = nil
	}

	for _, rec := range p.records(dets) {
		if err := p.opts.Sink.Append(ctx, rec); err != nil {
			p.logger.Warnw("failed to store detection", "label", rec.Label, "error", err)
		}
	}

	p.opts.Display.Show(p.opts.Renderer.Render(resized, dets))

	p.updateStats(time.Since(start))
	return true
}

// records builds the sink records for one frame according to the record mode.
func (p *Processor) records(dets []models.Detection) []models.DetectionRecord {
	if len(dets) == 0 {
		return nil
	}

	now := p.opts.Now()

	if p.opts.RecordMode == config.RecordLast {
		d := dets[len(dets)-1]
		return []models.DetectionRecord{
			models.NewDetectionRecord(p.opts.Labels.Name(d), d.Confidence, now),
		}
	}

	recs := make([]models.DetectionRecord, 0, len(dets))
	for _, d := range dets {
		recs = append(recs, models.NewDetectionRecord(p.opts.Labels.Name(d), d.Confidence, now))
	}
	return recs
}

func (p *Processor) resetStats() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats = Stats{}
	p.frameCount = 0
	p.lastFpsUpdate = time.Now()
}

func (p *Processor) updateStats(latency time.Duration) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.Frames++
	p.stats.Latency = latency

	p.frameCount++
	if time.Since(p.lastFpsUpdate) >= time.Second {
		p.stats.FPS = p.frameCount
		p.frameCount = 0
		p.lastFpsUpdate = time.Now()
	}
}
