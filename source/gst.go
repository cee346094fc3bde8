package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// DefaultGstLaunch is the upstream part of the pipeline when none is given.
const DefaultGstLaunch = "videotestsrc is-live=true pattern=smpte"

// GstConfig configures the GStreamer source.
type GstConfig struct {
	// Launch is a gst-launch description of everything upstream of the
	// converter, e.g. "uridecodebin uri=file:///tmp/a.mp4".
	Launch string
	Width  int
	Height int
	FPS    float64 // 0 keeps the upstream rate
}

// GstSource runs a GStreamer pipeline ending in an appsink. Frames are
// uploaded and published from the streaming thread inside the new-sample
// callback, so the pipeline is paced by the render thread.
type GstSource struct {
	base
	cfg GstConfig

	samples   atomic.Uint64
	cancelled atomic.Bool
}

func NewGstSource(cfg GstConfig) *GstSource {
	if cfg.Launch == "" {
		cfg.Launch = DefaultGstLaunch
	}
	return &GstSource{
		base: base{name: "gst"},
		cfg:  cfg,
	}
}

// Description returns the full gst-launch description of the pipeline.
func (s *GstSource) Description() string {
	caps := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", s.cfg.Width, s.cfg.Height)
	rate := ""
	if s.cfg.FPS > 0 {
		num, den := framerate(s.cfg.FPS)
		caps += fmt.Sprintf(",framerate=%d/%d", num, den)
		rate = " ! videorate"
	}
	return fmt.Sprintf("%s ! videoconvert ! videoscale%s ! capsfilter caps=%s ! appsink name=sink",
		s.cfg.Launch, rate, caps)
}

// framerate converts fps to a caps fraction. NTSC rates such as 29.97 map to
// their exact x/1001 form.
func framerate(fps float64) (int, int) {
	if whole := math.Round(fps); math.Abs(fps-whole) < 1e-3 {
		return int(whole), 1
	}
	if ntsc := math.Round(fps * 1.001); math.Abs(ntsc*1000/1001-fps) < 5e-3 {
		return int(ntsc) * 1000, 1001
	}
	num, den := int(math.Round(fps*1000)), 1000
	g := gcd(num, den)
	return num / g, den / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func (s *GstSource) Run(ctx context.Context, deliver Deliver) error {
	up, err := s.getUploader()
	if err != nil {
		return err
	}
	if s.cfg.Width <= 0 || s.cfg.Height <= 0 {
		return fmt.Errorf("source gst: invalid size %dx%d", s.cfg.Width, s.cfg.Height)
	}

	// Safe to call multiple times.
	gst.Init(nil)

	desc := s.Description()
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return fmt.Errorf("failed to create pipeline %q: %w", desc, err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return fmt.Errorf("failed to find appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)
	sink.SetProperty("sync", true)
	sink.SetProperty("max-buffers", uint(1))
	sink.SetProperty("drop", false) // never drop: the handoff paces the pipeline

	start := time.Now()
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onSample(sink, up, deliver, start)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	log.Printf("source gst: playing %s", desc)

	runErr := s.monitor(ctx, pipeline)

	// Every Publish has returned by now or is being cancelled by shutdown,
	// so the streaming thread can stop.
	pipeline.SetState(gst.StateNull)

	thread := graphics.LockThread("gst-teardown")
	up.Release(thread)
	thread.Unlock()

	log.Printf("source gst: stopped after %d sample(s)", s.samples.Load())
	return runErr
}

// monitor polls the bus until end of stream, an error, cancellation of ctx,
// or a cancelled delivery.
func (s *GstSource) monitor(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.cancelled.Load() {
			return nil
		}

		// Short timeout keeps shutdown responsive.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if s.cancelled.Load() {
				return nil
			}
			log.Printf("source gst: end of stream")
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			log.Printf("source gst: pipeline error: %s (%s)", gerr.Error(), gerr.DebugString())
			return fmt.Errorf("pipeline error: %w", errors.New(gerr.Error()))
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			log.Printf("source gst: warning: %s", gerr.Error())
		}
	}
}

// onSample runs on the GStreamer streaming thread.
func (s *GstSource) onSample(sink *app.Sink, up Uploader, deliver Deliver, start time.Time) gst.FlowReturn {
	if s.cancelled.Load() {
		return gst.FlowEOS
	}

	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample should not end the stream.
		log.Printf("source gst: failed to pull sample, skipping")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		log.Printf("source gst: sample without buffer, skipping")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()
	if len(data) == 0 {
		log.Printf("source gst: empty buffer received")
		return gst.FlowOK
	}
	s.samples.Add(1)

	// Callbacks arrive on a native thread; pin it while the upload context
	// is bound.
	thread := graphics.LockThread("gst-streaming")
	defer thread.Unlock()

	frame := &handoff.Frame{
		Width:   s.cfg.Width,
		Height:  s.cfg.Height,
		Format:  handoff.FormatRGBA,
		Seq:     s.nextSeq(),
		PTS:     time.Since(start),
		TraceID: uuid.New().String(),
		Data:    data,
	}
	res := s.publish(thread, up, deliver, frame)
	frame.Data = nil
	if res == handoff.ResultCancelled {
		s.cancelled.Store(true)
		return gst.FlowEOS
	}
	return gst.FlowOK
}
