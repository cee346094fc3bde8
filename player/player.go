// Package player wires a frame source to the display through the handoff
// slot and runs the event loop until the source ends or the user quits.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/richinsley/glhandoff/eventloop"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
	"github.com/richinsley/glhandoff/renderer"
	"github.com/richinsley/glhandoff/source"
)

// Config holds the collaborators of a Player. Display and Upload are created
// by the caller; the player owns them from New on and destroys them at the
// end of Run.
type Config struct {
	Display      graphics.Context
	DisplayErr   error // error from creating Display, if any
	Upload       graphics.Context
	Events       eventloop.EventSource
	Source       source.Source
	Drawer       renderer.Drawer // nil builds a GLDrawer on the display context
	PollInterval time.Duration
}

// Stats is the final tally of a run.
type Stats struct {
	Executor renderer.ExecutorStats
	Slot     handoff.SlotStats
	Bridge   graphics.BridgeStats
}

type Player struct {
	cfg      Config
	thread   *graphics.Thread
	bridge   *graphics.Bridge
	loop     *eventloop.Loop
	shutdown *handoff.Shutdown
	exec     *renderer.Executor
	slot     *handoff.Slot
	drawer   renderer.Drawer
}

// New builds the object graph. thread must be the locked thread Run will be
// called on.
func New(thread *graphics.Thread, cfg Config) *Player {
	p := &Player{
		cfg:      cfg,
		thread:   thread,
		shutdown: handoff.NewShutdown(),
	}
	p.bridge = graphics.NewBridge("display", cfg.Display, cfg.DisplayErr)
	if cfg.Upload != nil {
		p.bridge.WithForeign(cfg.Upload)
	}
	p.loop = eventloop.New(cfg.Events, eventloop.WithPollInterval(cfg.PollInterval))
	return p
}

// Shutdown returns the coordinator; requesting it stops playback.
func (p *Player) Shutdown() *handoff.Shutdown { return p.shutdown }

// Run plays until the source ends, the event source asks to close, or ctx is
// cancelled. It blocks on the display thread and tears everything down before
// returning.
func (p *Player) Run(ctx context.Context) error {
	if err := p.setup(); err != nil {
		p.destroy()
		return err
	}

	// Close requests from the window raise shutdown directly, so a blocked
	// producer is released even before the loop stops.
	p.loop.OnClose(p.shutdown.Request)

	prodCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prodDone := make(chan error, 1)
	go func() {
		err := p.cfg.Source.Run(prodCtx, p.slot.Publish)
		prodDone <- err
		// Input ended or failed: stop the loop.
		p.loop.Quit()
	}()

	go func() {
		select {
		case <-ctx.Done():
			log.Printf("player: %v, stopping", ctx.Err())
			p.loop.Quit()
		case <-p.shutdown.Done():
			p.loop.Quit()
		}
	}()

	start := time.Now()
	p.loop.Run()

	// Order matters: wake the producer, then stop it, then wait for it
	// before any context is destroyed.
	p.shutdown.Request()
	cancel()
	prodErr := <-prodDone

	stats := p.Stats()
	p.destroy()

	log.Printf("player: ran %v, rendered=%d skipped=%d failed=%d published=%d cancelled=%d dropped=%d",
		time.Since(start).Round(time.Millisecond), stats.Executor.Rendered, stats.Executor.Skipped,
		stats.Executor.Failed, stats.Slot.Published, stats.Slot.Cancelled, stats.Slot.Dropped)

	if prodErr != nil && !errors.Is(prodErr, context.Canceled) {
		return fmt.Errorf("source: %w", prodErr)
	}
	return nil
}

func (p *Player) setup() error {
	if err := p.bridge.Check(); err != nil {
		return err
	}
	if p.cfg.Source == nil {
		return errors.New("player: no source")
	}
	if err := p.bridge.RegisterForeign(p.cfg.Source); err != nil {
		return err
	}

	p.drawer = p.cfg.Drawer
	if p.drawer == nil {
		b, err := p.bridge.Bind(p.thread)
		if err != nil {
			return err
		}
		d, err := renderer.NewGLDrawer(b)
		b.Release()
		if err != nil {
			return err
		}
		p.drawer = d
	}

	p.exec = renderer.NewExecutor(p.bridge, p.thread, p.drawer)
	p.slot = handoff.NewSlot(p.loop, p.exec, p.shutdown)
	return nil
}

// destroy frees GL objects and the contexts. The producer must have returned.
func (p *Player) destroy() {
	if d, ok := p.drawer.(interface{ Destroy(*graphics.Binding) }); ok {
		if b, err := p.bridge.Bind(p.thread); err == nil {
			d.Destroy(b)
			b.Release()
		}
	}
	if err := p.bridge.Destroy(); err != nil {
		log.Printf("player: %v", err)
	}
}

func (p *Player) Stats() Stats {
	var s Stats
	if p.exec != nil {
		s.Executor = p.exec.Stats()
	}
	if p.slot != nil {
		s.Slot = p.slot.Stats()
	}
	s.Bridge = p.bridge.Stats()
	return s
}
