// service_loop.go - service thread state machine (C7)

// License: GPLv3 or later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ServiceState is the service thread's single conceptual state machine
// (spec section 4.7): Init → PipeListen → HandshakePending → RendererInit
// → Running ⇄ Degraded → Shutdown.
type ServiceState int

const (
	StateInit ServiceState = iota
	StatePipeListen
	StateHandshakePending
	StateRendererInit
	StateRunning
	StateDegraded
	StateShutdown
)

func (s ServiceState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StatePipeListen:
		return "PipeListen"
	case StateHandshakePending:
		return "HandshakePending"
	case StateRendererInit:
		return "RendererInit"
	case StateRunning:
		return "Running"
	case StateDegraded:
		return "Degraded"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

const (
	// drainFairnessCap bounds how many bytes of the ring a single drain
	// iteration consumes before yielding, so one guest cannot starve
	// fence/present/resize handling behind an unbounded command stream
	// (spec section 4.7, step 4, "fairness cap").
	drainFairnessCap = 1 << 20

	// doorbellTimeout bounds how long the service loop blocks on the
	// doorbell when a drain did no work, so window/device checks still
	// run even with no guest activity (spec section 4.7, step 7).
	doorbellTimeout = 5 * time.Millisecond
)

// ServiceLoop drives the single service thread that owns the native
// device, resource table, and presentation pipeline (spec section 5). Its
// own shutdown signal is a one-shot atomic.Bool; Run also checks ctx at
// the top of every iteration and wakes from the doorbell wait on
// ctx.Done(). Neither signal interrupts a native call already in progress.
type ServiceLoop struct {
	transport    SharedMemory
	channel      *ControlChannel
	engine       *ReplayEngine
	table        *ResourceTable
	device       NativeDevice
	presentation *PresentationPipeline
	log          *slog.Logger

	mu    sync.Mutex
	state ServiceState

	shutdown     atomic.Bool
	lastIRQFence uint64
}

// NewServiceLoop constructs a loop ready to run; the caller is expected
// to have already completed the handshake and renderer construction
// (StateInit through StateRendererInit) before calling Run, which begins
// in StateRunning.
func NewServiceLoop(transport SharedMemory, channel *ControlChannel, engine *ReplayEngine, table *ResourceTable, device NativeDevice, presentation *PresentationPipeline, log *slog.Logger) *ServiceLoop {
	if log == nil {
		log = slog.Default()
	}
	return &ServiceLoop{
		transport:    transport,
		channel:      channel,
		engine:       engine,
		table:        table,
		device:       device,
		presentation: presentation,
		log:          log,
		state:        StateRendererInit,
	}
}

// State returns the current state.
func (s *ServiceLoop) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ServiceLoop) setState(st ServiceState) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed {
		s.log.Info("service state transition", "state", st.String())
	}
}

// RequestShutdown sets the one-shot shutdown flag the loop observes at
// the top of every iteration and at each drain step.
func (s *ServiceLoop) RequestShutdown() { s.shutdown.Store(true) }

// Run executes the service loop until shutdown is requested, the
// presentation window is closed, or a fatal error is returned. It never
// returns a non-nil error for recoverable conditions (device loss,
// per-command failures) — those are published to the control region and
// the loop continues, in Degraded after a device loss.
func (s *ServiceLoop) Run(ctx context.Context) error {
	s.setState(StateRunning)
	control := s.transport.ControlRegion()

	for {
		if s.shutdown.Load() || ctx.Err() != nil {
			s.setState(StateShutdown)
			control.SetStatusBits(StatusShutdown)
			return nil
		}

		// Step 2: probe native device status.
		if s.device.Status() == DeviceLost {
			control.SetStatusBits(StatusDeviceLost)
			control.SetError(ErrDeviceLost, 0)
			s.setState(StateDegraded)
		} else if s.State() == StateDegraded {
			s.setState(StateRunning)
			control.ClearStatusBits(StatusDeviceLost)
		}

		// Step 3: pump window messages; a closed presentation window
		// ends the session the same as an explicit shutdown.
		if s.presentation != nil && s.presentation.WindowClosed() {
			s.setState(StateShutdown)
			return nil
		}

		didWork, drainErr := s.drain(control)
		if drainErr != nil {
			if ce, ok := drainErr.(ClassifiedError); ok && ce.Fatal() {
				s.setState(StateShutdown)
				return drainErr
			}
		}

		if pp := s.engine.TakePendingPresent(); pp != nil {
			didWork = true
			if err := s.doPresent(control, pp); err != nil {
				s.log.Warn("present failed", "error", err)
				control.SetStatusBits(StatusDeviceLost)
				control.SetError(ErrDeviceLost, pp.BackbufferID)
				s.setState(StateDegraded)
			}
		}

		if pr := s.engine.TakePendingResize(); pr != nil {
			didWork = true
			control.SetStatusBits(StatusResizing)
			if s.presentation != nil {
				if err := s.presentation.Resize(pr.Width, pr.Height); err != nil {
					s.log.Warn("resize failed", "error", err)
					control.SetError(ErrInternal, pr.SwapchainID)
				}
			}
			control.ClearStatusBits(StatusResizing)
		}

		if didWork {
			continue
		}

		select {
		case <-s.channel.Doorbell():
		case <-time.After(doorbellTimeout):
		case <-ctx.Done():
		}
		if s.channel.ShuttingDown() {
			s.shutdown.Store(true)
		}
	}
}

// drain repeatedly decodes and replays ring records until the ring is
// empty or the fairness cap is reached (spec section 4.7, step 4).
func (s *ServiceLoop) drain(control *ControlRegion) (didWork bool, err error) {
	var consumed uint64
	for consumed < drainFairnessCap {
		pending := s.transport.ReadPending()
		if len(pending) == 0 {
			break
		}
		n, execErr := s.engine.ProcessCommand(pending, s.transport.Heap())
		if n == 0 && execErr == nil {
			// size_total exceeds what is currently available; wait for
			// more of the ring to fill rather than treat this as an error.
			break
		}
		if n > 0 {
			s.transport.Advance(uint64(n))
			consumed += uint64(n)
			didWork = true
		}

		if cur := s.engine.CurrentFence(); cur > s.lastIRQFence {
			s.transport.CompleteFence(cur)
			if sendErr := s.channel.SendIRQ(0); sendErr != nil {
				s.log.Warn("send IRQ failed", "error", sendErr)
			}
			s.lastIRQFence = cur
		}

		if execErr != nil {
			if ce, ok := execErr.(ClassifiedError); ok {
				control.SetError(ce.Code(), ce.Data())
				if ce.Fatal() {
					return didWork, execErr
				}
				// Non-fatal: publish and resume next iteration rather
				// than looping on a command that will fail again.
				return didWork, nil
			}
			control.SetError(ErrInternal, 0)
			return didWork, nil
		}
	}
	return didWork, nil
}

// RunSupervised runs the service loop alongside the control channel's
// reader goroutine and, if non-nil, a debug console goroutine, as the
// three long-lived goroutines of spec section 5. Cancelling ctx (or any
// of the three returning an error) tears down the other two: the
// control channel is closed, which unblocks RunReader, and the service
// loop's shutdown flag is set so Run observes it on its next iteration.
func (s *ServiceLoop) RunSupervised(ctx context.Context, console func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		s.channel.RunReader()
		return nil
	})
	if console != nil {
		g.Go(func() error { return console(gctx) })
	}

	go func() {
		<-gctx.Done()
		s.RequestShutdown()
		s.channel.Close()
	}()

	return g.Wait()
}

func (s *ServiceLoop) doPresent(control *ControlRegion, pp *PendingPresent) error {
	if s.presentation == nil {
		return nil
	}
	tex, ok := s.table.GetTexture2D(pp.BackbufferID)
	if !ok {
		return fmt.Errorf("present: backbuffer resource %d not found", pp.BackbufferID)
	}
	return s.presentation.Present(tex.Native)
}
