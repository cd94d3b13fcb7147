// service_loop_test.go - service thread state machine behavior (C7)

// License: GPLv3 or later

package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func newTestServiceLoop(t *testing.T) (*ServiceLoop, *simMemoryTransport, *fakeDevice, *ControlChannel, net.Conn) {
	t.Helper()
	sim, err := NewSimSharedMemory(1<<20, 64<<10, 64<<10)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	t.Cleanup(func() {
		cc.Close()
		guestConn.Close()
	})
	go cc.RunReader()

	dev := newFakeDevice()
	table := NewResourceTable()
	engine := NewReplayEngine(dev, table, 8, nil)
	sl := NewServiceLoop(sim, cc, engine, table, dev, nil, nil)
	return sl, sim, dev, cc, guestConn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestServiceLoopDrainsQueuedCommands(t *testing.T) {
	sl, sim, _, _, _ := newTestServiceLoop(t)
	if err := sim.PushRecord(encodeCreateTexture(1, 32, 32)); err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sl.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		_, ok := sl.table.GetTexture2D(1)
		return ok
	})

	sl.RequestShutdown()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after RequestShutdown")
	}
	if sl.State() != StateShutdown {
		t.Fatalf("expected StateShutdown, got %v", sl.State())
	}
}

func TestServiceLoopRunSupervisedStopsOnContextCancel(t *testing.T) {
	sim, err := NewSimSharedMemory(1<<20, 64<<10, 64<<10)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer guestConn.Close()

	dev := newFakeDevice()
	table := NewResourceTable()
	engine := NewReplayEngine(dev, table, 8, nil)
	sl := NewServiceLoop(sim, cc, engine, table, dev, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sl.RunSupervised(ctx, nil) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSupervised returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSupervised did not return after context cancellation")
	}
}

func TestServiceLoopFenceSendsIRQAndCompletesFence(t *testing.T) {
	sl, sim, _, _, guestConn := newTestServiceLoop(t)
	if err := sim.PushRecord(encodeFence(7)); err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sl.Run(ctx)

	irqReceived := make(chan struct{})
	go func() {
		msgType, _, err := readMessageHeader(guestConn)
		if err == nil && msgType == MsgIRQ {
			close(irqReceived)
		}
	}()

	waitFor(t, 2*time.Second, func() bool {
		return sim.ControlRegion().HostFenceCompleted() == 7
	})

	select {
	case <-irqReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("guest never received an IRQ message after FENCE")
	}
	sl.RequestShutdown()
}

func TestServiceLoopDeviceLostEntersDegraded(t *testing.T) {
	sl, sim, dev, _, _ := newTestServiceLoop(t)
	dev.mu.Lock()
	dev.status = DeviceLost
	dev.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sl.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return sl.State() == StateDegraded })

	if sim.ControlRegion().Status()&StatusDeviceLost == 0 {
		t.Fatal("expected StatusDeviceLost to be set on the control region")
	}
	sl.RequestShutdown()
}

func TestServiceLoopPendingPresentCallsPresentationPresent(t *testing.T) {
	sim, err := NewSimSharedMemory(1<<20, 64<<10, 64<<10)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer cc.Close()
	defer guestConn.Close()
	go cc.RunReader()

	dev := newFakeDevice()
	table := NewResourceTable()
	engine := NewReplayEngine(dev, table, 8, nil)
	pipeline, err := NewPresentationPipeline(dev, PresentationHeadless, 64, 64, 2, true, "test_frame_event")
	if err != nil {
		t.Fatalf("NewPresentationPipeline: %v", err)
	}
	sl := NewServiceLoop(sim, cc, engine, table, dev, pipeline, nil)

	if err := sim.PushRecord(encodeCreateTexture(1, 64, 64)); err != nil {
		t.Fatalf("PushRecord create: %v", err)
	}
	if err := sim.PushRecord(encodePresent(1, 1)); err != nil {
		t.Fatalf("PushRecord present: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sl.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		dev.mu.Lock()
		defer dev.mu.Unlock()
		return dev.presents == 1
	})
	sl.RequestShutdown()
}

func TestServiceLoopPendingResizeSetsAndClearsStatusResizing(t *testing.T) {
	sim, err := NewSimSharedMemory(1<<20, 64<<10, 64<<10)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer cc.Close()
	defer guestConn.Close()
	go cc.RunReader()

	dev := newFakeDevice()
	table := NewResourceTable()
	engine := NewReplayEngine(dev, table, 8, nil)
	pipeline, err := NewPresentationPipeline(dev, PresentationHeadless, 64, 64, 2, true, "test_frame_event")
	if err != nil {
		t.Fatalf("NewPresentationPipeline: %v", err)
	}
	sl := NewServiceLoop(sim, cc, engine, table, dev, pipeline, nil)

	resize := make([]byte, cmdResizeBuffersSize)
	CommandHeader{Opcode: OpResizeBuffers, SizeTotal: uint32(cmdResizeBuffersSize)}.Encode(resize)
	b := resize[CommandHeaderSize:]
	putU32(b, 0, 1)
	putU32(b, 4, 128)
	putU32(b, 8, 128)
	if err := sim.PushRecord(resize); err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sl.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		dev.mu.Lock()
		defer dev.mu.Unlock()
		return dev.resizeCalled
	})
	waitFor(t, 2*time.Second, func() bool {
		return sim.ControlRegion().Status()&StatusResizing == 0
	})
	sl.RequestShutdown()
}
