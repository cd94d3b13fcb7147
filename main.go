// main.go - PVGPU host bridge daemon entry point

// License: GPLv3 or later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	for _, a := range os.Args[1:] {
		if a == "-version" || a == "--version" {
			printFeatures()
			return
		}
	}

	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvgpu-hostd: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	log.Info("pvgpu-hostd starting",
		"pipe_path", cfg.PipePath, "shmem_path", cfg.ShmemPath,
		"adapter_index", cfg.AdapterIndex, "presentation_mode", cfg.PresentationMode,
		"width", cfg.Width, "height", cfg.Height, "buffer_count", cfg.BufferCount,
		"features", compiledFeatures)

	if err := run(cfg, log); err != nil {
		log.Error("pvgpu-hostd exiting", "error", err)
		os.Exit(1)
	}
}

// run carries the service through its full state machine (spec section
// 4.7): listen for the guest connection, perform the handshake, map the
// shared-memory region it describes, bring up the native device and
// presentation pipeline, then hand off to the supervised service loop.
func run(cfg *Config, log *slog.Logger) error {
	channel, err := ListenControlChannel(cfg.PipePath, log)
	if err != nil {
		return fmt.Errorf("listen control channel: %w", err)
	}
	defer channel.Close()

	info, err := channel.ReadHandshake()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	log.Info("handshake received", "shmem_size", info.ShmemSize, "shmem_name", info.ShmemName)

	transport, err := OpenSharedMemory(cfg.ShmemPath, info.ShmemSize)
	if err != nil {
		return fmt.Errorf("open shared memory: %w", err)
	}
	defer transport.Close()

	if err := channel.SendHandshakeAck(FeaturesMVP); err != nil {
		return fmt.Errorf("send handshake ack: %w", err)
	}

	// Adapter-index validation happens inside NewVulkanDevice and is a
	// fatal pre-Running error: the control region already exists at this
	// point but nothing has published StatusReady into it yet, so a
	// failure here is reported only via process exit code and log (spec
	// section 9, "Adapter index").
	device, err := NewVulkanDevice(cfg.Width, cfg.Height, cfg.AdapterIndex)
	if err != nil {
		return fmt.Errorf("open adapter %d: %w", cfg.AdapterIndex, err)
	}
	defer device.Destroy()

	table := NewResourceTable()
	engine := NewReplayEngine(device, table, 8, log)

	presentation, err := NewPresentationPipeline(device, cfg.PresentationMode, cfg.Width, cfg.Height, cfg.BufferCount, cfg.VSync, "pvgpu_frame_event")
	if err != nil {
		return fmt.Errorf("presentation pipeline: %w", err)
	}

	control := transport.ControlRegion()
	control.SetStatusBits(StatusReady)

	loop := NewServiceLoop(transport, channel, engine, table, device, presentation, log)
	console := NewServiceConsole(engine, table, device, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel, log)

	return loop.RunSupervised(ctx, console.Run)
}

// waitForSignal cancels ctx on SIGINT/SIGTERM, the same shutdown trigger
// RunSupervised's teardown goroutine reacts to.
func waitForSignal(cancel context.CancelFunc, log *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig.String())
	cancel()
}
