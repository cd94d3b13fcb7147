// config.go - process configuration (spec section 6)

// License: GPLv3 or later

package main

import (
	"flag"
	"fmt"
)

// Config holds the options needed to stand the service up: where to
// listen for the guest control channel, where the shared-memory region
// lives, which adapter to open, and how to present frames.
type Config struct {
	PipePath         string
	ShmemPath        string
	AdapterIndex     int
	PresentationMode PresentationMode
	Width            uint32
	Height           uint32
	VSync            bool
	BufferCount      uint32
}

// LoadConfig parses args (normally os.Args[1:]) into a validated Config.
// Validation failures are reported before any device or transport is
// opened, matching the fail-fast posture of spec section 9.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("pvgpu-hostd", flag.ContinueOnError)

	pipePath := fs.String("pipe_path", "/tmp/pvgpu-control.sock", "control channel unix socket path")
	shmemPath := fs.String("shmem_path", "/dev/shm/pvgpu", "shared-memory region path")
	adapterIndex := fs.Int("adapter_index", 0, "native GPU adapter index to open")
	presentationMode := fs.String("presentation_mode", "headless", "presentation mode: headless, windowed, or dual")
	width := fs.Uint("width", 1920, "presentation surface width")
	height := fs.Uint("height", 1080, "presentation surface height")
	vsync := fs.Bool("vsync", true, "enable vsync when presenting")
	bufferCount := fs.Uint("buffer_count", 2, "swapchain buffer count (minimum 2)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	mode, err := ParsePresentationMode(*presentationMode)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if *bufferCount < 2 {
		return nil, fmt.Errorf("config: buffer_count must be >= 2, got %d", *bufferCount)
	}
	if *adapterIndex < 0 {
		return nil, fmt.Errorf("config: adapter_index must be >= 0, got %d", *adapterIndex)
	}

	return &Config{
		PipePath:         *pipePath,
		ShmemPath:        *shmemPath,
		AdapterIndex:     *adapterIndex,
		PresentationMode: mode,
		Width:            uint32(*width),
		Height:           uint32(*height),
		VSync:            *vsync,
		BufferCount:      uint32(*bufferCount),
	}, nil
}
