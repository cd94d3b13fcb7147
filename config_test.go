// config_test.go - flag parsing and validation (spec section 6)

// License: GPLv3 or later

package main

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PresentationMode != PresentationHeadless {
		t.Fatalf("expected default mode headless, got %v", cfg.PresentationMode)
	}
	if cfg.BufferCount != 2 {
		t.Fatalf("expected default buffer_count 2, got %d", cfg.BufferCount)
	}
}

func TestLoadConfigParsesFlags(t *testing.T) {
	cfg, err := LoadConfig([]string{
		"-pipe_path", "/tmp/other.sock",
		"-shmem_path", "/dev/shm/other",
		"-adapter_index", "1",
		"-presentation_mode", "dual",
		"-width", "800",
		"-height", "600",
		"-vsync=false",
		"-buffer_count", "3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PipePath != "/tmp/other.sock" || cfg.ShmemPath != "/dev/shm/other" {
		t.Fatalf("unexpected paths: %+v", cfg)
	}
	if cfg.AdapterIndex != 1 {
		t.Fatalf("expected adapter_index 1, got %d", cfg.AdapterIndex)
	}
	if cfg.PresentationMode != PresentationDual {
		t.Fatalf("expected dual mode, got %v", cfg.PresentationMode)
	}
	if cfg.Width != 800 || cfg.Height != 600 {
		t.Fatalf("unexpected dimensions: %+v", cfg)
	}
	if cfg.VSync {
		t.Fatalf("expected vsync=false")
	}
	if cfg.BufferCount != 3 {
		t.Fatalf("expected buffer_count 3, got %d", cfg.BufferCount)
	}
}

func TestLoadConfigRejectsBadPresentationMode(t *testing.T) {
	if _, err := LoadConfig([]string{"-presentation_mode", "bogus"}); err == nil {
		t.Fatalf("expected an error for an invalid presentation mode")
	}
}

func TestLoadConfigRejectsTooFewBuffers(t *testing.T) {
	if _, err := LoadConfig([]string{"-buffer_count", "1"}); err == nil {
		t.Fatalf("expected an error for buffer_count < 2")
	}
}
