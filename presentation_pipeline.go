// presentation_pipeline.go - presentation pipeline (C6)

// License: GPLv3 or later

package main

import (
	"fmt"
	"sync"
	"time"
)

// PresentationMode selects which outputs the pipeline maintains (spec
// section 4.6).
type PresentationMode int

const (
	PresentationHeadless PresentationMode = iota
	PresentationWindowed
	PresentationDual
)

func (m PresentationMode) String() string {
	switch m {
	case PresentationHeadless:
		return "headless"
	case PresentationWindowed:
		return "windowed"
	case PresentationDual:
		return "dual"
	default:
		return "unknown"
	}
}

// ParsePresentationMode parses the config string form of the mode.
func ParsePresentationMode(s string) (PresentationMode, error) {
	switch s {
	case "headless":
		return PresentationHeadless, nil
	case "windowed":
		return PresentationWindowed, nil
	case "dual":
		return PresentationDual, nil
	default:
		return 0, fmt.Errorf("presentation: unrecognized mode %q", s)
	}
}

// Bind/misc flags for the backbuffer and shared textures the pipeline
// creates itself (distinct from a guest CREATE_RESOURCE's flags, which
// are opaque wire values the replay engine passes through unmodified).
const (
	presentBindRenderTarget uint32 = 1 << 0
	presentMiscShared       uint32 = 1 << 0
	presentMiscSharedNT     uint32 = 1 << 1
)

const frameTimingWindow = 120

// frameTiming is a fixed-size ring buffer of the last N frame intervals
// (spec section 4.6, "ring buffer of last 120 frame times").
type frameTiming struct {
	mu      sync.Mutex
	samples [frameTimingWindow]time.Duration
	count   int
	next    int
	total   uint64
	last    time.Time
}

func (f *frameTiming) record(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.last.IsZero() {
		f.samples[f.next] = now.Sub(f.last)
		f.next = (f.next + 1) % frameTimingWindow
		if f.count < frameTimingWindow {
			f.count++
		}
	}
	f.last = now
	f.total++
}

// FrameStats is a read-only snapshot of recent frame timing.
type FrameStats struct {
	FPS         float64
	Average     time.Duration
	Min         time.Duration
	Max         time.Duration
	TotalFrames uint64
}

func (f *frameTiming) snapshot() FrameStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == 0 {
		return FrameStats{TotalFrames: f.total}
	}
	var sum, min, max time.Duration
	for i := 0; i < f.count; i++ {
		d := f.samples[i]
		sum += d
		if min == 0 || d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	avg := sum / time.Duration(f.count)
	fps := 0.0
	if avg > 0 {
		fps = float64(time.Second) / float64(avg)
	}
	return FrameStats{FPS: fps, Average: avg, Min: min, Max: max, TotalFrames: f.total}
}

// PresentationPipeline owns the windowed swapchain-equivalent backbuffer,
// the headless shared-texture export, and the frame-ready signal, per
// spec section 4.6. All native calls run on the service thread that
// constructed it; PresentationPipeline does not introduce its own
// synchronization for the native device, only for its own bookkeeping
// (frame timing, current dimensions).
type PresentationPipeline struct {
	mu     sync.Mutex
	device NativeDevice
	mode   PresentationMode

	width, height uint32
	vsync         bool
	bufferCount   uint32
	tearing       bool

	window *PresentationWindow

	backbuffer    NativeTexture
	backbufferRTV NativeRenderTargetView

	sharedTex    NativeTexture
	sharedRTV    NativeRenderTargetView
	sharedHandle SharedTextureHandle

	frameEvent *FrameEvent
	timing     frameTiming
}

// NewPresentationPipeline constructs the pipeline and its native
// resources; in Windowed/Dual modes it also creates and shows the OS
// window, blocking until it is ready to receive frames.
func NewPresentationPipeline(device NativeDevice, mode PresentationMode, width, height, bufferCount uint32, vsync bool, frameEventName string) (*PresentationPipeline, error) {
	if bufferCount < 2 {
		bufferCount = 2
	}
	p := &PresentationPipeline{
		device:      device,
		mode:        mode,
		width:       width,
		height:      height,
		vsync:       vsync,
		bufferCount: bufferCount,
		tearing:     device.TearingSupported(),
		frameEvent:  NewFrameEvent(frameEventName),
	}

	if mode == PresentationWindowed || mode == PresentationDual {
		if err := p.createWindowTarget(); err != nil {
			return nil, err
		}
	}
	if mode == PresentationHeadless || mode == PresentationDual {
		if err := p.createSharedTarget(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PresentationPipeline) createWindowTarget() error {
	p.window = NewPresentationWindow(int(p.width), int(p.height), "PVGPU presentation")
	if err := p.window.Start(); err != nil {
		return err
	}
	tex, rtv, err := p.createRenderTarget()
	if err != nil {
		return err
	}
	p.backbuffer, p.backbufferRTV = tex, rtv
	return nil
}

func (p *PresentationPipeline) createSharedTarget() error {
	tex, rtv, err := p.createRenderTargetWithMisc(presentMiscShared | presentMiscSharedNT)
	if err != nil {
		return err
	}
	handle, err := p.device.ExportSharedTexture(tex)
	if err != nil {
		return err
	}
	p.sharedTex, p.sharedRTV, p.sharedHandle = tex, rtv, handle
	return nil
}

func (p *PresentationPipeline) createRenderTarget() (NativeTexture, NativeRenderTargetView, error) {
	return p.createRenderTargetWithMisc(0)
}

func (p *PresentationPipeline) createRenderTargetWithMisc(misc uint32) (NativeTexture, NativeRenderTargetView, error) {
	desc := TextureDesc{
		Width: p.width, Height: p.height, Format: FormatBGRA8Unorm,
		MipCount: 1, SampleCount: 1,
		BindFlags: presentBindRenderTarget, MiscFlags: misc,
	}
	tex, err := p.device.CreateTexture2D(desc, nil, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("presentation: create render target: %w", err)
	}
	rtv, err := p.device.CreateRenderTargetView(tex)
	if err != nil {
		return nil, nil, fmt.Errorf("presentation: create render target view: %w", err)
	}
	return tex, rtv, nil
}

// syncParams applies the spec section 4.6 sync-interval selection table.
func (p *PresentationPipeline) syncParams() (syncInterval uint32, allowTearing bool) {
	if p.vsync {
		return 1, false
	}
	if p.tearing {
		return 0, true
	}
	return 0, false
}

// Present copies source into every active output target, issues the
// native present, and signals the frame event on success.
func (p *PresentationPipeline) Present(source NativeTexture) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backbuffer != nil {
		if err := p.device.CopyResource(p.backbuffer, source); err != nil {
			return fmt.Errorf("presentation: copy to backbuffer: %w", err)
		}
	}
	if p.sharedTex != nil {
		if err := p.device.CopyResource(p.sharedTex, source); err != nil {
			return fmt.Errorf("presentation: copy to shared texture: %w", err)
		}
	}
	if p.window != nil {
		if p.window.Closed() {
			return fmt.Errorf("presentation: window closed")
		}
	}

	target := p.backbuffer
	if target == nil {
		target = p.sharedTex
	}
	syncInterval, allowTearing := p.syncParams()
	if err := p.device.Present(target, syncInterval, allowTearing); err != nil {
		return fmt.Errorf("presentation: native present: %w", err)
	}

	if p.window != nil && p.backbuffer != nil {
		if data, rowPitch, err := p.device.MapTexture2D(p.backbuffer, 0, MapRead); err == nil {
			_ = rowPitch
			p.window.UpdateFrame(data)
			p.device.UnmapTexture2D(p.backbuffer, 0)
		}
	}

	p.frameEvent.Signal()
	p.timing.record(time.Now())
	return nil
}

// PresentRegion copies only the (x, y, w, h) sub-box of source into the
// active output targets, rather than the whole surface.
func (p *PresentationPipeline) PresentRegion(source NativeTexture, x, y, w, h uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, rowPitch, err := p.device.MapTexture2D(source, 0, MapRead)
	if err != nil {
		return fmt.Errorf("presentation: map source region: %w", err)
	}
	bpp := bytesPerPixel(FormatBGRA8Unorm)
	region := make([]byte, w*bpp*h)
	for row := uint32(0); row < h; row++ {
		srcOff := (y+row)*rowPitch + x*bpp
		dstOff := row * w * bpp
		copy(region[dstOff:dstOff+w*bpp], data[srcOff:srcOff+w*bpp])
	}
	p.device.UnmapTexture2D(source, 0)

	box := &UpdateBox{Left: x, Top: y, Right: x + w, Bottom: y + h, Front: 0, Back: 1}
	targets := make([]NativeTexture, 0, 2)
	if p.backbuffer != nil {
		targets = append(targets, p.backbuffer)
	}
	if p.sharedTex != nil {
		targets = append(targets, p.sharedTex)
	}
	for _, t := range targets {
		if err := p.device.UpdateSubresource(t, 0, box, region, w*bpp, 0); err != nil {
			return fmt.Errorf("presentation: update region: %w", err)
		}
	}

	if p.window != nil && p.backbuffer != nil {
		if full, _, err := p.device.MapTexture2D(p.backbuffer, 0, MapRead); err == nil {
			p.window.UpdateFrame(full)
			p.device.UnmapTexture2D(p.backbuffer, 0)
		}
	}

	p.frameEvent.Signal()
	p.timing.record(time.Now())
	return nil
}

// Resize is a no-op if dimensions are unchanged; otherwise it releases
// the current render target views, resizes the native swapchain,
// recreates the views, and (headless/dual) recreates the shared texture
// — its exported handle changes, so external consumers must re-import.
func (p *PresentationPipeline) Resize(width, height uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if width == p.width && height == p.height {
		return nil
	}
	p.width, p.height = width, height

	if err := p.device.ResizeSwapchain(width, height); err != nil {
		return fmt.Errorf("presentation: resize swapchain: %w", err)
	}

	if p.backbuffer != nil {
		p.backbuffer.Release()
		p.backbufferRTV.Release()
		tex, rtv, err := p.createRenderTarget()
		if err != nil {
			return err
		}
		p.backbuffer, p.backbufferRTV = tex, rtv
	}
	if p.window != nil {
		p.window.Resize(int(width), int(height))
	}
	if p.sharedTex != nil {
		p.sharedTex.Release()
		p.sharedRTV.Release()
		if err := p.createSharedTarget(); err != nil {
			return err
		}
	}
	return nil
}

// BackbufferRTV returns the render target view the guest should resolve
// its swapchain id 0 to, if the pipeline is maintaining one.
func (p *PresentationPipeline) BackbufferRTV() (NativeRenderTargetView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backbufferRTV, p.backbufferRTV != nil
}

// SharedHandle returns the current cross-process export descriptor, if
// the pipeline is maintaining a shared texture.
func (p *PresentationPipeline) SharedHandle() (SharedTextureHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sharedHandle, p.sharedTex != nil
}

// FrameEvent returns the named auto-reset event signaled on every
// successful present.
func (p *PresentationPipeline) FrameEvent() *FrameEvent { return p.frameEvent }

// WindowClosed reports whether the pipeline is maintaining a window and
// the user has closed it (service loop step 3, "pump window messages;
// closed window → break").
func (p *PresentationPipeline) WindowClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window != nil && p.window.Closed()
}

// Stats returns a snapshot of recent frame timing.
func (p *PresentationPipeline) Stats() FrameStats { return p.timing.snapshot() }

// Close tears down the pipeline's native resources and window.
func (p *PresentationPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backbuffer != nil {
		p.backbuffer.Release()
		p.backbufferRTV.Release()
	}
	if p.sharedTex != nil {
		p.sharedTex.Release()
		p.sharedRTV.Release()
	}
	p.frameEvent.Close()
}
