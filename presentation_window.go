// presentation_window.go - Ebiten-driven presentation window (C6)

//go:build !headless

// License: GPLv3 or later

package main

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
)

func init() {
	compiledFeatures = append(compiledFeatures, "presentation:windowed")
}

// PresentationWindow is the Windowed/Dual mode top-level window and
// message pump, continuing video_backend_ebiten.go's EbitenOutput: a
// single RGBA frame buffer written by the presentation pipeline and
// blitted to the screen on every Ebiten Draw callback.
type PresentationWindow struct {
	width, height int
	title         string

	mu          sync.RWMutex
	frameBuffer []byte
	image       *ebiten.Image

	started    atomic.Bool
	closed     atomic.Bool
	firstVsync chan struct{}
}

// NewPresentationWindow constructs a window of the given client area; it
// is not shown until Start is called.
func NewPresentationWindow(width, height int, title string) *PresentationWindow {
	return &PresentationWindow{
		width:       width,
		height:      height,
		title:       title,
		frameBuffer: make([]byte, width*height*4),
		firstVsync:  make(chan struct{}, 1),
	}
}

// Start creates the OS window and begins pumping its message loop on a
// dedicated goroutine, mirroring EbitenOutput.Start's RunGame-in-goroutine
// shape. It blocks until the first Draw callback fires so the caller
// knows the window is live before issuing its first present.
func (w *PresentationWindow) Start() error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	ebiten.SetWindowSize(w.width, w.height)
	ebiten.SetWindowTitle(w.title)
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)

	go func() {
		if err := ebiten.RunGame(w); err != nil {
			fmt.Printf("presentation window: %v\n", err)
		}
		w.closed.Store(true)
	}()

	<-w.firstVsync
	return nil
}

// UpdateFrame copies an RGBA frame into the window's backing buffer; the
// next Draw callback blits it to the screen.
func (w *PresentationWindow) UpdateFrame(data []byte) {
	w.mu.Lock()
	copy(w.frameBuffer, data)
	w.mu.Unlock()
}

// Closed reports whether the window has been closed by the user.
func (w *PresentationWindow) Closed() bool {
	return w.closed.Load()
}

// Resize changes the window's client area and reallocates its frame
// buffer; called when the presentation pipeline's Resize recreates the
// backbuffer.
func (w *PresentationWindow) Resize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
	w.frameBuffer = make([]byte, width*height*4)
	ebiten.SetWindowSize(width, height)
}

func (w *PresentationWindow) Draw(screen *ebiten.Image) {
	w.mu.RLock()
	if w.image == nil {
		w.image = ebiten.NewImage(w.width, w.height)
	}
	w.image.WritePixels(w.frameBuffer)
	w.mu.RUnlock()
	screen.DrawImage(w.image, nil)

	select {
	case w.firstVsync <- struct{}{}:
	default:
	}
}

func (w *PresentationWindow) Update() error {
	if ebiten.IsWindowBeingClosed() || w.closed.Load() {
		return ebiten.Termination
	}
	return nil
}

func (w *PresentationWindow) Layout(_, _ int) (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.width, w.height
}
