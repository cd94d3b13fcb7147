// pixelformat.go - pixel format helpers for CREATE/UPDATE_RESOURCE (C5)

// License: GPLv3 or later

package main

import (
	"image/color"
	"sort"

	"golang.org/x/image/color/palette"
)

// Wire-level format tags (CREATE_RESOURCE.format / UPDATE_RESOURCE pitch
// validation). These mirror a small, closed subset of common swapchain
// and texture formats; the wire protocol treats format as an opaque u32
// the guest and host must agree on out of band.
const (
	FormatBGRA8Unorm uint32 = 1
	FormatRGBA8Unorm uint32 = 2
	FormatR8Unorm    uint32 = 3
	FormatRG8Unorm   uint32 = 4
	FormatR16Float   uint32 = 5
	FormatRGBA16Float uint32 = 6
	FormatRGBA32Float uint32 = 7
	FormatD24S8       uint32 = 8
	FormatD32Float    uint32 = 9
)

// bytesPerPixel returns the pixel stride for the known format set, or 0
// for an unrecognized format.
func bytesPerPixel(format uint32) uint32 {
	switch format {
	case FormatBGRA8Unorm, FormatRGBA8Unorm, FormatD24S8:
		return 4
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16Float:
		return 2
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	case FormatD32Float:
		return 4
	default:
		return 0
	}
}

// formatIs32bpp reports whether format is exactly 4 bytes per pixel — the
// pitch assumption CREATE_RESOURCE's row_pitch = width*4 relies on (spec
// section 9, "Initial-data pitch assumption").
func formatIs32bpp(format uint32) bool {
	return bytesPerPixel(format) == 4
}

// RowPitch computes the tightly packed row pitch for width pixels of the
// given format, rounding the way UPDATE_RESOURCE's explicit row_pitch
// field is expected to be filled in by a well-behaved guest.
func RowPitch(format uint32, width uint32) uint32 {
	bpp := bytesPerPixel(format)
	if bpp == 0 {
		return 0
	}
	return width * bpp
}

// QuantizeRGBA8ToWebSafe maps each RGBA8 pixel in pixels (tightly packed,
// 4 bytes per pixel, bytes beyond a multiple of 4 ignored) to its nearest
// color.Palette entry, returning one web-safe palette index per pixel.
// This backs the operator console's texture preview command (spec
// section 4, "supplemented features"): previewing a mapped render target
// or staging texture as a compact color histogram doesn't need a full
// image codec, just x/image's color-model distance table.
func QuantizeRGBA8ToWebSafe(pixels []byte) []uint8 {
	count := len(pixels) / 4
	out := make([]uint8, count)
	for i := 0; i < count; i++ {
		o := i * 4
		c := color.RGBA{R: pixels[o], G: pixels[o+1], B: pixels[o+2], A: pixels[o+3]}
		out[i] = uint8(palette.WebSafe.Index(c))
	}
	return out
}

// ColorCount pairs a web-safe palette index with its occurrence count.
type ColorCount struct {
	Index uint8
	Count int
}

// DominantWebSafeColors returns the n most frequent web-safe palette
// indices in indices (as produced by QuantizeRGBA8ToWebSafe), most
// frequent first.
func DominantWebSafeColors(indices []uint8, n int) []ColorCount {
	counts := make(map[uint8]int, len(palette.WebSafe))
	for _, idx := range indices {
		counts[idx]++
	}
	entries := make([]ColorCount, 0, len(counts))
	for idx, count := range counts {
		entries = append(entries, ColorCount{Index: idx, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Index < entries[j].Index
	})
	if n > len(entries) {
		n = len(entries)
	}
	return entries[:n]
}
