// native_vulkan_headless.go - CPU-only NativeDevice fallback

//go:build headless

// License: GPLv3 or later

package main

import (
	"fmt"
	"sync"
)

func init() {
	compiledFeatures = append(compiledFeatures, "native:headless")
}

// headlessHandle implements NativeHandle with a no-op release; headless
// resources are plain Go-owned memory with nothing to give back to a
// driver.
type headlessHandle struct{}

func (headlessHandle) Release() {}

type headlessTexture struct {
	headlessHandle
	width, height uint32
	format        uint32
	pixels        []byte
	rtv           bool
	dsv           bool
}

type headlessBuffer struct {
	headlessHandle
	data []byte
}

type headlessShader struct {
	headlessHandle
	stage ShaderStage
}

type headlessOpaque struct{ headlessHandle }

// VulkanDevice is the headless NativeDevice: same type name and
// constructor signature as the real Vulkan-backed implementation
// (native_vulkan.go) so main.go wires the same call regardless of build
// tag, mirroring voodoo_vulkan_headless.go's VulkanBackend/
// VoodooSoftwareBackend delegation shape. Resources are plain CPU
// buffers; clears and copies operate on them directly, draws are
// tracked but do not rasterize — there is no CPU rasterizer in this tree
// to generalize to an arbitrary D3D11-shaped pipeline, so a headless run
// verifies command-stream replay and resource lifetime, not pixel output.
type VulkanDevice struct {
	mu     sync.Mutex
	status DeviceStatus
	width  uint32
	height uint32

	renderTargets []*headlessTexture
	depthTarget   *headlessTexture
	drawCount     uint64
}

// adapterIndex has no enumeration to validate against in headless mode
// (there is no real GPU list); it is accepted and rejected only if
// negative, keeping the same validation contract as native_vulkan.go.
func NewVulkanDevice(width, height uint32, adapterIndex int) (*VulkanDevice, error) {
	if adapterIndex < 0 {
		return nil, fmt.Errorf("adapter index %d out of range", adapterIndex)
	}
	return &VulkanDevice{width: width, height: height}, nil
}

func (d *VulkanDevice) CreateTexture2D(desc TextureDesc, initialData []byte, initialRowPitch uint32) (NativeTexture, error) {
	pixels := make([]byte, desc.Width*desc.Height*bytesPerPixel(FormatRGBA8Unorm))
	if len(initialData) > 0 {
		copy(pixels, initialData)
	}
	return &headlessTexture{width: desc.Width, height: desc.Height, format: desc.Format, pixels: pixels}, nil
}

func (d *VulkanDevice) CreateBuffer(desc BufferDesc, initialData []byte) (NativeBuffer, error) {
	data := make([]byte, desc.Size)
	if len(initialData) > 0 {
		copy(data, initialData)
	}
	return &headlessBuffer{data: data}, nil
}

func (d *VulkanDevice) CreateShader(stage ShaderStage, bytecode []byte) (NativeShader, error) {
	return &headlessShader{stage: stage}, nil
}

func (d *VulkanDevice) CreateInputLayout() (NativeInputLayout, error)       { return &headlessOpaque{}, nil }
func (d *VulkanDevice) CreateBlendState() (NativeBlendState, error)         { return &headlessOpaque{}, nil }
func (d *VulkanDevice) CreateRasterizerState() (NativeRasterizerState, error) {
	return &headlessOpaque{}, nil
}
func (d *VulkanDevice) CreateDepthStencilState() (NativeDepthStencilState, error) {
	return &headlessOpaque{}, nil
}
func (d *VulkanDevice) CreateSamplerState() (NativeSamplerState, error) { return &headlessOpaque{}, nil }

func (d *VulkanDevice) CreateRenderTargetView(tex NativeTexture) (NativeRenderTargetView, error) {
	t := tex.(*headlessTexture)
	t.rtv = true
	return t, nil
}

func (d *VulkanDevice) CreateDepthStencilView(tex NativeTexture) (NativeDepthStencilView, error) {
	t := tex.(*headlessTexture)
	t.dsv = true
	return t, nil
}

func (d *VulkanDevice) CreateShaderResourceView(tex NativeTexture) (NativeShaderResourceView, error) {
	return tex.(*headlessTexture), nil
}

func (d *VulkanDevice) CopyResource(dst, src NativeHandle) error {
	switch s := src.(type) {
	case *headlessTexture:
		t := dst.(*headlessTexture)
		copy(t.pixels, s.pixels)
		return nil
	case *headlessBuffer:
		b := dst.(*headlessBuffer)
		copy(b.data, s.data)
		return nil
	}
	return fmt.Errorf("copy_resource: unsupported native handle pair")
}

func (d *VulkanDevice) CreateStagingTexture2D(width, height, format uint32) (NativeTexture, error) {
	return d.CreateTexture2D(TextureDesc{Width: width, Height: height, Format: format}, nil, 0)
}

func (d *VulkanDevice) CreateStagingBuffer(size uint32) (NativeBuffer, error) {
	return d.CreateBuffer(BufferDesc{Size: size}, nil)
}

func (d *VulkanDevice) MapTexture2D(tex NativeTexture, subresource uint32, mapType MapType) ([]byte, uint32, error) {
	t := tex.(*headlessTexture)
	return t.pixels, t.width * bytesPerPixel(FormatRGBA8Unorm), nil
}

func (d *VulkanDevice) UnmapTexture2D(tex NativeTexture, subresource uint32) {}

func (d *VulkanDevice) MapBuffer(buf NativeBuffer, mapType MapType) ([]byte, error) {
	return buf.(*headlessBuffer).data, nil
}

func (d *VulkanDevice) UnmapBuffer(buf NativeBuffer) {}

func (d *VulkanDevice) UpdateSubresource(res NativeHandle, subresource uint32, box *UpdateBox, data []byte, rowPitch, depthPitch uint32) error {
	switch r := res.(type) {
	case *headlessBuffer:
		copy(r.data, data)
	case *headlessTexture:
		copy(r.pixels, data)
	default:
		return fmt.Errorf("update_subresource: unsupported native handle")
	}
	return nil
}

func (d *VulkanDevice) SetRenderTargets(rtvs []NativeRenderTargetView, dsv NativeDepthStencilView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderTargets = d.renderTargets[:0]
	for _, r := range rtvs {
		if r != nil {
			d.renderTargets = append(d.renderTargets, r.(*headlessTexture))
		}
	}
	if dsv != nil {
		d.depthTarget = dsv.(*headlessTexture)
	} else {
		d.depthTarget = nil
	}
}

func (d *VulkanDevice) SetViewports(vs []Viewport)             {}
func (d *VulkanDevice) SetScissorRects(rs []ScissorRect)       {}
func (d *VulkanDevice) SetBlendState(bs NativeBlendState)       {}
func (d *VulkanDevice) SetRasterizerState(rs NativeRasterizerState) {}
func (d *VulkanDevice) SetDepthStencilState(ds NativeDepthStencilState, stencilRef uint32) {}
func (d *VulkanDevice) SetShader(stage ShaderStage, sh NativeShader)                       {}
func (d *VulkanDevice) SetSamplers(stage ShaderStage, startSlot uint32, samplers []NativeSamplerState) {
}
func (d *VulkanDevice) SetConstantBuffer(stage ShaderStage, slot uint32, buf NativeBuffer) {}
func (d *VulkanDevice) SetVertexBuffers(startSlot uint32, buffers []NativeBuffer, strides, offsets []uint32) {
}
func (d *VulkanDevice) SetIndexBuffer(buf NativeBuffer, format uint32, offset uint32) {}
func (d *VulkanDevice) SetInputLayout(il NativeInputLayout)                           {}
func (d *VulkanDevice) SetPrimitiveTopology(topology uint32)                          {}
func (d *VulkanDevice) SetShaderResources(stage ShaderStage, startSlot uint32, srvs []NativeShaderResourceView) {
}

func (d *VulkanDevice) Draw(vertexCount, startVertex uint32) {
	d.mu.Lock()
	d.drawCount++
	d.mu.Unlock()
}

func (d *VulkanDevice) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	d.mu.Lock()
	d.drawCount++
	d.mu.Unlock()
}

func (d *VulkanDevice) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	d.mu.Lock()
	d.drawCount++
	d.mu.Unlock()
}

func (d *VulkanDevice) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	d.mu.Lock()
	d.drawCount++
	d.mu.Unlock()
}

func (d *VulkanDevice) Dispatch(groupsX, groupsY, groupsZ uint32) {
	d.mu.Lock()
	d.drawCount++
	d.mu.Unlock()
}

func (d *VulkanDevice) ClearRenderTargetView(rtv NativeRenderTargetView, color [4]float32) {
	t := rtv.(*headlessTexture)
	r, g, b, a := byte(color[0]*255), byte(color[1]*255), byte(color[2]*255), byte(color[3]*255)
	for i := 0; i+3 < len(t.pixels); i += 4 {
		t.pixels[i], t.pixels[i+1], t.pixels[i+2], t.pixels[i+3] = r, g, b, a
	}
}

func (d *VulkanDevice) ClearDepthStencilView(dsv NativeDepthStencilView, flags uint32, depth float32, stencil uint32) {
	t := dsv.(*headlessTexture)
	for i := range t.pixels {
		t.pixels[i] = 0
	}
}

func (d *VulkanDevice) Flush() {}

func (d *VulkanDevice) Status() DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *VulkanDevice) ResizeSwapchain(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	return nil
}

func (d *VulkanDevice) TearingSupported() bool { return false }

func (d *VulkanDevice) Present(backbuffer NativeTexture, syncInterval uint32, allowTearing bool) error {
	return nil
}

func (d *VulkanDevice) ExportSharedTexture(tex NativeTexture) (SharedTextureHandle, error) {
	t := tex.(*headlessTexture)
	return SharedTextureHandle{Width: t.width, Height: t.height}, nil
}

func (d *VulkanDevice) Destroy() {}
