// native_fake_device_test.go - in-process NativeDevice fake shared by
// replay engine and service loop tests

// License: GPLv3 or later

package main

import "sync"

// fakeTexture/fakeBuffer mirror native_vulkan_headless.go's CPU-backed
// resource shape, trimmed to what the replay/service-loop tests exercise.
type fakeTexture struct {
	fakeHandle
	width, height uint32
	format        uint32
	pixels        []byte
}

type fakeBuffer struct {
	fakeHandle
	data []byte
}

type fakeShader struct{ fakeHandle }
type fakeOpaque struct{ fakeHandle }

// fakeDevice is a minimal NativeDevice used by tests that need a device
// without the headless build tag (replay_engine_test.go, service_loop_test.go
// run regardless of build tags). It tracks just enough state to assert on:
// created/destroyed resource counts, draw/clear/present calls, and an
// injectable Status for device-lost scenarios.
type fakeDevice struct {
	mu sync.Mutex

	status       DeviceStatus
	tearing      bool
	presents     int
	lastPresent  NativeTexture
	clears       int
	draws        int
	resizeCalled bool
	resizeErr    error
	presentErr   error
}

func newFakeDevice() *fakeDevice { return &fakeDevice{} }

func (d *fakeDevice) CreateTexture2D(desc TextureDesc, initialData []byte, initialRowPitch uint32) (NativeTexture, error) {
	pixels := make([]byte, desc.Width*desc.Height*4)
	if len(initialData) > 0 {
		copy(pixels, initialData)
	}
	h, _ := newFakeHandle()
	return &fakeTexture{fakeHandle: h.(fakeHandle), width: desc.Width, height: desc.Height, format: desc.Format, pixels: pixels}, nil
}

func (d *fakeDevice) CreateBuffer(desc BufferDesc, initialData []byte) (NativeBuffer, error) {
	data := make([]byte, desc.Size)
	copy(data, initialData)
	h, _ := newFakeHandle()
	return &fakeBuffer{fakeHandle: h.(fakeHandle), data: data}, nil
}

func (d *fakeDevice) CreateShader(stage ShaderStage, bytecode []byte) (NativeShader, error) {
	h, _ := newFakeHandle()
	return &fakeShader{fakeHandle: h.(fakeHandle)}, nil
}

func (d *fakeDevice) CreateInputLayout() (NativeInputLayout, error) {
	h, _ := newFakeHandle()
	return &fakeOpaque{fakeHandle: h.(fakeHandle)}, nil
}
func (d *fakeDevice) CreateBlendState() (NativeBlendState, error) {
	h, _ := newFakeHandle()
	return &fakeOpaque{fakeHandle: h.(fakeHandle)}, nil
}
func (d *fakeDevice) CreateRasterizerState() (NativeRasterizerState, error) {
	h, _ := newFakeHandle()
	return &fakeOpaque{fakeHandle: h.(fakeHandle)}, nil
}
func (d *fakeDevice) CreateDepthStencilState() (NativeDepthStencilState, error) {
	h, _ := newFakeHandle()
	return &fakeOpaque{fakeHandle: h.(fakeHandle)}, nil
}
func (d *fakeDevice) CreateSamplerState() (NativeSamplerState, error) {
	h, _ := newFakeHandle()
	return &fakeOpaque{fakeHandle: h.(fakeHandle)}, nil
}

func (d *fakeDevice) CreateRenderTargetView(tex NativeTexture) (NativeRenderTargetView, error) {
	return tex.(*fakeTexture), nil
}
func (d *fakeDevice) CreateDepthStencilView(tex NativeTexture) (NativeDepthStencilView, error) {
	return tex.(*fakeTexture), nil
}
func (d *fakeDevice) CreateShaderResourceView(tex NativeTexture) (NativeShaderResourceView, error) {
	return tex.(*fakeTexture), nil
}

func (d *fakeDevice) CopyResource(dst, src NativeHandle) error {
	switch s := src.(type) {
	case *fakeTexture:
		copy(dst.(*fakeTexture).pixels, s.pixels)
	case *fakeBuffer:
		copy(dst.(*fakeBuffer).data, s.data)
	}
	return nil
}

func (d *fakeDevice) CreateStagingTexture2D(width, height, format uint32) (NativeTexture, error) {
	return d.CreateTexture2D(TextureDesc{Width: width, Height: height, Format: format}, nil, 0)
}
func (d *fakeDevice) CreateStagingBuffer(size uint32) (NativeBuffer, error) {
	return d.CreateBuffer(BufferDesc{Size: size}, nil)
}

func (d *fakeDevice) MapTexture2D(tex NativeTexture, subresource uint32, mapType MapType) ([]byte, uint32, error) {
	t := tex.(*fakeTexture)
	return t.pixels, t.width * 4, nil
}
func (d *fakeDevice) UnmapTexture2D(tex NativeTexture, subresource uint32) {}
func (d *fakeDevice) MapBuffer(buf NativeBuffer, mapType MapType) ([]byte, error) {
	return buf.(*fakeBuffer).data, nil
}
func (d *fakeDevice) UnmapBuffer(buf NativeBuffer) {}

func (d *fakeDevice) UpdateSubresource(res NativeHandle, subresource uint32, box *UpdateBox, data []byte, rowPitch, depthPitch uint32) error {
	switch r := res.(type) {
	case *fakeTexture:
		copy(r.pixels, data)
	case *fakeBuffer:
		copy(r.data, data)
	}
	return nil
}

func (d *fakeDevice) SetRenderTargets(rtvs []NativeRenderTargetView, dsv NativeDepthStencilView)      {}
func (d *fakeDevice) SetViewports(vs []Viewport)                                                      {}
func (d *fakeDevice) SetScissorRects(rs []ScissorRect)                                                 {}
func (d *fakeDevice) SetBlendState(bs NativeBlendState)                                                {}
func (d *fakeDevice) SetRasterizerState(rs NativeRasterizerState)                                      {}
func (d *fakeDevice) SetDepthStencilState(ds NativeDepthStencilState, stencilRef uint32)                {}
func (d *fakeDevice) SetShader(stage ShaderStage, sh NativeShader)                                     {}
func (d *fakeDevice) SetSamplers(stage ShaderStage, startSlot uint32, samplers []NativeSamplerState)   {}
func (d *fakeDevice) SetConstantBuffer(stage ShaderStage, slot uint32, buf NativeBuffer)               {}
func (d *fakeDevice) SetVertexBuffers(startSlot uint32, buffers []NativeBuffer, strides, offsets []uint32) {
}
func (d *fakeDevice) SetIndexBuffer(buf NativeBuffer, format uint32, offset uint32) {}
func (d *fakeDevice) SetInputLayout(il NativeInputLayout)                           {}
func (d *fakeDevice) SetPrimitiveTopology(topology uint32)                         {}
func (d *fakeDevice) SetShaderResources(stage ShaderStage, startSlot uint32, srvs []NativeShaderResourceView) {
}

func (d *fakeDevice) Draw(vertexCount, startVertex uint32) { d.mu.Lock(); d.draws++; d.mu.Unlock() }
func (d *fakeDevice) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) {
	d.mu.Lock()
	d.draws++
	d.mu.Unlock()
}
func (d *fakeDevice) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	d.mu.Lock()
	d.draws++
	d.mu.Unlock()
}
func (d *fakeDevice) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	d.mu.Lock()
	d.draws++
	d.mu.Unlock()
}
func (d *fakeDevice) Dispatch(groupsX, groupsY, groupsZ uint32) { d.mu.Lock(); d.draws++; d.mu.Unlock() }

func (d *fakeDevice) ClearRenderTargetView(rtv NativeRenderTargetView, color [4]float32) {
	d.mu.Lock()
	d.clears++
	d.mu.Unlock()
}
func (d *fakeDevice) ClearDepthStencilView(dsv NativeDepthStencilView, flags uint32, depth float32, stencil uint32) {
	d.mu.Lock()
	d.clears++
	d.mu.Unlock()
}

func (d *fakeDevice) Flush() {}

func (d *fakeDevice) Status() DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *fakeDevice) ResizeSwapchain(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resizeCalled = true
	return d.resizeErr
}

func (d *fakeDevice) TearingSupported() bool { return d.tearing }

func (d *fakeDevice) Present(backbuffer NativeTexture, syncInterval uint32, allowTearing bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.presentErr != nil {
		return d.presentErr
	}
	d.presents++
	d.lastPresent = backbuffer
	return nil
}

func (d *fakeDevice) ExportSharedTexture(tex NativeTexture) (SharedTextureHandle, error) {
	t := tex.(*fakeTexture)
	return SharedTextureHandle{Width: t.width, Height: t.height}, nil
}

func (d *fakeDevice) Destroy() {}

// forceLost lets service_console.go's "lost" command flip a fakeDevice
// into DeviceLost without a real driver, satisfying the optional
// interface{ forceLost() } assertion in cmdForceDeviceLost.
func (d *fakeDevice) forceLost() {
	d.mu.Lock()
	d.status = DeviceLost
	d.mu.Unlock()
}
