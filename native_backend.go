// native_backend.go - native GPU capability interface

// License: GPLv3 or later

package main

// NativeTexture, NativeBuffer, and friends are opaque handles returned by
// a NativeDevice implementation. The replay engine never downcasts them;
// it only ever passes them back into other NativeDevice calls or releases
// them through the resource table's refcounting.
type (
	NativeTexture            interface{ NativeHandle }
	NativeBuffer             interface{ NativeHandle }
	NativeShader             interface{ NativeHandle }
	NativeInputLayout        interface{ NativeHandle }
	NativeBlendState         interface{ NativeHandle }
	NativeRasterizerState    interface{ NativeHandle }
	NativeDepthStencilState  interface{ NativeHandle }
	NativeSamplerState       interface{ NativeHandle }
	NativeRenderTargetView   interface{ NativeHandle }
	NativeDepthStencilView   interface{ NativeHandle }
	NativeShaderResourceView interface{ NativeHandle }
)

// TextureDesc describes a 2-D texture creation request.
type TextureDesc struct {
	Width, Height               uint32
	Format                      uint32
	MipCount                    uint32
	SampleCount, SampleQuality  uint32
	BindFlags, MiscFlags        uint32
}

// BufferDesc describes a linear buffer creation request.
type BufferDesc struct {
	Size      uint32
	BindFlags uint32
}

// DeviceStatus reports whether the native device is healthy.
type DeviceStatus int

const (
	DeviceOK DeviceStatus = iota
	DeviceLost
)

// NativeDevice is the capability interface the replay engine drives (spec
// section 1: "the native 3-D API itself ... specified as a capability
// interface the replay engine calls"). It mirrors the teacher's
// VoodooBackend family (Init/SetXxx/Flush/SwapBuffers/GetFrame/Destroy)
// generalized from a fixed-function Voodoo pipeline to an immediate-mode
// D3D11-shaped pipeline: the replay engine selects among per-stage setters
// and draw variants, all backed by one native immediate context.
type NativeDevice interface {
	CreateTexture2D(desc TextureDesc, initialData []byte, initialRowPitch uint32) (NativeTexture, error)
	CreateBuffer(desc BufferDesc, initialData []byte) (NativeBuffer, error)
	CreateShader(stage ShaderStage, bytecode []byte) (NativeShader, error)
	CreateInputLayout() (NativeInputLayout, error)
	CreateBlendState() (NativeBlendState, error)
	CreateRasterizerState() (NativeRasterizerState, error)
	CreateDepthStencilState() (NativeDepthStencilState, error)
	CreateSamplerState() (NativeSamplerState, error)
	CreateRenderTargetView(tex NativeTexture) (NativeRenderTargetView, error)
	CreateDepthStencilView(tex NativeTexture) (NativeDepthStencilView, error)
	CreateShaderResourceView(tex NativeTexture) (NativeShaderResourceView, error)

	CopyResource(dst, src NativeHandle) error

	CreateStagingTexture2D(width, height, format uint32) (NativeTexture, error)
	CreateStagingBuffer(size uint32) (NativeBuffer, error)
	MapTexture2D(tex NativeTexture, subresource uint32, mapType MapType) (data []byte, rowPitch uint32, err error)
	UnmapTexture2D(tex NativeTexture, subresource uint32)
	MapBuffer(buf NativeBuffer, mapType MapType) ([]byte, error)
	UnmapBuffer(buf NativeBuffer)
	UpdateSubresource(res NativeHandle, subresource uint32, box *UpdateBox, data []byte, rowPitch, depthPitch uint32) error

	SetRenderTargets(rtvs []NativeRenderTargetView, dsv NativeDepthStencilView)
	SetViewports(vs []Viewport)
	SetScissorRects(rs []ScissorRect)
	SetBlendState(bs NativeBlendState)
	SetRasterizerState(rs NativeRasterizerState)
	SetDepthStencilState(ds NativeDepthStencilState, stencilRef uint32)
	SetShader(stage ShaderStage, sh NativeShader)
	SetSamplers(stage ShaderStage, startSlot uint32, samplers []NativeSamplerState)
	SetConstantBuffer(stage ShaderStage, slot uint32, buf NativeBuffer)
	SetVertexBuffers(startSlot uint32, buffers []NativeBuffer, strides, offsets []uint32)
	SetIndexBuffer(buf NativeBuffer, format uint32, offset uint32)
	SetInputLayout(il NativeInputLayout)
	SetPrimitiveTopology(topology uint32)
	SetShaderResources(stage ShaderStage, startSlot uint32, srvs []NativeShaderResourceView)

	Draw(vertexCount, startVertex uint32)
	DrawIndexed(indexCount, startIndex uint32, baseVertex int32)
	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
	Dispatch(groupsX, groupsY, groupsZ uint32)
	ClearRenderTargetView(rtv NativeRenderTargetView, color [4]float32)
	ClearDepthStencilView(dsv NativeDepthStencilView, flags uint32, depth float32, stencil uint32)

	// Flush submits queued work; the native API guarantees in-order
	// execution within a single immediate context (spec section 4.5,
	// FENCE note: "no flush is issued here").
	Flush()

	// Status reports whether the device has been lost (spec section
	// 4.7, step 2).
	Status() DeviceStatus

	// ResizeSwapchain resizes the presentation target (spec section
	// 4.6, resize).
	ResizeSwapchain(width, height uint32) error

	// TearingSupported reports the native capability query used to pick
	// a presentation sync interval (spec section 4.6's selection table).
	TearingSupported() bool

	// Present hands the given backbuffer texture to the swapchain with
	// the given sync interval and present flags.
	Present(backbuffer NativeTexture, syncInterval uint32, allowTearing bool) error

	// ExportSharedTexture returns a cross-process handle descriptor for
	// the given texture (headless/dual presentation modes).
	ExportSharedTexture(tex NativeTexture) (SharedTextureHandle, error)

	Destroy()
}

// SharedTextureHandle is an opaque cross-process export descriptor; its
// concrete representation is backend-specific (a platform handle value in
// a real Vulkan/D3D backend; in the headless stub Handle is always zero and
// only Width and Height are filled in).
type SharedTextureHandle struct {
	Handle uintptr
	Width  uint32
	Height uint32
}
