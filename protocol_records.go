// protocol_records.go - command ring record definitions, encode/decode

// License: GPLv3 or later

package main

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CommandHeader is the fixed 16-byte header that precedes every ring
// record (spec section 6). Every opcode-specific payload embeds this as its
// first field so that an unknown opcode can still be skipped using only
// SizeTotal.
type CommandHeader struct {
	Opcode     uint32
	SizeTotal  uint32
	ResourceID uint32
	Flags      uint32
}

// DecodeCommandHeader parses the 16-byte header from the front of data.
func DecodeCommandHeader(data []byte) (CommandHeader, error) {
	if len(data) < CommandHeaderSize {
		return CommandHeader{}, fmt.Errorf("command header: need %d bytes, have %d", CommandHeaderSize, len(data))
	}
	return CommandHeader{
		Opcode:     binary.LittleEndian.Uint32(data[0:4]),
		SizeTotal:  binary.LittleEndian.Uint32(data[4:8]),
		ResourceID: binary.LittleEndian.Uint32(data[8:12]),
		Flags:      binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// Encode writes the header to the front of dst (which must be at least
// CommandHeaderSize bytes).
func (h CommandHeader) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Opcode)
	binary.LittleEndian.PutUint32(dst[4:8], h.SizeTotal)
	binary.LittleEndian.PutUint32(dst[8:12], h.ResourceID)
	binary.LittleEndian.PutUint32(dst[12:16], h.Flags)
}

func u32(data []byte, off int) uint32 { return binary.LittleEndian.Uint32(data[off : off+4]) }
func i32(data []byte, off int) int32  { return int32(binary.LittleEndian.Uint32(data[off : off+4])) }
func f32(data []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
}
func putU32(dst []byte, off int, v uint32) { binary.LittleEndian.PutUint32(dst[off:off+4], v) }
func putI32(dst []byte, off int, v int32)  { binary.LittleEndian.PutUint32(dst[off:off+4], uint32(v)) }
func putF32(dst []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(dst[off:off+4], math.Float32bits(v))
}

// --- Resource lifecycle -----------------------------------------------------

// CmdCreateResource maps to OP_CREATE_RESOURCE (spec section 4.1).
type CmdCreateResource struct {
	Header        CommandHeader
	ResourceType  uint32
	Format        uint32
	Width         uint32
	Height        uint32
	Depth         uint32
	MipCount      uint32
	SampleCount   uint32
	SampleQuality uint32
	BindFlags     uint32
	MiscFlags     uint32
	HeapOffset    uint32
	DataSize      uint32
}

const cmdCreateResourceSize = CommandHeaderSize + 48

func DecodeCmdCreateResource(data []byte) (CmdCreateResource, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdCreateResource{}, err
	}
	if len(data) < cmdCreateResourceSize {
		return CmdCreateResource{}, fmt.Errorf("CREATE_RESOURCE: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdCreateResource{
		Header:        h,
		ResourceType:  u32(b, 0),
		Format:        u32(b, 4),
		Width:         u32(b, 8),
		Height:        u32(b, 12),
		Depth:         u32(b, 16),
		MipCount:      u32(b, 20),
		SampleCount:   u32(b, 24),
		SampleQuality: u32(b, 28),
		BindFlags:     u32(b, 32),
		MiscFlags:     u32(b, 36),
		HeapOffset:    u32(b, 40),
		DataSize:      u32(b, 44),
	}, nil
}

// Encode serializes c back into wire form (spec section 8's round-trip law).
func (c CmdCreateResource) Encode() []byte {
	dst := make([]byte, cmdCreateResourceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.ResourceType)
	putU32(b, 4, c.Format)
	putU32(b, 8, c.Width)
	putU32(b, 12, c.Height)
	putU32(b, 16, c.Depth)
	putU32(b, 20, c.MipCount)
	putU32(b, 24, c.SampleCount)
	putU32(b, 28, c.SampleQuality)
	putU32(b, 32, c.BindFlags)
	putU32(b, 36, c.MiscFlags)
	putU32(b, 40, c.HeapOffset)
	putU32(b, 44, c.DataSize)
	return dst
}

// --- Resource open / destroy / copy -----------------------------------------

// CmdOpenResource maps to OP_OPEN_RESOURCE; the header's ResourceID carries
// the new (aliased) id, SrcResourceID the existing id being aliased.
type CmdOpenResource struct {
	Header        CommandHeader
	SrcResourceID uint32
	ResourceType  uint32
}

const cmdOpenResourceSize = CommandHeaderSize + 8

func DecodeCmdOpenResource(data []byte) (CmdOpenResource, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdOpenResource{}, err
	}
	if len(data) < cmdOpenResourceSize {
		return CmdOpenResource{}, fmt.Errorf("OPEN_RESOURCE: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdOpenResource{Header: h, SrcResourceID: u32(b, 0), ResourceType: u32(b, 4)}, nil
}

func (c CmdOpenResource) Encode() []byte {
	dst := make([]byte, cmdOpenResourceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.SrcResourceID)
	putU32(b, 4, c.ResourceType)
	return dst
}

// CmdCopyResource maps to OP_COPY_RESOURCE; header.ResourceID is the
// destination, SrcResourceID the source.
type CmdCopyResource struct {
	Header        CommandHeader
	SrcResourceID uint32
}

const cmdCopyResourceSize = CommandHeaderSize + 4

func DecodeCmdCopyResource(data []byte) (CmdCopyResource, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdCopyResource{}, err
	}
	if len(data) < cmdCopyResourceSize {
		return CmdCopyResource{}, fmt.Errorf("COPY_RESOURCE: short payload")
	}
	return CmdCopyResource{Header: h, SrcResourceID: u32(data[CommandHeaderSize:], 0)}, nil
}

func (c CmdCopyResource) Encode() []byte {
	dst := make([]byte, cmdCopyResourceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	putU32(dst[CommandHeaderSize:], 0, c.SrcResourceID)
	return dst
}

// --- Shader lifecycle --------------------------------------------------------

// CmdCreateShader is shared by all six CREATE_*_SHADER opcodes; the stage is
// determined by the opcode itself (spec section 9, closed set dispatched by
// a small integer).
type CmdCreateShader struct {
	Header     CommandHeader
	HeapOffset uint32
	DataSize   uint32
}

const cmdCreateShaderSize = CommandHeaderSize + 8

func DecodeCmdCreateShader(data []byte) (CmdCreateShader, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdCreateShader{}, err
	}
	if len(data) < cmdCreateShaderSize {
		return CmdCreateShader{}, fmt.Errorf("CREATE_SHADER: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdCreateShader{Header: h, HeapOffset: u32(b, 0), DataSize: u32(b, 4)}, nil
}

func (c CmdCreateShader) Encode() []byte {
	dst := make([]byte, cmdCreateShaderSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.HeapOffset)
	putU32(b, 4, c.DataSize)
	return dst
}

// --- Map / Unmap / Update -----------------------------------------------------

// CmdMapResource maps to OP_MAP_RESOURCE.
type CmdMapResource struct {
	Header      CommandHeader
	Subresource uint32
	MapType     MapType
	HeapOffset  uint32
}

const cmdMapResourceSize = CommandHeaderSize + 12

func DecodeCmdMapResource(data []byte) (CmdMapResource, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdMapResource{}, err
	}
	if len(data) < cmdMapResourceSize {
		return CmdMapResource{}, fmt.Errorf("MAP_RESOURCE: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdMapResource{Header: h, Subresource: u32(b, 0), MapType: MapType(u32(b, 4)), HeapOffset: u32(b, 8)}, nil
}

func (c CmdMapResource) Encode() []byte {
	dst := make([]byte, cmdMapResourceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Subresource)
	putU32(b, 4, uint32(c.MapType))
	putU32(b, 8, c.HeapOffset)
	return dst
}

// CmdUnmapResource maps to OP_UNMAP_RESOURCE.
type CmdUnmapResource struct {
	Header      CommandHeader
	Subresource uint32
	HeapOffset  uint32
	Size        uint32
}

const cmdUnmapResourceSize = CommandHeaderSize + 12

func DecodeCmdUnmapResource(data []byte) (CmdUnmapResource, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdUnmapResource{}, err
	}
	if len(data) < cmdUnmapResourceSize {
		return CmdUnmapResource{}, fmt.Errorf("UNMAP_RESOURCE: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdUnmapResource{Header: h, Subresource: u32(b, 0), HeapOffset: u32(b, 4), Size: u32(b, 8)}, nil
}

func (c CmdUnmapResource) Encode() []byte {
	dst := make([]byte, cmdUnmapResourceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Subresource)
	putU32(b, 4, c.HeapOffset)
	putU32(b, 8, c.Size)
	return dst
}

// UpdateBox is the optional destination box carried by UPDATE_RESOURCE.
type UpdateBox struct {
	Left, Top, Front    uint32
	Right, Bottom, Back uint32
}

// CmdUpdateResource maps to OP_UPDATE_RESOURCE.
type CmdUpdateResource struct {
	Header      CommandHeader
	Subresource uint32
	HeapOffset  uint32
	Size        uint32
	HasBox      bool
	Box         UpdateBox
	RowPitch    uint32
	DepthPitch  uint32
}

const cmdUpdateResourceSize = CommandHeaderSize + 12 + 4 + 24 + 8

func DecodeCmdUpdateResource(data []byte) (CmdUpdateResource, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdUpdateResource{}, err
	}
	if len(data) < cmdUpdateResourceSize {
		return CmdUpdateResource{}, fmt.Errorf("UPDATE_RESOURCE: short payload")
	}
	b := data[CommandHeaderSize:]
	hasBox := u32(b, 12) != 0
	return CmdUpdateResource{
		Header:      h,
		Subresource: u32(b, 0),
		HeapOffset:  u32(b, 4),
		Size:        u32(b, 8),
		HasBox:      hasBox,
		Box: UpdateBox{
			Left: u32(b, 16), Top: u32(b, 20), Front: u32(b, 24),
			Right: u32(b, 28), Bottom: u32(b, 32), Back: u32(b, 36),
		},
		RowPitch:   u32(b, 40),
		DepthPitch: u32(b, 44),
	}, nil
}

func (c CmdUpdateResource) Encode() []byte {
	dst := make([]byte, cmdUpdateResourceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Subresource)
	putU32(b, 4, c.HeapOffset)
	putU32(b, 8, c.Size)
	hasBox := uint32(0)
	if c.HasBox {
		hasBox = 1
	}
	putU32(b, 12, hasBox)
	putU32(b, 16, c.Box.Left)
	putU32(b, 20, c.Box.Top)
	putU32(b, 24, c.Box.Front)
	putU32(b, 28, c.Box.Right)
	putU32(b, 32, c.Box.Bottom)
	putU32(b, 36, c.Box.Back)
	putU32(b, 40, c.RowPitch)
	putU32(b, 44, c.DepthPitch)
	return dst
}

// --- State setters ------------------------------------------------------------

const MaxRenderTargets = 8

// CmdSetRenderTarget maps to OP_SET_RENDER_TARGET.
type CmdSetRenderTarget struct {
	Header CommandHeader
	NumRTV uint32
	RTVIDs [MaxRenderTargets]uint32
	DSVID  uint32
}

const cmdSetRenderTargetSize = CommandHeaderSize + 4 + MaxRenderTargets*4 + 4

func DecodeCmdSetRenderTarget(data []byte) (CmdSetRenderTarget, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetRenderTarget{}, err
	}
	if len(data) < cmdSetRenderTargetSize {
		return CmdSetRenderTarget{}, fmt.Errorf("SET_RENDER_TARGET: short payload")
	}
	b := data[CommandHeaderSize:]
	out := CmdSetRenderTarget{Header: h, NumRTV: u32(b, 0)}
	for i := 0; i < MaxRenderTargets; i++ {
		out.RTVIDs[i] = u32(b, 4+i*4)
	}
	out.DSVID = u32(b, 4+MaxRenderTargets*4)
	return out, nil
}

func (c CmdSetRenderTarget) Encode() []byte {
	dst := make([]byte, cmdSetRenderTargetSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.NumRTV)
	for i := 0; i < MaxRenderTargets; i++ {
		putU32(b, 4+i*4, c.RTVIDs[i])
	}
	putU32(b, 4+MaxRenderTargets*4, c.DSVID)
	return dst
}

// Viewport is one entry of SET_VIEWPORT's inline array.
type Viewport struct {
	TopLeftX, TopLeftY float32
	Width, Height      float32
	MinDepth, MaxDepth float32
}

const viewportSize = 24

// CmdSetViewport maps to OP_SET_VIEWPORT.
type CmdSetViewport struct {
	Header    CommandHeader
	Count     uint32
	Viewports [MaxViewports]Viewport
}

const cmdSetViewportSize = CommandHeaderSize + 4 + MaxViewports*viewportSize

func DecodeCmdSetViewport(data []byte) (CmdSetViewport, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetViewport{}, err
	}
	if len(data) < cmdSetViewportSize {
		return CmdSetViewport{}, fmt.Errorf("SET_VIEWPORT: short payload")
	}
	b := data[CommandHeaderSize:]
	out := CmdSetViewport{Header: h, Count: u32(b, 0)}
	base := 4
	for i := 0; i < MaxViewports; i++ {
		o := base + i*viewportSize
		out.Viewports[i] = Viewport{
			TopLeftX: f32(b, o), TopLeftY: f32(b, o+4),
			Width: f32(b, o+8), Height: f32(b, o+12),
			MinDepth: f32(b, o+16), MaxDepth: f32(b, o+20),
		}
	}
	return out, nil
}

func (c CmdSetViewport) Encode() []byte {
	dst := make([]byte, cmdSetViewportSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Count)
	base := 4
	for i := 0; i < MaxViewports; i++ {
		o := base + i*viewportSize
		v := c.Viewports[i]
		putF32(b, o, v.TopLeftX)
		putF32(b, o+4, v.TopLeftY)
		putF32(b, o+8, v.Width)
		putF32(b, o+12, v.Height)
		putF32(b, o+16, v.MinDepth)
		putF32(b, o+20, v.MaxDepth)
	}
	return dst
}

// ScissorRect is one entry of SET_SCISSOR's inline array.
type ScissorRect struct {
	Left, Top, Right, Bottom int32
}

const scissorRectSize = 16

// CmdSetScissor maps to OP_SET_SCISSOR.
type CmdSetScissor struct {
	Header  CommandHeader
	Count   uint32
	Rects   [MaxScissors]ScissorRect
}

const cmdSetScissorSize = CommandHeaderSize + 4 + MaxScissors*scissorRectSize

func DecodeCmdSetScissor(data []byte) (CmdSetScissor, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetScissor{}, err
	}
	if len(data) < cmdSetScissorSize {
		return CmdSetScissor{}, fmt.Errorf("SET_SCISSOR: short payload")
	}
	b := data[CommandHeaderSize:]
	out := CmdSetScissor{Header: h, Count: u32(b, 0)}
	base := 4
	for i := 0; i < MaxScissors; i++ {
		o := base + i*scissorRectSize
		out.Rects[i] = ScissorRect{Left: i32(b, o), Top: i32(b, o+4), Right: i32(b, o+8), Bottom: i32(b, o+12)}
	}
	return out, nil
}

func (c CmdSetScissor) Encode() []byte {
	dst := make([]byte, cmdSetScissorSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Count)
	base := 4
	for i := 0; i < MaxScissors; i++ {
		o := base + i*scissorRectSize
		r := c.Rects[i]
		putI32(b, o, r.Left)
		putI32(b, o+4, r.Top)
		putI32(b, o+8, r.Right)
		putI32(b, o+12, r.Bottom)
	}
	return dst
}

// CmdSetShader maps to OP_SET_SHADER; header.ResourceID is the shader id
// (0 = unbind).
type CmdSetShader struct {
	Header CommandHeader
	Stage  ShaderStage
}

const cmdSetShaderSize = CommandHeaderSize + 4

func DecodeCmdSetShader(data []byte) (CmdSetShader, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetShader{}, err
	}
	if len(data) < cmdSetShaderSize {
		return CmdSetShader{}, fmt.Errorf("SET_SHADER: short payload")
	}
	return CmdSetShader{Header: h, Stage: ShaderStage(u32(data[CommandHeaderSize:], 0))}, nil
}

func (c CmdSetShader) Encode() []byte {
	dst := make([]byte, cmdSetShaderSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	putU32(dst[CommandHeaderSize:], 0, uint32(c.Stage))
	return dst
}

// CmdSetSamplers maps to OP_SET_SAMPLERS.
type CmdSetSamplers struct {
	Header    CommandHeader
	Stage     ShaderStage
	StartSlot uint32
	Num       uint32
	IDs       [MaxSamplers]uint32
}

const cmdSetSamplersSize = CommandHeaderSize + 12 + MaxSamplers*4

func DecodeCmdSetSamplers(data []byte) (CmdSetSamplers, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetSamplers{}, err
	}
	if len(data) < cmdSetSamplersSize {
		return CmdSetSamplers{}, fmt.Errorf("SET_SAMPLERS: short payload")
	}
	b := data[CommandHeaderSize:]
	out := CmdSetSamplers{Header: h, Stage: ShaderStage(u32(b, 0)), StartSlot: u32(b, 4), Num: u32(b, 8)}
	for i := 0; i < MaxSamplers; i++ {
		out.IDs[i] = u32(b, 12+i*4)
	}
	return out, nil
}

func (c CmdSetSamplers) Encode() []byte {
	dst := make([]byte, cmdSetSamplersSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, uint32(c.Stage))
	putU32(b, 4, c.StartSlot)
	putU32(b, 8, c.Num)
	for i := 0; i < MaxSamplers; i++ {
		putU32(b, 12+i*4, c.IDs[i])
	}
	return dst
}

// CmdSetConstantBuffer maps to OP_SET_CONSTANT_BUFFER; header.ResourceID is
// the buffer id (0 = unbind).
type CmdSetConstantBuffer struct {
	Header CommandHeader
	Stage  ShaderStage
	Slot   uint32
}

const cmdSetConstantBufferSize = CommandHeaderSize + 8

func DecodeCmdSetConstantBuffer(data []byte) (CmdSetConstantBuffer, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetConstantBuffer{}, err
	}
	if len(data) < cmdSetConstantBufferSize {
		return CmdSetConstantBuffer{}, fmt.Errorf("SET_CONSTANT_BUFFER: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdSetConstantBuffer{Header: h, Stage: ShaderStage(u32(b, 0)), Slot: u32(b, 4)}, nil
}

func (c CmdSetConstantBuffer) Encode() []byte {
	dst := make([]byte, cmdSetConstantBufferSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, uint32(c.Stage))
	putU32(b, 4, c.Slot)
	return dst
}

// CmdSetShaderResources maps to OP_SET_SHADER_RESOURCES.
type CmdSetShaderResources struct {
	Header    CommandHeader
	Stage     ShaderStage
	StartSlot uint32
	Num       uint32
	IDs       [MaxShaderResources]uint32
}

const cmdSetShaderResourcesSize = CommandHeaderSize + 12 + MaxShaderResources*4

func DecodeCmdSetShaderResources(data []byte) (CmdSetShaderResources, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetShaderResources{}, err
	}
	if len(data) < cmdSetShaderResourcesSize {
		return CmdSetShaderResources{}, fmt.Errorf("SET_SHADER_RESOURCES: short payload")
	}
	b := data[CommandHeaderSize:]
	out := CmdSetShaderResources{Header: h, Stage: ShaderStage(u32(b, 0)), StartSlot: u32(b, 4), Num: u32(b, 8)}
	for i := 0; i < MaxShaderResources; i++ {
		out.IDs[i] = u32(b, 12+i*4)
	}
	return out, nil
}

func (c CmdSetShaderResources) Encode() []byte {
	dst := make([]byte, cmdSetShaderResourcesSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, uint32(c.Stage))
	putU32(b, 4, c.StartSlot)
	putU32(b, 8, c.Num)
	for i := 0; i < MaxShaderResources; i++ {
		putU32(b, 12+i*4, c.IDs[i])
	}
	return dst
}

// VertexBufferBinding is one entry of SET_VERTEX_BUFFER's inline array.
type VertexBufferBinding struct {
	BufferID uint32
	Stride   uint32
	Offset   uint32
}

const vertexBufferBindingSize = 12

// CmdSetVertexBuffer maps to OP_SET_VERTEX_BUFFER.
type CmdSetVertexBuffer struct {
	Header     CommandHeader
	StartSlot  uint32
	NumBuffers uint32
	Buffers    [MaxVertexBuffers]VertexBufferBinding
}

const cmdSetVertexBufferSize = CommandHeaderSize + 8 + MaxVertexBuffers*vertexBufferBindingSize

func DecodeCmdSetVertexBuffer(data []byte) (CmdSetVertexBuffer, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetVertexBuffer{}, err
	}
	if len(data) < cmdSetVertexBufferSize {
		return CmdSetVertexBuffer{}, fmt.Errorf("SET_VERTEX_BUFFER: short payload")
	}
	b := data[CommandHeaderSize:]
	out := CmdSetVertexBuffer{Header: h, StartSlot: u32(b, 0), NumBuffers: u32(b, 4)}
	base := 8
	for i := 0; i < MaxVertexBuffers; i++ {
		o := base + i*vertexBufferBindingSize
		out.Buffers[i] = VertexBufferBinding{BufferID: u32(b, o), Stride: u32(b, o+4), Offset: u32(b, o+8)}
	}
	return out, nil
}

func (c CmdSetVertexBuffer) Encode() []byte {
	dst := make([]byte, cmdSetVertexBufferSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.StartSlot)
	putU32(b, 4, c.NumBuffers)
	base := 8
	for i := 0; i < MaxVertexBuffers; i++ {
		o := base + i*vertexBufferBindingSize
		bind := c.Buffers[i]
		putU32(b, o, bind.BufferID)
		putU32(b, o+4, bind.Stride)
		putU32(b, o+8, bind.Offset)
	}
	return dst
}

// CmdSetIndexBuffer maps to OP_SET_INDEX_BUFFER; header.ResourceID is the
// buffer id.
type CmdSetIndexBuffer struct {
	Header CommandHeader
	Format uint32
	Offset uint32
}

const cmdSetIndexBufferSize = CommandHeaderSize + 8

func DecodeCmdSetIndexBuffer(data []byte) (CmdSetIndexBuffer, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetIndexBuffer{}, err
	}
	if len(data) < cmdSetIndexBufferSize {
		return CmdSetIndexBuffer{}, fmt.Errorf("SET_INDEX_BUFFER: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdSetIndexBuffer{Header: h, Format: u32(b, 0), Offset: u32(b, 4)}, nil
}

func (c CmdSetIndexBuffer) Encode() []byte {
	dst := make([]byte, cmdSetIndexBufferSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Format)
	putU32(b, 4, c.Offset)
	return dst
}

// CmdSetPrimitiveTopology maps to OP_SET_PRIMITIVE_TOPOLOGY.
type CmdSetPrimitiveTopology struct {
	Header   CommandHeader
	Topology uint32
}

const cmdSetPrimitiveTopologySize = CommandHeaderSize + 4

func DecodeCmdSetPrimitiveTopology(data []byte) (CmdSetPrimitiveTopology, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetPrimitiveTopology{}, err
	}
	if len(data) < cmdSetPrimitiveTopologySize {
		return CmdSetPrimitiveTopology{}, fmt.Errorf("SET_PRIMITIVE_TOPOLOGY: short payload")
	}
	return CmdSetPrimitiveTopology{Header: h, Topology: u32(data[CommandHeaderSize:], 0)}, nil
}

func (c CmdSetPrimitiveTopology) Encode() []byte {
	dst := make([]byte, cmdSetPrimitiveTopologySize)
	c.Header.Encode(dst[:CommandHeaderSize])
	putU32(dst[CommandHeaderSize:], 0, c.Topology)
	return dst
}

// CmdSetDepthStencil maps to OP_SET_DEPTH_STENCIL; header.ResourceID is the
// depth-stencil STATE id, DSVID the view.
type CmdSetDepthStencil struct {
	Header     CommandHeader
	DSVID      uint32
	StencilRef uint32
}

const cmdSetDepthStencilSize = CommandHeaderSize + 8

func DecodeCmdSetDepthStencil(data []byte) (CmdSetDepthStencil, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdSetDepthStencil{}, err
	}
	if len(data) < cmdSetDepthStencilSize {
		return CmdSetDepthStencil{}, fmt.Errorf("SET_DEPTH_STENCIL: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdSetDepthStencil{Header: h, DSVID: u32(b, 0), StencilRef: u32(b, 4)}, nil
}

func (c CmdSetDepthStencil) Encode() []byte {
	dst := make([]byte, cmdSetDepthStencilSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.DSVID)
	putU32(b, 4, c.StencilRef)
	return dst
}

// --- Draws / clears ------------------------------------------------------------

type CmdDraw struct {
	Header      CommandHeader
	VertexCount uint32
	StartVertex uint32
}

const cmdDrawSize = CommandHeaderSize + 8

func DecodeCmdDraw(data []byte) (CmdDraw, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdDraw{}, err
	}
	if len(data) < cmdDrawSize {
		return CmdDraw{}, fmt.Errorf("DRAW: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdDraw{Header: h, VertexCount: u32(b, 0), StartVertex: u32(b, 4)}, nil
}

func (c CmdDraw) Encode() []byte {
	dst := make([]byte, cmdDrawSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.VertexCount)
	putU32(b, 4, c.StartVertex)
	return dst
}

type CmdDrawIndexed struct {
	Header      CommandHeader
	IndexCount  uint32
	StartIndex  uint32
	BaseVertex  int32
}

const cmdDrawIndexedSize = CommandHeaderSize + 12

func DecodeCmdDrawIndexed(data []byte) (CmdDrawIndexed, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdDrawIndexed{}, err
	}
	if len(data) < cmdDrawIndexedSize {
		return CmdDrawIndexed{}, fmt.Errorf("DRAW_INDEXED: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdDrawIndexed{Header: h, IndexCount: u32(b, 0), StartIndex: u32(b, 4), BaseVertex: i32(b, 8)}, nil
}

func (c CmdDrawIndexed) Encode() []byte {
	dst := make([]byte, cmdDrawIndexedSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.IndexCount)
	putU32(b, 4, c.StartIndex)
	putI32(b, 8, c.BaseVertex)
	return dst
}

type CmdDrawInstanced struct {
	Header                 CommandHeader
	VertexCountPerInstance uint32
	InstanceCount          uint32
	StartVertex            uint32
	StartInstance          uint32
}

const cmdDrawInstancedSize = CommandHeaderSize + 16

func DecodeCmdDrawInstanced(data []byte) (CmdDrawInstanced, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdDrawInstanced{}, err
	}
	if len(data) < cmdDrawInstancedSize {
		return CmdDrawInstanced{}, fmt.Errorf("DRAW_INSTANCED: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdDrawInstanced{
		Header: h, VertexCountPerInstance: u32(b, 0), InstanceCount: u32(b, 4),
		StartVertex: u32(b, 8), StartInstance: u32(b, 12),
	}, nil
}

func (c CmdDrawInstanced) Encode() []byte {
	dst := make([]byte, cmdDrawInstancedSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.VertexCountPerInstance)
	putU32(b, 4, c.InstanceCount)
	putU32(b, 8, c.StartVertex)
	putU32(b, 12, c.StartInstance)
	return dst
}

type CmdDrawIndexedInstanced struct {
	Header                CommandHeader
	IndexCountPerInstance uint32
	InstanceCount         uint32
	StartIndex            uint32
	BaseVertex            int32
	StartInstance         uint32
}

const cmdDrawIndexedInstancedSize = CommandHeaderSize + 20

func DecodeCmdDrawIndexedInstanced(data []byte) (CmdDrawIndexedInstanced, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdDrawIndexedInstanced{}, err
	}
	if len(data) < cmdDrawIndexedInstancedSize {
		return CmdDrawIndexedInstanced{}, fmt.Errorf("DRAW_INDEXED_INSTANCED: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdDrawIndexedInstanced{
		Header: h, IndexCountPerInstance: u32(b, 0), InstanceCount: u32(b, 4),
		StartIndex: u32(b, 8), BaseVertex: i32(b, 12), StartInstance: u32(b, 16),
	}, nil
}

func (c CmdDrawIndexedInstanced) Encode() []byte {
	dst := make([]byte, cmdDrawIndexedInstancedSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.IndexCountPerInstance)
	putU32(b, 4, c.InstanceCount)
	putU32(b, 8, c.StartIndex)
	putI32(b, 12, c.BaseVertex)
	putU32(b, 16, c.StartInstance)
	return dst
}

type CmdDispatch struct {
	Header                     CommandHeader
	ThreadGroupX, ThreadGroupY, ThreadGroupZ uint32
}

const cmdDispatchSize = CommandHeaderSize + 12

func DecodeCmdDispatch(data []byte) (CmdDispatch, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdDispatch{}, err
	}
	if len(data) < cmdDispatchSize {
		return CmdDispatch{}, fmt.Errorf("DISPATCH: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdDispatch{Header: h, ThreadGroupX: u32(b, 0), ThreadGroupY: u32(b, 4), ThreadGroupZ: u32(b, 8)}, nil
}

func (c CmdDispatch) Encode() []byte {
	dst := make([]byte, cmdDispatchSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.ThreadGroupX)
	putU32(b, 4, c.ThreadGroupY)
	putU32(b, 8, c.ThreadGroupZ)
	return dst
}

// CmdClearRenderTarget maps to OP_CLEAR_RENDER_TARGET; header.ResourceID is
// either an RTV id or a texture id carrying an associated view (spec section
// 4.5, "Clears").
type CmdClearRenderTarget struct {
	Header CommandHeader
	Color  [4]float32
}

const cmdClearRenderTargetSize = CommandHeaderSize + 16

func DecodeCmdClearRenderTarget(data []byte) (CmdClearRenderTarget, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdClearRenderTarget{}, err
	}
	if len(data) < cmdClearRenderTargetSize {
		return CmdClearRenderTarget{}, fmt.Errorf("CLEAR_RENDER_TARGET: short payload")
	}
	b := data[CommandHeaderSize:]
	var c [4]float32
	for i := range c {
		c[i] = f32(b, i*4)
	}
	return CmdClearRenderTarget{Header: h, Color: c}, nil
}

func (c CmdClearRenderTarget) Encode() []byte {
	dst := make([]byte, cmdClearRenderTargetSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	for i, v := range c.Color {
		putF32(b, i*4, v)
	}
	return dst
}

const (
	ClearFlagDepth   uint32 = 1 << 0
	ClearFlagStencil uint32 = 1 << 1
)

// CmdClearDepthStencil maps to OP_CLEAR_DEPTH_STENCIL; header.ResourceID is
// either a DSV id or a texture id carrying an associated view.
type CmdClearDepthStencil struct {
	Header  CommandHeader
	Flags   uint32
	Depth   float32
	Stencil uint32
}

const cmdClearDepthStencilSize = CommandHeaderSize + 12

func DecodeCmdClearDepthStencil(data []byte) (CmdClearDepthStencil, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdClearDepthStencil{}, err
	}
	if len(data) < cmdClearDepthStencilSize {
		return CmdClearDepthStencil{}, fmt.Errorf("CLEAR_DEPTH_STENCIL: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdClearDepthStencil{Header: h, Flags: u32(b, 0), Depth: f32(b, 4), Stencil: u32(b, 8)}, nil
}

func (c CmdClearDepthStencil) Encode() []byte {
	dst := make([]byte, cmdClearDepthStencilSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.Flags)
	putF32(b, 4, c.Depth)
	putU32(b, 8, c.Stencil)
	return dst
}

// --- Sync ------------------------------------------------------------------

type CmdFence struct {
	Header CommandHeader
	Value  uint64
}

const cmdFenceSize = CommandHeaderSize + 8

func DecodeCmdFence(data []byte) (CmdFence, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdFence{}, err
	}
	if len(data) < cmdFenceSize {
		return CmdFence{}, fmt.Errorf("FENCE: short payload")
	}
	return CmdFence{Header: h, Value: binary.LittleEndian.Uint64(data[CommandHeaderSize:])}, nil
}

func (c CmdFence) Encode() []byte {
	dst := make([]byte, cmdFenceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	binary.LittleEndian.PutUint64(dst[CommandHeaderSize:], c.Value)
	return dst
}

const (
	PresentFlagAllowTearing uint32 = 1 << 0
)

// CmdPresent maps to OP_PRESENT; header.ResourceID is the backbuffer id.
type CmdPresent struct {
	Header       CommandHeader
	SyncInterval uint32
	PresentFlags uint32
}

const cmdPresentSize = CommandHeaderSize + 8

func DecodeCmdPresent(data []byte) (CmdPresent, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdPresent{}, err
	}
	if len(data) < cmdPresentSize {
		return CmdPresent{}, fmt.Errorf("PRESENT: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdPresent{Header: h, SyncInterval: u32(b, 0), PresentFlags: u32(b, 4)}, nil
}

func (c CmdPresent) Encode() []byte {
	dst := make([]byte, cmdPresentSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.SyncInterval)
	putU32(b, 4, c.PresentFlags)
	return dst
}

type CmdWaitFence struct {
	Header CommandHeader
	Value  uint64
}

const cmdWaitFenceSize = CommandHeaderSize + 8

func DecodeCmdWaitFence(data []byte) (CmdWaitFence, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdWaitFence{}, err
	}
	if len(data) < cmdWaitFenceSize {
		return CmdWaitFence{}, fmt.Errorf("WAIT_FENCE: short payload")
	}
	return CmdWaitFence{Header: h, Value: binary.LittleEndian.Uint64(data[CommandHeaderSize:])}, nil
}

func (c CmdWaitFence) Encode() []byte {
	dst := make([]byte, cmdWaitFenceSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	binary.LittleEndian.PutUint64(dst[CommandHeaderSize:], c.Value)
	return dst
}

// CmdResizeBuffers maps to OP_RESIZE_BUFFERS.
type CmdResizeBuffers struct {
	Header      CommandHeader
	SwapchainID uint32
	Width       uint32
	Height      uint32
	Format      uint32
	BufferCount uint32
	Flags       uint32
}

const cmdResizeBuffersSize = CommandHeaderSize + 24

func DecodeCmdResizeBuffers(data []byte) (CmdResizeBuffers, error) {
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return CmdResizeBuffers{}, err
	}
	if len(data) < cmdResizeBuffersSize {
		return CmdResizeBuffers{}, fmt.Errorf("RESIZE_BUFFERS: short payload")
	}
	b := data[CommandHeaderSize:]
	return CmdResizeBuffers{
		Header: h, SwapchainID: u32(b, 0), Width: u32(b, 4), Height: u32(b, 8),
		Format: u32(b, 12), BufferCount: u32(b, 16), Flags: u32(b, 20),
	}, nil
}

func (c CmdResizeBuffers) Encode() []byte {
	dst := make([]byte, cmdResizeBuffersSize)
	c.Header.Encode(dst[:CommandHeaderSize])
	b := dst[CommandHeaderSize:]
	putU32(b, 0, c.SwapchainID)
	putU32(b, 4, c.Width)
	putU32(b, 8, c.Height)
	putU32(b, 12, c.Format)
	putU32(b, 16, c.BufferCount)
	putU32(b, 20, c.Flags)
	return dst
}
