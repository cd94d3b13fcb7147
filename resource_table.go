// resource_table.go - id -> native object slab (C4)

// License: GPLv3 or later

package main

import (
	"fmt"
	"sync/atomic"
)

// ResourceKind tags which variant a resourceEntry holds.
type ResourceKind int

const (
	KindTexture2D ResourceKind = iota
	KindBuffer
	KindVertexShader
	KindPixelShader
	KindGeometryShader
	KindHullShader
	KindDomainShader
	KindComputeShader
	KindInputLayout
	KindBlendState
	KindRasterizerState
	KindDepthStencilState
	KindSamplerState
	KindRenderTargetView
	KindDepthStencilView
	KindShaderResourceView
)

func (k ResourceKind) String() string {
	names := [...]string{
		"Texture2D", "Buffer", "VertexShader", "PixelShader", "GeometryShader",
		"HullShader", "DomainShader", "ComputeShader", "InputLayout", "BlendState",
		"RasterizerState", "DepthStencilState", "SamplerState", "RenderTargetView",
		"DepthStencilView", "ShaderResourceView",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// NativeHandle is released once its owning nativeRef's refcount drops to
// zero. Concrete native GPU handles (NativeDevice's return types) satisfy
// this.
type NativeHandle interface {
	Release()
}

// nativeRef is the shared refcounted anchor behind every resource variant.
// OPEN_RESOURCE inserts a new table slot pointing at the same nativeRef
// rather than creating a new native object (spec section 4.4, "aliasing
// increments the native refcount").
type nativeRef struct {
	handle NativeHandle
	refs   int32
}

func newNativeRef(h NativeHandle) *nativeRef { return &nativeRef{handle: h, refs: 1} }

func (r *nativeRef) addRef() { atomic.AddInt32(&r.refs, 1) }

// release decrements the refcount and releases the underlying native
// handle once it reaches zero. Returns the refcount after decrement.
func (r *nativeRef) release() int32 {
	n := atomic.AddInt32(&r.refs, -1)
	if n <= 0 {
		r.handle.Release()
	}
	return n
}

// Texture2D is the resource-table variant for 2-D textures.
type Texture2D struct {
	ref    *nativeRef
	Native NativeTexture
	Width  uint32
	Height uint32
	Format uint32
	RTV    *RenderTargetView
	DSV    *DepthStencilView
	SRV    *ShaderResourceView
}

// Buffer is the resource-table variant for linear buffers.
type Buffer struct {
	ref       *nativeRef
	Native    NativeBuffer
	Size      uint32
	BindFlags uint32
}

// ShaderObject is the shared shape of all six per-stage shader variants;
// the stage distinguishes which setter family may bind it (spec section
// 9, "closed set of six per-stage setters").
type ShaderObject struct {
	ref    *nativeRef
	Native NativeShader
	Stage  ShaderStage
}

type InputLayout struct {
	ref    *nativeRef
	Native NativeInputLayout
}

type BlendState struct {
	ref    *nativeRef
	Native NativeBlendState
}

type RasterizerState struct {
	ref    *nativeRef
	Native NativeRasterizerState
}

type DepthStencilState struct {
	ref    *nativeRef
	Native NativeDepthStencilState
}

type SamplerState struct {
	ref    *nativeRef
	Native NativeSamplerState
}

type RenderTargetView struct {
	ref       *nativeRef
	Native    NativeRenderTargetView
	TextureID uint32
}

type DepthStencilView struct {
	ref       *nativeRef
	Native    NativeDepthStencilView
	TextureID uint32
}

type ShaderResourceView struct {
	ref       *nativeRef
	Native    NativeShaderResourceView
	TextureID uint32
}

type resourceEntry struct {
	kind ResourceKind
	val  any
	ref  *nativeRef
}

// ResourceTable is a sparse indexed slab keyed by a dense, guest-assigned
// id. Id 0 is reserved to mean "unbind" and is never a valid slot (spec
// section 3).
type ResourceTable struct {
	slots []*resourceEntry // slots[0] is always unused
}

// NewResourceTable returns an empty table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{slots: make([]*resourceEntry, 1)}
}

func (t *ResourceTable) grow(id uint32) {
	if int(id) < len(t.slots) {
		return
	}
	next := make([]*resourceEntry, id+1)
	copy(next, t.slots)
	t.slots = next
}

// insert places val (of the given kind, backed by ref) at id, growing the
// slab as needed. Ids < 1 are rejected.
func (t *ResourceTable) insert(id uint32, kind ResourceKind, val any, ref *nativeRef) error {
	if id < 1 {
		return fmt.Errorf("resource table: id %d is reserved", id)
	}
	t.grow(id)
	t.slots[id] = &resourceEntry{kind: kind, val: val, ref: ref}
	return nil
}

func (t *ResourceTable) get(id uint32) (*resourceEntry, bool) {
	if id < 1 || int(id) >= len(t.slots) {
		return nil, false
	}
	e := t.slots[id]
	return e, e != nil
}

// Destroy releases the slot, decrementing the underlying native refcount.
// Returns false if id was not present.
func (t *ResourceTable) Destroy(id uint32) bool {
	e, ok := t.get(id)
	if !ok {
		return false
	}
	t.slots[id] = nil
	e.ref.release()
	return true
}

// Kind reports the variant stored at id, if any.
func (t *ResourceTable) Kind(id uint32) (ResourceKind, bool) {
	e, ok := t.get(id)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// ClearAll drops the slab wholesale, without releasing individual native
// refcounts: it is used immediately before a full device recreate, at
// which point every native object behind it is already gone (spec section
// 4.4, "clear_all() drops the slab, used before device-recreate").
func (t *ResourceTable) ClearAll() {
	t.slots = make([]*resourceEntry, 1)
}

// Counts returns the number of live entries per kind, for operator
// inspection (the console's "resources" command).
func (t *ResourceTable) Counts() map[ResourceKind]int {
	counts := make(map[ResourceKind]int)
	for _, e := range t.slots {
		if e != nil {
			counts[e.kind]++
		}
	}
	return counts
}

// InsertTexture2D places a freshly created texture at id.
func (t *ResourceTable) InsertTexture2D(id uint32, tex *Texture2D) error {
	tex.ref = newNativeRef(tex.Native)
	return t.insert(id, KindTexture2D, tex, tex.ref)
}

// GetTexture2D returns the texture at id, or (nil, false) if absent or of
// a different variant.
func (t *ResourceTable) GetTexture2D(id uint32) (*Texture2D, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindTexture2D {
		return nil, false
	}
	return e.val.(*Texture2D), true
}

func (t *ResourceTable) InsertBuffer(id uint32, buf *Buffer) error {
	buf.ref = newNativeRef(buf.Native)
	return t.insert(id, KindBuffer, buf, buf.ref)
}

func (t *ResourceTable) GetBuffer(id uint32) (*Buffer, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindBuffer {
		return nil, false
	}
	return e.val.(*Buffer), true
}

// shaderKindForStage maps a shader stage to its resource-table kind tag.
func shaderKindForStage(stage ShaderStage) ResourceKind {
	switch stage {
	case StageVertex:
		return KindVertexShader
	case StagePixel:
		return KindPixelShader
	case StageGeometry:
		return KindGeometryShader
	case StageHull:
		return KindHullShader
	case StageDomain:
		return KindDomainShader
	case StageCompute:
		return KindComputeShader
	default:
		return KindVertexShader
	}
}

func (t *ResourceTable) InsertShader(id uint32, sh *ShaderObject) error {
	sh.ref = newNativeRef(sh.Native)
	return t.insert(id, shaderKindForStage(sh.Stage), sh, sh.ref)
}

// GetShader returns the shader at id if it exists and was created for the
// given stage.
func (t *ResourceTable) GetShader(id uint32, stage ShaderStage) (*ShaderObject, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != shaderKindForStage(stage) {
		return nil, false
	}
	return e.val.(*ShaderObject), true
}

func (t *ResourceTable) InsertInputLayout(id uint32, v *InputLayout) error {
	v.ref = newNativeRef(v.Native)
	return t.insert(id, KindInputLayout, v, v.ref)
}
func (t *ResourceTable) GetInputLayout(id uint32) (*InputLayout, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindInputLayout {
		return nil, false
	}
	return e.val.(*InputLayout), true
}

func (t *ResourceTable) InsertBlendState(id uint32, v *BlendState) error {
	v.ref = newNativeRef(v.Native)
	return t.insert(id, KindBlendState, v, v.ref)
}
func (t *ResourceTable) GetBlendState(id uint32) (*BlendState, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindBlendState {
		return nil, false
	}
	return e.val.(*BlendState), true
}

func (t *ResourceTable) InsertRasterizerState(id uint32, v *RasterizerState) error {
	v.ref = newNativeRef(v.Native)
	return t.insert(id, KindRasterizerState, v, v.ref)
}
func (t *ResourceTable) GetRasterizerState(id uint32) (*RasterizerState, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindRasterizerState {
		return nil, false
	}
	return e.val.(*RasterizerState), true
}

func (t *ResourceTable) InsertDepthStencilState(id uint32, v *DepthStencilState) error {
	v.ref = newNativeRef(v.Native)
	return t.insert(id, KindDepthStencilState, v, v.ref)
}
func (t *ResourceTable) GetDepthStencilState(id uint32) (*DepthStencilState, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindDepthStencilState {
		return nil, false
	}
	return e.val.(*DepthStencilState), true
}

func (t *ResourceTable) InsertSamplerState(id uint32, v *SamplerState) error {
	v.ref = newNativeRef(v.Native)
	return t.insert(id, KindSamplerState, v, v.ref)
}
func (t *ResourceTable) GetSamplerState(id uint32) (*SamplerState, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindSamplerState {
		return nil, false
	}
	return e.val.(*SamplerState), true
}

// InsertRenderTargetView places a view at id and, if its TextureID refers
// to a live Texture2D, attaches it there so clears can resolve either id
// (spec section 4.5, "Clears tolerate either a direct RTV/DSV id or a
// texture id that has an associated view").
func (t *ResourceTable) InsertRenderTargetView(id uint32, v *RenderTargetView) error {
	v.ref = newNativeRef(v.Native)
	if err := t.insert(id, KindRenderTargetView, v, v.ref); err != nil {
		return err
	}
	if tex, ok := t.GetTexture2D(v.TextureID); ok {
		tex.RTV = v
	}
	return nil
}
func (t *ResourceTable) GetRenderTargetView(id uint32) (*RenderTargetView, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindRenderTargetView {
		return nil, false
	}
	return e.val.(*RenderTargetView), true
}

func (t *ResourceTable) InsertDepthStencilView(id uint32, v *DepthStencilView) error {
	v.ref = newNativeRef(v.Native)
	if err := t.insert(id, KindDepthStencilView, v, v.ref); err != nil {
		return err
	}
	if tex, ok := t.GetTexture2D(v.TextureID); ok {
		tex.DSV = v
	}
	return nil
}
func (t *ResourceTable) GetDepthStencilView(id uint32) (*DepthStencilView, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindDepthStencilView {
		return nil, false
	}
	return e.val.(*DepthStencilView), true
}

func (t *ResourceTable) InsertShaderResourceView(id uint32, v *ShaderResourceView) error {
	v.ref = newNativeRef(v.Native)
	if err := t.insert(id, KindShaderResourceView, v, v.ref); err != nil {
		return err
	}
	if tex, ok := t.GetTexture2D(v.TextureID); ok {
		tex.SRV = v
	}
	return nil
}
func (t *ResourceTable) GetShaderResourceView(id uint32) (*ShaderResourceView, bool) {
	e, ok := t.get(id)
	if !ok || e.kind != KindShaderResourceView {
		return nil, false
	}
	return e.val.(*ShaderResourceView), true
}

// Open aliases newID onto the existing object at srcID: it increments the
// native refcount and inserts a new slot of the same kind sharing the
// nativeRef, per spec section 4.4.
func (t *ResourceTable) Open(newID, srcID uint32) error {
	src, ok := t.get(srcID)
	if !ok {
		return fmt.Errorf("resource table: alias source %d not found", srcID)
	}
	src.ref.addRef()

	var clone any
	switch v := src.val.(type) {
	case *Texture2D:
		clone = &Texture2D{ref: src.ref, Native: v.Native, Width: v.Width, Height: v.Height, Format: v.Format, RTV: v.RTV, DSV: v.DSV, SRV: v.SRV}
	case *Buffer:
		clone = &Buffer{ref: src.ref, Native: v.Native, Size: v.Size, BindFlags: v.BindFlags}
	case *ShaderObject:
		clone = &ShaderObject{ref: src.ref, Native: v.Native, Stage: v.Stage}
	case *InputLayout:
		clone = &InputLayout{ref: src.ref, Native: v.Native}
	case *BlendState:
		clone = &BlendState{ref: src.ref, Native: v.Native}
	case *RasterizerState:
		clone = &RasterizerState{ref: src.ref, Native: v.Native}
	case *DepthStencilState:
		clone = &DepthStencilState{ref: src.ref, Native: v.Native}
	case *SamplerState:
		clone = &SamplerState{ref: src.ref, Native: v.Native}
	case *RenderTargetView:
		clone = &RenderTargetView{ref: src.ref, Native: v.Native, TextureID: v.TextureID}
	case *DepthStencilView:
		clone = &DepthStencilView{ref: src.ref, Native: v.Native, TextureID: v.TextureID}
	case *ShaderResourceView:
		clone = &ShaderResourceView{ref: src.ref, Native: v.Native, TextureID: v.TextureID}
	default:
		src.ref.release()
		return fmt.Errorf("resource table: unhandled variant for alias of %d", srcID)
	}

	if err := t.insert(newID, src.kind, clone, src.ref); err != nil {
		src.ref.release()
		return err
	}
	return nil
}
