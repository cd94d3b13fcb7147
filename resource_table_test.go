package main

import "testing"

type fakeHandle struct {
	released *bool
}

func (h fakeHandle) Release() { *h.released = true }

func newFakeHandle() (NativeHandle, *bool) {
	released := false
	return fakeHandle{released: &released}, &released
}

func TestResourceTableInsertAndGet(t *testing.T) {
	tbl := NewResourceTable()
	native, _ := newFakeHandle()
	tex := &Texture2D{Native: native.(fakeHandle), Width: 1920, Height: 1080, Format: 1}
	if err := tbl.InsertTexture2D(1, tex); err != nil {
		t.Fatalf("InsertTexture2D: %v", err)
	}
	got, ok := tbl.GetTexture2D(1)
	if !ok {
		t.Fatal("GetTexture2D(1) not found")
	}
	if got.Width != 1920 || got.Height != 1080 {
		t.Fatalf("got %+v", got)
	}
	if _, ok := tbl.GetBuffer(1); ok {
		t.Fatal("GetBuffer must reject an id of a different variant")
	}
}

func TestResourceTableRejectsReservedID(t *testing.T) {
	tbl := NewResourceTable()
	native, _ := newFakeHandle()
	buf := &Buffer{Native: native.(fakeHandle), Size: 1024}
	if err := tbl.InsertBuffer(0, buf); err == nil {
		t.Fatal("expected error inserting at reserved id 0")
	}
}

func TestResourceTableDestroyThenLookupMisses(t *testing.T) {
	tbl := NewResourceTable()
	native, released := newFakeHandle()
	buf := &Buffer{Native: native.(fakeHandle), Size: 1024}
	if err := tbl.InsertBuffer(5, buf); err != nil {
		t.Fatalf("InsertBuffer: %v", err)
	}
	if !tbl.Destroy(5) {
		t.Fatal("Destroy(5) = false, want true")
	}
	if _, ok := tbl.GetBuffer(5); ok {
		t.Fatal("GetBuffer after Destroy must miss")
	}
	if !*released {
		t.Fatal("native handle must be released when last ref drops")
	}
}

func TestResourceTableOpenAliasesSharedNativeObject(t *testing.T) {
	tbl := NewResourceTable()
	native, released := newFakeHandle()
	buf := &Buffer{Native: native.(fakeHandle), Size: 1024}
	if err := tbl.InsertBuffer(10, buf); err != nil {
		t.Fatalf("InsertBuffer: %v", err)
	}
	if err := tbl.Open(11, 10); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, ok := tbl.GetBuffer(10); !ok {
		t.Fatal("GetBuffer(10) must still resolve after aliasing")
	}
	if _, ok := tbl.GetBuffer(11); !ok {
		t.Fatal("GetBuffer(11) must resolve the alias")
	}

	tbl.Destroy(10)
	if *released {
		t.Fatal("native handle must not be released while alias 11 is still live")
	}
	if _, ok := tbl.GetBuffer(11); !ok {
		t.Fatal("alias 11 must remain usable after its source is destroyed")
	}

	tbl.Destroy(11)
	if !*released {
		t.Fatal("native handle must be released once all aliases are destroyed")
	}
}

func TestResourceTableClearAllDropsEverything(t *testing.T) {
	tbl := NewResourceTable()
	native, _ := newFakeHandle()
	buf := &Buffer{Native: native.(fakeHandle), Size: 1024}
	if err := tbl.InsertBuffer(1, buf); err != nil {
		t.Fatalf("InsertBuffer: %v", err)
	}
	tbl.ClearAll()
	if _, ok := tbl.GetBuffer(1); ok {
		t.Fatal("GetBuffer after ClearAll must miss")
	}
}

func TestResourceTableRenderTargetViewAttachesToTexture(t *testing.T) {
	tbl := NewResourceTable()
	texNative, _ := newFakeHandle()
	tex := &Texture2D{Native: texNative.(fakeHandle), Width: 64, Height: 64}
	if err := tbl.InsertTexture2D(1, tex); err != nil {
		t.Fatalf("InsertTexture2D: %v", err)
	}

	rtvNative, _ := newFakeHandle()
	rtv := &RenderTargetView{Native: rtvNative.(fakeHandle), TextureID: 1}
	if err := tbl.InsertRenderTargetView(2, rtv); err != nil {
		t.Fatalf("InsertRenderTargetView: %v", err)
	}

	got, _ := tbl.GetTexture2D(1)
	if got.RTV == nil {
		t.Fatal("creating an RTV targeting texture 1 must attach it to the texture")
	}
}
