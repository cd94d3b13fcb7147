package main

import (
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func dialTestChannel(t *testing.T, sockPath string) (*ControlChannel, net.Conn) {
	t.Helper()
	errc := make(chan error, 1)
	chc := make(chan *ControlChannel, 1)
	go func() {
		cc, err := ListenControlChannel(sockPath, nil)
		errc <- err
		chc <- cc
	}()
	// Give the listener a moment to bind before dialing.
	time.Sleep(20 * time.Millisecond)
	guestConn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("guest dial: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("ListenControlChannel: %v", err)
	}
	return <-chc, guestConn
}

func writeHandshake(t *testing.T, conn net.Conn, shmemSize uint64, name string) {
	t.Helper()
	payload := make([]byte, 8+len(name)+1)
	binary.LittleEndian.PutUint64(payload[0:8], shmemSize)
	copy(payload[8:], name)
	var hdr [ControlMessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], MsgHandshake)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := conn.Write(hdr[:]); err != nil {
		t.Fatalf("write handshake header: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write handshake payload: %v", err)
	}
}

func TestControlChannelHandshakeRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer cc.Close()
	defer guestConn.Close()

	writeHandshake(t, guestConn, 256<<20, "pvgpu_shm_0")

	info, err := cc.ReadHandshake()
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if info.ShmemSize != 256<<20 || info.ShmemName != "pvgpu_shm_0" {
		t.Fatalf("got %+v, want {268435456 pvgpu_shm_0}", info)
	}

	if err := cc.SendHandshakeAck(FeaturesMVP); err != nil {
		t.Fatalf("SendHandshakeAck: %v", err)
	}
	msgType, size, err := readMessageHeader(guestConn)
	if err != nil {
		t.Fatalf("guest read ack header: %v", err)
	}
	if msgType != MsgHandshakeAck || size != 8 {
		t.Fatalf("got type=%d size=%d, want type=%d size=8", msgType, size, MsgHandshakeAck)
	}
}

func TestControlChannelDoorbellWakesReader(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer cc.Close()
	defer guestConn.Close()

	writeHandshake(t, guestConn, 1<<20, "x")
	if _, err := cc.ReadHandshake(); err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}

	go cc.RunReader()

	var hdr [ControlMessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], MsgDoorbell)
	if _, err := guestConn.Write(hdr[:]); err != nil {
		t.Fatalf("write doorbell: %v", err)
	}

	select {
	case <-cc.Doorbell():
	case <-time.After(2 * time.Second):
		t.Fatal("doorbell channel never signaled")
	}
}

func TestControlChannelShutdownMessageSetsFlag(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer cc.Close()
	defer guestConn.Close()

	writeHandshake(t, guestConn, 1<<20, "x")
	if _, err := cc.ReadHandshake(); err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}

	done := make(chan struct{})
	go func() {
		cc.RunReader()
		close(done)
	}()

	var hdr [ControlMessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], MsgShutdown)
	if _, err := guestConn.Write(hdr[:]); err != nil {
		t.Fatalf("write shutdown: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunReader did not return after SHUTDOWN")
	}
	if !cc.ShuttingDown() {
		t.Fatal("ShuttingDown() = false after SHUTDOWN message")
	}
}

func TestControlChannelRepeatedHandshakeIgnored(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "pvgpu.sock")
	cc, guestConn := dialTestChannel(t, sockPath)
	defer cc.Close()
	defer guestConn.Close()

	writeHandshake(t, guestConn, 1<<20, "x")
	if _, err := cc.ReadHandshake(); err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}

	go cc.RunReader()

	writeHandshake(t, guestConn, 1<<20, "x")
	// A second HANDSHAKE must not close the channel or set shutdown; the
	// doorbell immediately after proves the reader is still alive.
	var hdr [ControlMessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], MsgDoorbell)
	if _, err := guestConn.Write(hdr[:]); err != nil {
		t.Fatalf("write doorbell: %v", err)
	}

	select {
	case <-cc.Doorbell():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not survive repeated HANDSHAKE")
	}
	if cc.ShuttingDown() {
		t.Fatal("repeated HANDSHAKE must not trigger shutdown")
	}
}
