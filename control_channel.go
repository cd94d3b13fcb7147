// control_channel.go - control channel: handshake, doorbell, IRQ, shutdown

// License: GPLv3 or later

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// ControlChannel is the bidirectional message pipe used for handshake,
// doorbell receipt, IRQ-request send, and shutdown signalling (spec
// section 4.3). The concrete transport is a Unix-domain socket, the
// idiomatic Go equivalent of a named pipe and the same mechanism the
// teacher's runtime_ipc.go already uses for single-instance coordination.
type ControlChannel struct {
	conn net.Conn

	doorbell chan struct{}
	shutdown atomic.Bool
	handshakeDone atomic.Bool

	log *slog.Logger
}

// HandshakeInfo carries the guest's HANDSHAKE payload.
type HandshakeInfo struct {
	ShmemSize uint64
	ShmemName string
}

// ListenControlChannel binds a Unix-domain socket at pipePath, removing a
// stale socket left behind by a crashed previous instance, and blocks until
// one guest connects.
func ListenControlChannel(pipePath string, log *slog.Logger) (*ControlChannel, error) {
	ln, err := net.Listen("unix", pipePath)
	if err != nil {
		conn, dialErr := net.DialTimeout("unix", pipePath, 2*time.Second)
		if dialErr != nil {
			os.Remove(pipePath)
			ln, err = net.Listen("unix", pipePath)
			if err != nil {
				return nil, fmt.Errorf("control channel bind failed: %w", err)
			}
		} else {
			conn.Close()
			return nil, fmt.Errorf("control channel %q already has a listener", pipePath)
		}
	}
	defer ln.Close()
	defer os.Remove(pipePath)

	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("control channel accept: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &ControlChannel{conn: conn, doorbell: make(chan struct{}, 1), log: log}, nil
}

// readMessageHeader reads the 8-byte {type, payload_size} header.
func readMessageHeader(r io.Reader) (msgType, payloadSize uint32, err error) {
	var hdr [ControlMessageHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(hdr[0:4]), binary.LittleEndian.Uint32(hdr[4:8]), nil
}

func writeMessage(w io.Writer, msgType uint32, payload []byte) error {
	var hdr [ControlMessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], msgType)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadHandshake blocks for the first message and requires it to be
// HANDSHAKE, per spec section 4.3 ("HANDSHAKE is accepted exactly once per
// session and before any DOORBELL").
func (cc *ControlChannel) ReadHandshake() (HandshakeInfo, error) {
	msgType, size, err := readMessageHeader(cc.conn)
	if err != nil {
		return HandshakeInfo{}, fmt.Errorf("read handshake header: %w", err)
	}
	if msgType != MsgHandshake {
		return HandshakeInfo{}, fmt.Errorf("expected HANDSHAKE (type %d), got type %d", MsgHandshake, msgType)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(cc.conn, payload); err != nil {
		return HandshakeInfo{}, fmt.Errorf("read handshake payload: %w", err)
	}
	if len(payload) < 8 {
		return HandshakeInfo{}, fmt.Errorf("handshake payload too short: %d bytes", len(payload))
	}
	shmemSize := binary.LittleEndian.Uint64(payload[0:8])
	name := decodeNullTerminated(payload[8:])
	cc.handshakeDone.Store(true)
	return HandshakeInfo{ShmemSize: shmemSize, ShmemName: name}, nil
}

func decodeNullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SendHandshakeAck replies with the accepted feature mask.
func (cc *ControlChannel) SendHandshakeAck(accepted uint64) error {
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], accepted)
	return writeMessage(cc.conn, MsgHandshakeAck, payload[:])
}

// SendIRQ sends an IRQ-request with the given vector.
func (cc *ControlChannel) SendIRQ(vector uint32) error {
	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], vector)
	return writeMessage(cc.conn, MsgIRQ, payload[:])
}

// SendShutdown notifies the guest the host is terminating the session.
func (cc *ControlChannel) SendShutdown() error {
	return writeMessage(cc.conn, MsgShutdown, nil)
}

// Doorbell returns the channel that receives a value each time the guest
// rings the doorbell. It is buffered and coalescing: multiple doorbells
// that arrive before the service loop drains one still wake it exactly
// once, matching "ignored if the ring is empty" semantics upstream in the
// service loop rather than here.
func (cc *ControlChannel) Doorbell() <-chan struct{} { return cc.doorbell }

// ShuttingDown reports whether a SHUTDOWN message (or a read failure) has
// been observed.
func (cc *ControlChannel) ShuttingDown() bool { return cc.shutdown.Load() }

// RunReader runs the dedicated reader context for the lifetime of the
// channel (spec section 5: "Control-channel reader ... never touches
// native GPU state"). It returns when the connection closes or a SHUTDOWN
// message is received.
func (cc *ControlChannel) RunReader() {
	for {
		msgType, size, err := readMessageHeader(cc.conn)
		if err != nil {
			cc.log.Warn("control channel read failed, treating as shutdown", "error", err)
			cc.shutdown.Store(true)
			cc.wakeDoorbell()
			return
		}
		payload := make([]byte, size)
		if size > 0 {
			if _, err := io.ReadFull(cc.conn, payload); err != nil {
				cc.log.Warn("control channel payload read failed, treating as shutdown", "error", err)
				cc.shutdown.Store(true)
				cc.wakeDoorbell()
				return
			}
		}

		switch msgType {
		case MsgHandshake:
			// A second HANDSHAKE mid-session is a protocol violation; log
			// and ignore rather than error (spec section 4.3).
			cc.log.Warn("received HANDSHAKE after session start, ignoring")
		case MsgDoorbell:
			cc.wakeDoorbell()
		case MsgShutdown:
			cc.shutdown.Store(true)
			cc.wakeDoorbell()
			return
		default:
			cc.log.Warn("unknown control channel message type, ignoring", "type", msgType)
		}
	}
}

func (cc *ControlChannel) wakeDoorbell() {
	select {
	case cc.doorbell <- struct{}{}:
	default:
	}
}

// Close closes the underlying connection.
func (cc *ControlChannel) Close() error { return cc.conn.Close() }
