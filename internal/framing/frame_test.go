package framing

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello frame")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != "hello frame" {
		t.Fatalf("got %q", got)
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, MaxControlFrameSize+1)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&buf, 0); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameHonorsCustomMaxSize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("0123456789")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&buf, 4); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge with small maxSize, got %v", err)
	}
}

func TestWriteReadTypedRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTyped(&buf, TypeBroadcast, []byte("payload")); err != nil {
		t.Fatalf("WriteTyped: %v", err)
	}
	frame, err := ReadTyped(&buf, 0)
	if err != nil {
		t.Fatalf("ReadTyped: %v", err)
	}
	if frame.Type != TypeBroadcast {
		t.Fatalf("got type %v, want %v", frame.Type, TypeBroadcast)
	}
	if string(frame.Payload) != "payload" {
		t.Fatalf("got payload %q", frame.Payload)
	}
}

func TestReadTypedRejectsMissingTag(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadTyped(&buf, 0); err == nil {
		t.Fatal("expected error for zero-length typed frame")
	}
}

func TestReadTypedHonorsCustomMaxSize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTyped(&buf, TypeBroadcast, make([]byte, 20)); err != nil {
		t.Fatalf("WriteTyped: %v", err)
	}
	if _, err := ReadTyped(&buf, 8); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge with small maxSize, got %v", err)
	}
}

func TestReadFrameAllowsOverControlCapUnderDataCap(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, MaxControlFrameSize+1)
	if err := WriteFrame(&buf, big); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, MaxDataFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame with MaxDataFrameSize: %v", err)
	}
	if len(got) != len(big) {
		t.Fatalf("got %d bytes, want %d", len(got), len(big))
	}
}

func TestReadTypedAllowsOverControlCapUnderDataCap(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, MaxControlFrameSize+1)
	if err := WriteTyped(&buf, TypeAutomergeSync, big); err != nil {
		t.Fatalf("WriteTyped: %v", err)
	}
	frame, err := ReadTyped(&buf, MaxDataFrameSize)
	if err != nil {
		t.Fatalf("ReadTyped with MaxDataFrameSize: %v", err)
	}
	if len(frame.Payload) != len(big) {
		t.Fatalf("got %d bytes, want %d", len(frame.Payload), len(big))
	}
}

func TestTypeStringUnknownFallsBackToNumeric(t *testing.T) {
	if got := Type(99).String(); got != "type(99)" {
		t.Fatalf("got %q", got)
	}
}
