package framing

import "testing"

func TestDecodeHandshakeValidatesNotebookSyncRequiresID(t *testing.T) {
	payload, err := EncodeHandshake(Handshake{Kind: ChannelNotebookSync})
	if err != nil {
		t.Fatalf("EncodeHandshake: %v", err)
	}
	if _, err := DecodeHandshake(payload); err == nil {
		t.Fatal("expected error for notebook_sync handshake missing notebook_id")
	}
}

func TestDecodeHandshakeAcceptsKnownKinds(t *testing.T) {
	for _, h := range []Handshake{
		{Kind: ChannelPool},
		{Kind: ChannelSettingsSync},
		{Kind: ChannelBlob},
		{Kind: ChannelPoolStateSubscribe},
		{Kind: ChannelNotebookSync, NotebookID: "nb-1"},
	} {
		payload, err := EncodeHandshake(h)
		if err != nil {
			t.Fatalf("EncodeHandshake(%v): %v", h, err)
		}
		got, err := DecodeHandshake(payload)
		if err != nil {
			t.Fatalf("DecodeHandshake(%v): %v", h, err)
		}
		if got != h {
			t.Fatalf("got %+v, want %+v", got, h)
		}
	}
}

func TestDecodeHandshakeRejectsUnknownKind(t *testing.T) {
	payload, err := EncodeHandshake(Handshake{Kind: "bogus"})
	if err != nil {
		t.Fatalf("EncodeHandshake: %v", err)
	}
	if _, err := DecodeHandshake(payload); err == nil {
		t.Fatal("expected error for unknown handshake kind")
	}
}

func TestDecodeCapabilitiesRecognizesV2(t *testing.T) {
	payload, err := EncodeCapabilities()
	if err != nil {
		t.Fatalf("EncodeCapabilities: %v", err)
	}
	caps, ok := DecodeCapabilities(payload)
	if !ok {
		t.Fatal("expected ok=true for a genuine v2 capabilities frame")
	}
	if caps.Protocol != ProtocolV2 {
		t.Fatalf("got protocol %q", caps.Protocol)
	}
}

func TestDecodeCapabilitiesRejectsLegacyPayload(t *testing.T) {
	_, ok := DecodeCapabilities([]byte(`{"status":"ok"}`))
	if ok {
		t.Fatal("expected ok=false for a payload with no matching protocol field")
	}
}

func TestDecodeCapabilitiesRejectsMalformedJSON(t *testing.T) {
	_, ok := DecodeCapabilities([]byte(`not json`))
	if ok {
		t.Fatal("expected ok=false for malformed JSON")
	}
}
