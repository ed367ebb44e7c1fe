package framing

import (
	"encoding/json"
	"fmt"
)

// Channel names a connection's purpose, exactly as declared in the
// handshake frame's "kind" field.
type Channel string

const (
	ChannelPool               Channel = "pool"
	ChannelSettingsSync       Channel = "settings_sync"
	ChannelNotebookSync       Channel = "notebook_sync"
	ChannelBlob               Channel = "blob"
	ChannelPoolStateSubscribe Channel = "pool_state_subscribe"
)

// ProtocolV2 is the only named protocol version a client may request
// on the notebook-sync channel. Anything else (including the field's
// absence) selects the legacy raw-frame protocol.
const ProtocolV2 = "v2"

// Handshake is the first frame (v1-framed JSON) on every connection.
type Handshake struct {
	Kind       Channel `json:"kind"`
	NotebookID string  `json:"notebook_id,omitempty"`
	Protocol   string  `json:"protocol,omitempty"`
}

func (h Handshake) Validate() error {
	switch h.Kind {
	case ChannelPool, ChannelSettingsSync, ChannelBlob, ChannelPoolStateSubscribe:
		return nil
	case ChannelNotebookSync:
		if h.NotebookID == "" {
			return fmt.Errorf("framing: notebook_sync handshake missing notebook_id")
		}
		return nil
	default:
		return fmt.Errorf("framing: unknown handshake kind %q", h.Kind)
	}
}

// EncodeHandshake marshals a handshake to its wire payload (not yet framed).
func EncodeHandshake(h Handshake) ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("framing: encode handshake: %w", err)
	}
	return b, nil
}

// DecodeHandshake unmarshals and validates a handshake payload.
func DecodeHandshake(payload []byte) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal(payload, &h); err != nil {
		return h, fmt.Errorf("framing: decode handshake: %w", err)
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// ProtocolCapabilities is the server's first outbound frame on a
// notebook-sync connection that requested protocol "v2". Any other
// connection never sends this, which is how a v1 client recognizes
// (by failing to parse it) that the server is speaking the legacy
// raw-frame protocol.
type ProtocolCapabilities struct {
	Protocol string `json:"protocol"`
}

// EncodeCapabilities marshals the v2 capabilities announcement.
func EncodeCapabilities() ([]byte, error) {
	b, err := json.Marshal(ProtocolCapabilities{Protocol: ProtocolV2})
	if err != nil {
		return nil, fmt.Errorf("framing: encode capabilities: %w", err)
	}
	return b, nil
}

// DecodeCapabilities attempts to parse a frame as a v2 capabilities
// announcement. ok is false if the frame does not look like one
// (malformed JSON, or a protocol field other than "v2") — the caller
// should then treat the frame as the legacy raw payload it actually is.
func DecodeCapabilities(payload []byte) (caps ProtocolCapabilities, ok bool) {
	if err := json.Unmarshal(payload, &caps); err != nil {
		return ProtocolCapabilities{}, false
	}
	return caps, caps.Protocol == ProtocolV2
}
