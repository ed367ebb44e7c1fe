package jupytermsg

import (
	"encoding/json"
	"testing"
)

func decodeEnvelope(t *testing.T, msgType string, content string) Message {
	t.Helper()
	env := Envelope{
		Header:  Header{MsgType: msgType},
		Content: json.RawMessage(content),
	}
	msg, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode(%s): %v", msgType, err)
	}
	return msg
}

func TestDecodeKnownTypes(t *testing.T) {
	cases := []struct {
		msgType string
		content string
		check   func(t *testing.T, c Content)
	}{
		{"status", `{"execution_state":"busy"}`, func(t *testing.T, c Content) {
			s, ok := c.(Status)
			if !ok || s.ExecutionState != "busy" {
				t.Fatalf("got %#v", c)
			}
		}},
		{"stream", `{"name":"stdout","text":"hi"}`, func(t *testing.T, c Content) {
			s, ok := c.(StreamContent)
			if !ok || s.Name != "stdout" || s.Text != "hi" {
				t.Fatalf("got %#v", c)
			}
		}},
		{"execute_reply", `{"status":"ok","execution_count":3}`, func(t *testing.T, c Content) {
			r, ok := c.(ExecuteReply)
			if !ok || r.Status != "ok" || r.ExecutionCount != 3 {
				t.Fatalf("got %#v", c)
			}
		}},
		{"error", `{"ename":"ValueError","evalue":"bad","traceback":["line1"]}`, func(t *testing.T, c Content) {
			e, ok := c.(ErrorOutput)
			if !ok || e.Ename != "ValueError" || len(e.Traceback) != 1 {
				t.Fatalf("got %#v", c)
			}
		}},
		{"shutdown_reply", `{"status":"ok","restart":true}`, func(t *testing.T, c Content) {
			r, ok := c.(ShutdownReply)
			if !ok || !r.Restart {
				t.Fatalf("got %#v", c)
			}
		}},
	}
	for _, tc := range cases {
		msg := decodeEnvelope(t, tc.msgType, tc.content)
		tc.check(t, msg.Content)
	}
}

func TestDecodeUnknownTypeFallsBackWithoutError(t *testing.T) {
	msg := decodeEnvelope(t, "some_future_msg_type", `{"whatever":1}`)
	u, ok := msg.Content.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %#v", msg.Content)
	}
	if u.MsgType != "some_future_msg_type" {
		t.Fatalf("got msg type %q", u.MsgType)
	}
	if string(u.Raw) != `{"whatever":1}` {
		t.Fatalf("got raw %q", u.Raw)
	}
}

func TestDecodeMalformedContentIsAnError(t *testing.T) {
	env := Envelope{
		Header:  Header{MsgType: "status"},
		Content: json.RawMessage(`not json`),
	}
	if _, err := Decode(env); err == nil {
		t.Fatal("expected error for malformed content on a known msg_type")
	}
}

func TestDecodePreservesHeaderAndBuffers(t *testing.T) {
	env := Envelope{
		Header:       Header{MsgID: "abc", MsgType: "status", Session: "sess1"},
		ParentHeader: Header{MsgID: "parent1"},
		Content:      json.RawMessage(`{"execution_state":"idle"}`),
		Buffers:      [][]byte{[]byte("binary")},
	}
	msg, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Header.MsgID != "abc" || msg.Header.Session != "sess1" {
		t.Fatalf("got header %+v", msg.Header)
	}
	if msg.ParentHeader.MsgID != "parent1" {
		t.Fatalf("got parent header %+v", msg.ParentHeader)
	}
	if len(msg.Buffers) != 1 || string(msg.Buffers[0]) != "binary" {
		t.Fatalf("got buffers %v", msg.Buffers)
	}
}
