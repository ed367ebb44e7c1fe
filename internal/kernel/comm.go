package kernel

import "encoding/json"

// ClientEnvelope is a client-origin Jupyter message envelope, as
// received over the sync connection for comm relay (spec.md §4.G
// send_comm_message).
type ClientEnvelope struct {
	Header       wireHeader                 `json:"header"`
	ParentHeader wireHeader                 `json:"parent_header"`
	Metadata     map[string]any             `json:"metadata"`
	Content      json.RawMessage            `json:"content"`
	Buffers      [][]byte                   `json:"buffers,omitempty"`
	MsgType      string                     `json:"msg_type"` // declared type, copied into an empty header msg_type; content is not converted
}

// SendCommMessage implements spec.md §4.G's comm relay to the kernel:
// the client-origin envelope is forwarded on the shell channel with
// the client's header, except that Session and Username are replaced
// by the daemon's (so the kernel's reply correlates with our session)
// and an empty msg_type is filled from MsgType. Parent header,
// metadata, buffers and content are forwarded as is; content stays raw
// JSON and is not decoded into a typed form.
func (k *RoomKernel) SendCommMessage(env ClientEnvelope) error {
	header := env.Header
	if header.MsgType == "" {
		header.MsgType = env.MsgType
	}
	header.Session = k.sessionID
	header.Username = "notebookd"

	return k.sockets.shell.send(nil, wireEnvelope{
		Header:       header,
		ParentHeader: env.ParentHeader,
		Metadata:     env.Metadata,
		Content:      env.Content,
		Buffers:      env.Buffers,
	})
}
