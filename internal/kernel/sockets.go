package kernel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// wireHeader is the on-wire Jupyter message header (spec.md §4.A/§9).
type wireHeader struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
	Date     string `json:"date"`
}

// wireEnvelope is the fully decoded five-part Jupyter message used
// internally between the socket layer and the iopub/shell readers.
type wireEnvelope struct {
	Header       wireHeader
	ParentHeader wireHeader
	Metadata     map[string]any
	Content      json.RawMessage
	Buffers      [][]byte
}

const delimiter = "<IDS|MSG>"

// clientSocket wraps a ZMQ socket used to talk *to* a kernel process
// (the daemon plays the Jupyter-client role, the opposite of the
// gonb project's own Kernel type, which binds these same socket kinds
// from the kernel side).
type clientSocket struct {
	sock zmq4.Socket
	key  []byte
	mu   sync.Mutex
}

func dial(ctx context.Context, newSocket func(context.Context, ...zmq4.Option) zmq4.Socket, addr string, key []byte) (*clientSocket, error) {
	sock := newSocket(ctx)
	if err := sock.Dial(addr); err != nil {
		return nil, fmt.Errorf("kernel: dial %s: %w", addr, err)
	}
	return &clientSocket{sock: sock, key: key}, nil
}

func (c *clientSocket) Close() error {
	return c.sock.Close()
}

// send signs and frames env as a multipart Jupyter wire message and
// sends it, optionally prefixed with routing identities (used on
// Dealer/Router sockets).
func (c *clientSocket) send(identities [][]byte, env wireEnvelope) error {
	header, err := json.Marshal(env.Header)
	if err != nil {
		return err
	}
	parentHeader, err := json.Marshal(env.ParentHeader)
	if err != nil {
		return err
	}
	if env.Metadata == nil {
		env.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return err
	}
	content := env.Content
	if content == nil {
		content = json.RawMessage("{}")
	}

	parts := [][]byte{header, parentHeader, metadata, content}
	signature := c.sign(parts)

	frames := make([][]byte, 0, len(identities)+2+len(parts)+len(env.Buffers))
	frames = append(frames, identities...)
	frames = append(frames, []byte(delimiter), signature)
	frames = append(frames, parts...)
	frames = append(frames, env.Buffers...)

	msg := zmq4.NewMsgFrom(frames...)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.Send(msg)
}

func (c *clientSocket) sign(parts [][]byte) []byte {
	if len(c.key) == 0 {
		return nil
	}
	mac := hmac.New(sha256.New, c.key)
	for _, p := range parts {
		mac.Write(p)
	}
	sig := make([]byte, hex.EncodedLen(mac.Size()))
	hex.Encode(sig, mac.Sum(nil))
	return sig
}

// recv blocks for the next multipart message and parses/verifies it.
func (c *clientSocket) recv() (wireEnvelope, [][]byte, error) {
	msg, err := c.sock.Recv()
	if err != nil {
		return wireEnvelope{}, nil, err
	}
	return c.parse(msg.Frames)
}

func (c *clientSocket) parse(frames [][]byte) (wireEnvelope, [][]byte, error) {
	i := 0
	for i < len(frames) && string(frames[i]) != delimiter {
		i++
	}
	if i+5 >= len(frames) {
		return wireEnvelope{}, nil, fmt.Errorf("kernel: malformed wire message: no delimiter with enough parts")
	}
	identities := frames[:i]
	signature := frames[i+1]
	parts := frames[i+2 : i+6]
	buffers := frames[i+6:]

	if len(c.key) != 0 {
		mac := hmac.New(sha256.New, c.key)
		for _, p := range parts {
			mac.Write(p)
		}
		want := make([]byte, hex.EncodedLen(mac.Size()))
		hex.Encode(want, mac.Sum(nil))
		if !hmac.Equal(want, signature) {
			return wireEnvelope{}, nil, fmt.Errorf("kernel: invalid message signature")
		}
	}

	var env wireEnvelope
	if err := json.Unmarshal(parts[0], &env.Header); err != nil {
		return wireEnvelope{}, nil, fmt.Errorf("kernel: decode header: %w", err)
	}
	// A blank parent header object is valid and common; ignore decode
	// errors there rather than failing the whole message.
	_ = json.Unmarshal(parts[1], &env.ParentHeader)
	_ = json.Unmarshal(parts[2], &env.Metadata)
	env.Content = append(json.RawMessage(nil), parts[3]...)
	env.Buffers = buffers
	return env, identities, nil
}

// socketGroup bundles the client-side sockets opened against one
// running kernel subprocess (spec.md §4.G step 7).
type socketGroup struct {
	shell   *clientSocket
	iopub   *clientSocket
	control *clientSocket
	key     []byte
}

func openSockets(ctx context.Context, info ConnectionInfo) (*socketGroup, error) {
	key := []byte(info.Key)
	addr := func(port int) string { return fmt.Sprintf("%s://%s:%d", info.Transport, info.IP, port) }

	shell, err := dial(ctx, zmq4.NewDealer, addr(info.ShellPort), key)
	if err != nil {
		return nil, err
	}
	iopub, err := dial(ctx, zmq4.NewSub, addr(info.IOPubPort), key)
	if err != nil {
		shell.Close()
		return nil, err
	}
	if err := iopub.sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		shell.Close()
		iopub.Close()
		return nil, fmt.Errorf("kernel: subscribe iopub: %w", err)
	}
	control, err := dial(ctx, zmq4.NewDealer, addr(info.ControlPort), key)
	if err != nil {
		shell.Close()
		iopub.Close()
		return nil, err
	}
	return &socketGroup{shell: shell, iopub: iopub, control: control, key: key}, nil
}

func (g *socketGroup) Close() {
	g.shell.Close()
	g.iopub.Close()
	g.control.Close()
}
