package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeConn) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

// events decodes every chat frame sent to the connection.
func (f *fakeConn) events(t *testing.T) []Frame {
	t.Helper()
	var out []Frame
	for _, raw := range f.sent() {
		frame, err := DecodeFrame(raw)
		require.NoError(t, err)
		out = append(out, frame)
	}
	return out
}

func (f *fakeConn) eventsNamed(t *testing.T, name string) []Frame {
	t.Helper()
	var out []Frame
	for _, e := range f.events(t) {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func decodeData[T any](t *testing.T, frame Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(frame.Data, &v))
	return v
}
