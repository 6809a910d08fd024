package server

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// FrameHandler consumes the frames read from a connection and is told when
// that connection goes away. relay.Router and relay.Signaler implement it.
type FrameHandler interface {
	HandleFrame(c relay.Conn, raw []byte)
	Disconnect(c relay.Conn)
}

// ErrSendBufferFull is returned by Client.Send when the peer is not draining
// its queue; the client is closed as a result.
var ErrSendBufferFull = errors.New("send buffer full")

// ErrShuttingDown is returned by Hub.Register once shutdown has begun.
var ErrShuttingDown = errors.New("hub is shutting down")

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
