package relay

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/gorelay/internal/errs"
	"github.com/Tyrowin/gorelay/internal/identity"
)

func newTestSignaler(t *testing.T) (*Signaler, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewSignaler(WithLogger(zaptest.NewLogger(t)), WithMetrics(metrics)), metrics
}

func signal(s *Signaler, c Conn, raw string) {
	s.HandleFrame(c, []byte(raw))
}

func TestSignalForwardStampsSender(t *testing.T) {
	s, _ := newTestSignaler(t)
	a, b := newFakeConn("ca"), newFakeConn("cb")

	signal(s, a, `{"type":"REGISTER","id":"a"}`)
	signal(s, b, `{"type":"REGISTER","id":"b"}`)
	signal(s, a, `{"target":"b","type":"OFFER","payload":{"sdp":"v=0"}}`)

	frames := b.sent()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"OFFER","sender":"a","payload":{"sdp":"v=0"}}`, string(frames[0]))
	assert.Empty(t, a.sent())
}

func TestSignalToUnregisteredTargetIsDropped(t *testing.T) {
	s, metrics := newTestSignaler(t)
	a := newFakeConn("ca")

	signal(s, a, `{"type":"REGISTER","id":"a"}`)
	signal(s, a, `{"target":"b","type":"OFFER","payload":1}`)

	assert.Empty(t, a.sent())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.signals.WithLabelValues("no_target")))
}

func TestSignalFromUnregisteredSenderHasNullSender(t *testing.T) {
	s, _ := newTestSignaler(t)
	anon, b := newFakeConn("anon"), newFakeConn("cb")
	require.NoError(t, s.Register(b, "b"))

	assert.True(t, s.Forward(anon, "b", "ICE", json.RawMessage(`{"candidate":"x"}`)))

	frames := b.sent()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"ICE","sender":null,"payload":{"candidate":"x"}}`, string(frames[0]))
}

func TestSignalToClosedTargetFailsSoftly(t *testing.T) {
	s, _ := newTestSignaler(t)
	a, b := newFakeConn("ca"), newFakeConn("cb")
	require.NoError(t, s.Register(a, "a"))
	require.NoError(t, s.Register(b, "b"))
	b.close()

	assert.False(t, s.Forward(a, "b", "OFFER", nil))
	assert.Empty(t, a.sent())
}

func TestSignalReRegisterOverwrites(t *testing.T) {
	s, _ := newTestSignaler(t)
	old, fresh, peer := newFakeConn("c1"), newFakeConn("c2"), newFakeConn("p")
	require.NoError(t, s.Register(old, "a"))
	require.NoError(t, s.Register(fresh, "a"))
	require.NoError(t, s.Register(peer, "p"))

	assert.True(t, s.Forward(peer, "a", "OFFER", nil))
	assert.Len(t, fresh.sent(), 1)
	assert.Empty(t, old.sent(), "overwrite is silent for signaling")

	// the stale connection closing must not remove the new binding
	s.Disconnect(old)
	assert.True(t, s.Presence().IsOnline("a"))
}

func TestSignalRegisterRequiresID(t *testing.T) {
	s, _ := newTestSignaler(t)
	c := newFakeConn("c1")

	err := s.Register(c, "")
	assert.True(t, errors.Is(err, errs.ErrMissingField))

	signal(s, c, `{"type":"REGISTER"}`)
	assert.Equal(t, 0, s.Presence().Len())
}

func TestSignalDisconnectReleases(t *testing.T) {
	s, _ := newTestSignaler(t)
	c := newFakeConn("c1")
	require.NoError(t, s.Register(c, "a"))

	s.Disconnect(c)
	s.Disconnect(c)
	assert.False(t, s.Presence().IsOnline("a"))
}

func TestSignalDropsMalformedFrames(t *testing.T) {
	s, metrics := newTestSignaler(t)
	c := newFakeConn("c1")
	require.NoError(t, s.Register(c, "a"))

	signal(s, c, `{{{`)
	signal(s, c, `{"type":"OFFER"}`)

	assert.Empty(t, c.sent())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.signals.WithLabelValues("malformed")))
}

func TestChatAndSignalMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	NewSignaler(WithMetrics(metrics))
	_, err := NewRouter(identity.NewStore(), testAdminSecret, WithMetrics(metrics))
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "relay_identities_online")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
