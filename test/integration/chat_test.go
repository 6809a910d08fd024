// Package integration contains end-to-end tests for the relay.
//
// Each test starts a fully wired server behind httptest and drives it over
// real WebSocket connections, so transport, session cleanup and routing are
// exercised together.
package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gorelay/internal/relay"
	"github.com/Tyrowin/gorelay/test/testhelpers"
)

func TestChatMessageExchange(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)

	alice := r.Dial(t, "/ws")
	bob := r.Dial(t, "/ws")

	testhelpers.Register(t, alice, "alice", "pw-a")
	testhelpers.Register(t, bob, "bob", "pw-b")
	testhelpers.Login(t, alice, "alice", "pw-a")
	testhelpers.Login(t, bob, "bob", "pw-b")

	testhelpers.Emit(t, alice, relay.EventSendMessage, map[string]any{
		"toUsername": "bob",
		"content":    map[string]string{"ciphertext": "AAEC"},
		"meta":       map[string]int{"v": 1},
	})

	received := testhelpers.Expect(t, bob, relay.EventMessage)
	assert.Equal(t, "alice", received["from"])
	assert.Equal(t, "bob", received["to"])
	assert.Equal(t, map[string]any{"ciphertext": "AAEC"}, received["content"])
	assert.Equal(t, map[string]any{"v": float64(1)}, received["meta"])
	assert.NotZero(t, received["timestamp"])

	echo := testhelpers.Expect(t, alice, relay.EventMessage)
	assert.Equal(t, received, echo)
}

func TestChatRegisterFailures(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	conn := r.Dial(t, "/ws")

	testhelpers.Register(t, conn, "alice", "pw")

	t.Run("duplicate name", func(t *testing.T) {
		testhelpers.Emit(t, conn, relay.EventRegister, map[string]string{"username": "alice", "password": "other"})
		res := testhelpers.Expect(t, conn, relay.EventRegisterResult)
		assert.Equal(t, false, res["ok"])
		assert.Equal(t, "Username taken.", res["error"])
		assert.Equal(t, "DUPLICATE_NAME", res["code"])
	})

	t.Run("missing fields", func(t *testing.T) {
		testhelpers.Emit(t, conn, relay.EventRegister, map[string]string{"username": "carol"})
		res := testhelpers.Expect(t, conn, relay.EventRegisterResult)
		assert.Equal(t, false, res["ok"])
		assert.Equal(t, "Missing fields.", res["error"])
	})

	t.Run("wrong password", func(t *testing.T) {
		testhelpers.Emit(t, conn, relay.EventLogin, map[string]string{"username": "alice", "password": "nope"})
		res := testhelpers.Expect(t, conn, relay.EventLoginResult)
		assert.Equal(t, false, res["ok"])
		assert.Equal(t, "Invalid credentials.", res["error"])
	})
}

func TestChatLongPasswordRoundTrip(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	conn := r.Dial(t, "/ws")
	password := strings.Repeat("long-passphrase-", 8)

	testhelpers.Register(t, conn, "alice", password)
	testhelpers.Login(t, conn, "alice", password)
}

func TestChatSendRequiresLogin(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	conn := r.Dial(t, "/ws")

	testhelpers.Emit(t, conn, relay.EventSendMessage, map[string]any{"toUsername": "bob", "content": "hi"})

	frame := testhelpers.ReadFrame(t, conn)
	require.Equal(t, relay.EventMessageError, frame.Event)
	assert.JSONEq(t, `"You are not authenticated."`, string(frame.Data))
}

func TestChatRecipientOffline(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	alice := r.Dial(t, "/ws")

	testhelpers.Register(t, alice, "alice", "pw")
	testhelpers.Register(t, alice, "bob", "pw")
	testhelpers.Login(t, alice, "alice", "pw")

	testhelpers.Emit(t, alice, relay.EventSendMessage, map[string]any{"toUsername": "bob", "content": "hi"})

	frame := testhelpers.ReadFrame(t, alice)
	require.Equal(t, relay.EventMessageError, frame.Event)
	assert.JSONEq(t, `"Recipient offline or not found."`, string(frame.Data))
}

func TestChatFindFriendTracksPresence(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	alice := r.Dial(t, "/ws")
	bob := r.Dial(t, "/ws")

	testhelpers.Register(t, alice, "alice", "pw")
	code := testhelpers.Register(t, bob, "bob", "pw")

	find := func(friendCode string) map[string]any {
		testhelpers.Emit(t, alice, relay.EventFindFriend, map[string]string{"username": "bob", "friendCode": friendCode})
		return testhelpers.Expect(t, alice, relay.EventFindFriendResult)
	}

	res := find(code)
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, false, res["online"])

	testhelpers.Login(t, bob, "bob", "pw")
	res = find(code)
	assert.Equal(t, true, res["online"])

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	res = find(wrong)
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, "Not found.", res["error"])

	require.NoError(t, testhelpers.CloseWebSocket(bob))
	testhelpers.Eventually(t, func() bool {
		return !r.Server.Router().Presence().IsOnline("bob")
	}, "bob should go offline after disconnect")
	res = find(code)
	assert.Equal(t, false, res["online"])
}

func TestChatLoginSupersedesPreviousSession(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	first := r.Dial(t, "/ws")
	second := r.Dial(t, "/ws")
	sender := r.Dial(t, "/ws")

	testhelpers.Register(t, first, "alice", "pw")
	testhelpers.Register(t, sender, "carol", "pw")
	testhelpers.Login(t, first, "alice", "pw")
	testhelpers.Login(t, sender, "carol", "pw")

	testhelpers.Login(t, second, "alice", "pw")
	notice := testhelpers.Expect(t, first, relay.EventSessionSuperseded)
	assert.Equal(t, "alice", notice["username"])

	testhelpers.Emit(t, sender, relay.EventSendMessage, map[string]any{"toUsername": "alice", "content": "latest"})
	got := testhelpers.Expect(t, second, relay.EventMessage)
	assert.Equal(t, "latest", got["content"])
	testhelpers.Expect(t, sender, relay.EventMessage)

	// Closing the displaced session must not evict the new holder.
	require.NoError(t, testhelpers.CloseWebSocket(first))
	testhelpers.Eventually(t, func() bool { return r.Server.Hub().ClientCount() == 2 }, "first session should be gone")
	assert.True(t, r.Server.Router().Presence().IsOnline("alice"))
}

func TestChatObserverMirror(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	alice := r.Dial(t, "/ws")
	bob := r.Dial(t, "/ws")
	admin := r.Dial(t, "/ws")

	testhelpers.Emit(t, admin, relay.EventAdminLogin, map[string]string{"code": "wrong"})
	res := testhelpers.Expect(t, admin, relay.EventAdminLoginResult)
	require.Equal(t, false, res["ok"])
	assert.Equal(t, "Invalid code.", res["error"])

	testhelpers.Emit(t, admin, relay.EventAdminLogin, map[string]string{"code": testhelpers.AdminSecret})
	res = testhelpers.Expect(t, admin, relay.EventAdminLoginResult)
	require.Equal(t, true, res["ok"])

	testhelpers.Register(t, alice, "alice", "pw")
	testhelpers.Register(t, bob, "bob", "pw")
	testhelpers.Login(t, alice, "alice", "pw")
	testhelpers.Login(t, bob, "bob", "pw")

	testhelpers.Emit(t, alice, relay.EventSendMessage, map[string]any{"toUsername": "bob", "content": "secret"})
	testhelpers.Expect(t, bob, relay.EventMessage)
	testhelpers.Expect(t, alice, relay.EventMessage)

	mirrored := testhelpers.Expect(t, admin, relay.EventAdminMessage)
	assert.Equal(t, "alice", mirrored["from"])
	assert.Equal(t, "bob", mirrored["to"])
	assert.Equal(t, "secret", mirrored["content"])

	require.NoError(t, testhelpers.CloseWebSocket(admin))
	testhelpers.Eventually(t, func() bool { return r.Server.Router().Observers().Len() == 0 },
		"observer should be removed on disconnect")
}

func TestChatSelfMessageDeliveredOnce(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	alice := r.Dial(t, "/ws")

	testhelpers.Register(t, alice, "alice", "pw")
	testhelpers.Login(t, alice, "alice", "pw")

	testhelpers.Emit(t, alice, relay.EventSendMessage, map[string]any{"toUsername": "alice", "content": "note"})
	got := testhelpers.Expect(t, alice, relay.EventMessage)
	assert.Equal(t, "note", got["content"])
	testhelpers.ExpectNoMessage(t, alice, 200*time.Millisecond)
}

func TestChatMalformedFrameIsIgnored(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	conn := r.Dial(t, "/ws")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))

	// The session survives and keeps answering.
	testhelpers.Register(t, conn, "alice", "pw")
}
