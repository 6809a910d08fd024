package relay

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/errs"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type findFriendRequest struct {
	Username   string `json:"username"`
	FriendCode string `json:"friendCode"`
}

type sendMessageRequest struct {
	ToUsername string          `json:"toUsername"`
	Content    json.RawMessage `json:"content"`
	Meta       json.RawMessage `json:"meta"`
}

type adminLoginRequest struct {
	Code string `json:"code"`
}

type identityResult struct {
	OK         bool   `json:"ok"`
	Username   string `json:"username"`
	FriendCode string `json:"friendCode"`
}

type findFriendResult struct {
	OK       bool   `json:"ok"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type failure struct {
	OK    bool      `json:"ok"`
	Error string    `json:"error"`
	Code  errs.Code `json:"code,omitempty"`
}

type supersededNotice struct {
	Username string `json:"username"`
}

// HandleFrame decodes one chat frame from c and dispatches it. Results go
// back to c only. Malformed frames are logged and dropped.
func (r *Router) HandleFrame(c Conn, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		r.log.Warn("Discarding malformed frame", zap.String("conn", c.ID()), zap.Error(err))
		return
	}

	switch frame.Event {
	case EventRegister:
		var req credentials
		if r.decode(c, frame, &req) {
			r.handleRegister(c, req)
		}
	case EventLogin:
		var req credentials
		if r.decode(c, frame, &req) {
			r.handleLogin(c, req)
		}
	case EventFindFriend:
		var req findFriendRequest
		if r.decode(c, frame, &req) {
			r.handleFindFriend(c, req)
		}
	case EventSendMessage:
		var req sendMessageRequest
		if r.decode(c, frame, &req) {
			r.handleSendMessage(c, req)
		}
	case EventAdminLogin:
		var req adminLoginRequest
		if r.decode(c, frame, &req) {
			r.handleAdminLogin(c, req)
		}
	default:
		r.log.Debug("Ignoring unknown event", zap.String("conn", c.ID()), zap.String("event", frame.Event))
	}
}

func (r *Router) decode(c Conn, frame Frame, v any) bool {
	data := frame.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.log.Warn("Discarding malformed payload",
			zap.String("conn", c.ID()), zap.String("event", frame.Event), zap.Error(err))
		return false
	}
	return true
}

func (r *Router) handleRegister(c Conn, req credentials) {
	code, err := r.Register(req.Username, req.Password)
	if err != nil {
		r.replyFailure(c, EventRegisterResult, err, "Registration failed.")
		return
	}
	r.log.Info("Identity registered", zap.String("identity", req.Username))
	r.reply(c, EventRegisterResult, identityResult{OK: true, Username: req.Username, FriendCode: code})
}

func (r *Router) handleLogin(c Conn, req credentials) {
	code, err := r.Login(c, req.Username, req.Password)
	if err != nil {
		r.replyFailure(c, EventLoginResult, err, "Login failed.")
		return
	}
	r.reply(c, EventLoginResult, identityResult{OK: true, Username: req.Username, FriendCode: code})
}

func (r *Router) handleFindFriend(c Conn, req findFriendRequest) {
	online, err := r.FindFriend(req.Username, req.FriendCode)
	if err != nil {
		r.replyFailure(c, EventFindFriendResult, err, "Lookup failed.")
		return
	}
	r.reply(c, EventFindFriendResult, findFriendResult{OK: true, Username: req.Username, Online: online})
}

func (r *Router) handleSendMessage(c Conn, req sendMessageRequest) {
	if _, err := r.Route(c, req.ToUsername, req.Content, req.Meta); err != nil {
		msg := "Message could not be delivered."
		if ce, ok := errs.As(err); ok {
			msg = ce.Msg
		} else {
			r.log.Error("Route failed", zap.String("conn", c.ID()), zap.Error(err))
		}
		r.reply(c, EventMessageError, msg)
	}
}

func (r *Router) handleAdminLogin(c Conn, req adminLoginRequest) {
	if err := r.AdmitObserver(c, req.Code); err != nil {
		r.replyFailure(c, EventAdminLoginResult, err, "Admin login failed.")
		return
	}
	r.reply(c, EventAdminLoginResult, okResult{OK: true})
}

// replyFailure reports a coded error, or fallback for internal failures.
func (r *Router) replyFailure(c Conn, event string, err error, fallback string) {
	if ce, ok := errs.As(err); ok {
		r.reply(c, event, failure{Error: ce.Msg, Code: ce.Code})
		return
	}
	r.log.Error("Request failed", zap.String("conn", c.ID()), zap.String("event", event), zap.Error(err))
	r.reply(c, event, failure{Error: fallback})
}

func (r *Router) reply(c Conn, event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		r.log.Error("Encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	if err := c.Send(frame); err != nil {
		r.log.Debug("Reply not delivered", zap.String("conn", c.ID()), zap.String("event", event), zap.Error(err))
	}
}
