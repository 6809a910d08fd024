package relay

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/errs"
)

// Signaler relays negotiation frames between self-asserted ids. Unlike the
// chat router it never reports failures: undeliverable frames are dropped.
type Signaler struct {
	presence *Registry
	log      *zap.Logger
	metrics  *Metrics
}

func NewSignaler(opts ...Option) *Signaler {
	o := buildOptions(opts)
	s := &Signaler{
		log:     o.log,
		metrics: o.metrics,
	}
	s.presence = NewRegistry(func(id string, displaced Conn) {
		s.log.Info("Signaling id re-registered", zap.String("identity", id), zap.String("conn", displaced.ID()))
	})
	s.metrics.trackRegistry("signal", s.presence)
	return s
}

// Presence exposes the registry for read-only queries.
func (s *Signaler) Presence() *Registry { return s.presence }

// Register binds id to c, overwriting any earlier binding of id.
func (s *Signaler) Register(c Conn, id string) error {
	if id == "" {
		return errs.ErrMissingField
	}
	s.presence.Claim(id, c)
	s.metrics.recordClaim("signal")
	s.log.Info("Signaling id registered", zap.String("identity", id), zap.String("conn", c.ID()))
	return nil
}

// Forward delivers a frame to target stamped with the id bound to sender.
// It reports whether the frame reached the target's send queue.
func (s *Signaler) Forward(sender Conn, target, msgType string, payload json.RawMessage) bool {
	dest, ok := s.presence.Resolve(target)
	if !ok {
		s.metrics.recordSignal("no_target")
		return false
	}

	out := SignalOut{Type: msgType, Payload: orNull(payload)}
	if id, ok := s.presence.IdentityOf(sender); ok {
		out.Sender = &id
	}
	frame, err := json.Marshal(out)
	if err != nil {
		s.log.Warn("Encode signal", zap.String("conn", sender.ID()), zap.Error(err))
		s.metrics.recordSignal("encode_error")
		return false
	}

	if err := dest.Send(frame); err != nil {
		s.metrics.recordSignal("not_writable")
		return false
	}
	s.metrics.recordSignal("forwarded")
	return true
}

// HandleFrame decodes one signaling frame from c. Nothing is ever written
// back to c.
func (s *Signaler) HandleFrame(c Conn, raw []byte) {
	var in SignalIn
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Warn("Discarding malformed signal", zap.String("conn", c.ID()), zap.Error(err))
		s.metrics.recordSignal("malformed")
		return
	}

	if in.Type == SignalRegister {
		if err := s.Register(c, in.ID); err != nil {
			s.log.Debug("Ignoring REGISTER without id", zap.String("conn", c.ID()))
		}
		return
	}
	if in.Target == "" {
		s.metrics.recordSignal("no_target")
		return
	}
	s.Forward(c, in.Target, in.Type, in.Payload)
}

// Disconnect releases the id bound to c, if any.
func (s *Signaler) Disconnect(c Conn) {
	if id, ok := s.presence.Release(c); ok {
		s.log.Info("Signaling id released", zap.String("identity", id), zap.String("conn", c.ID()))
	}
}
