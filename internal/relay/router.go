package relay

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/errs"
	"github.com/Tyrowin/gorelay/internal/identity"
)

// ErrNoAdminSecret is returned by NewRouter when no observer secret is set.
var ErrNoAdminSecret = errors.New("admin secret is required")

// Router is the authenticated chat relay. It exclusively owns the presence
// registry and the observer set.
type Router struct {
	store       *identity.Store
	presence    *Registry
	observers   *ObserverSet
	adminSecret []byte

	log     *zap.Logger
	metrics *Metrics
	nowFn   func() time.Time
}

// NewRouter builds a Router over store. adminSecret gates observer
// admission and must be non-empty.
func NewRouter(store *identity.Store, adminSecret string, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	if adminSecret == "" {
		return nil, ErrNoAdminSecret
	}

	o := buildOptions(opts)
	r := &Router{
		store:       store,
		observers:   NewObserverSet(),
		adminSecret: []byte(adminSecret),
		log:         o.log,
		metrics:     o.metrics,
		nowFn:       o.nowFn,
	}
	r.presence = NewRegistry(r.supersede)
	r.metrics.trackRegistry("chat", r.presence)
	return r, nil
}

// Presence exposes the registry for read-only queries.
func (r *Router) Presence() *Registry { return r.presence }

// Observers exposes the observer set for read-only queries.
func (r *Router) Observers() *ObserverSet { return r.observers }

// Register creates an identity and returns its discovery code.
func (r *Router) Register(name, secret string) (string, error) {
	return r.store.Register(name, secret)
}

// Login verifies credentials and claims name for c. A connection already
// holding name elsewhere is demoted and notified.
func (r *Router) Login(c Conn, name, secret string) (string, error) {
	if err := r.store.Verify(name, secret); err != nil {
		return "", err
	}
	code, _ := r.store.Code(name)

	r.presence.Claim(name, c)
	r.metrics.recordClaim("chat")
	r.log.Info("Identity claimed", zap.String("identity", name), zap.String("conn", c.ID()))
	return code, nil
}

// FindFriend locates name by its discovery code and reports whether it is
// online.
func (r *Router) FindFriend(name, code string) (bool, error) {
	return r.store.LookupByCode(name, code, r.presence)
}

// AdmitObserver adds c to the observer set when secret matches.
func (r *Router) AdmitObserver(c Conn, secret string) error {
	if subtle.ConstantTimeCompare([]byte(secret), r.adminSecret) != 1 {
		r.metrics.recordAdmission(false)
		r.log.Warn("Observer admission rejected", zap.String("conn", c.ID()))
		return errs.ErrInvalidCode
	}
	r.observers.Add(c)
	r.metrics.recordAdmission(true)
	r.log.Info("Observer admitted", zap.String("conn", c.ID()))
	return nil
}

// Route delivers content from the identity claimed by sender to the
// connection currently holding to, echoes it to sender, and mirrors it to
// every observer. Only the recipient delivery can fail the route.
func (r *Router) Route(sender Conn, to string, content, meta json.RawMessage) (Envelope, error) {
	from, ok := r.presence.IdentityOf(sender)
	if !ok {
		r.metrics.recordRoute(string(errs.CodeUnauthenticated))
		return Envelope{}, errs.ErrUnauthenticated
	}

	dest, ok := r.presence.Resolve(to)
	if !ok {
		r.metrics.recordRoute(string(errs.CodeRecipientUnreachable))
		return Envelope{}, errs.ErrRecipientUnreachable
	}

	env := Envelope{
		From:      from,
		To:        to,
		Content:   orNull(content),
		Meta:      orNull(meta),
		Timestamp: r.nowFn().UnixMilli(),
	}
	frame, err := EncodeFrame(EventMessage, env)
	if err != nil {
		return Envelope{}, err
	}

	err = dest.Send(frame)
	r.metrics.recordDelivery("recipient", err)
	if err != nil {
		// Recipient closed between resolve and send.
		r.log.Debug("Recipient delivery failed",
			zap.String("identity", to), zap.String("conn", dest.ID()), zap.Error(err))
		r.metrics.recordRoute(string(errs.CodeRecipientUnreachable))
		return Envelope{}, errs.ErrRecipientUnreachable
	}

	if sender.ID() != dest.ID() {
		err = sender.Send(frame)
		r.metrics.recordDelivery("echo", err)
		if err != nil {
			r.log.Debug("Sender echo failed", zap.String("conn", sender.ID()), zap.Error(err))
		}
	}

	r.mirror(env)
	r.metrics.recordRoute("ok")
	return env, nil
}

func (r *Router) mirror(env Envelope) {
	observers := r.observers.Snapshot()
	if len(observers) == 0 {
		return
	}
	frame, err := EncodeFrame(EventAdminMessage, env)
	if err != nil {
		r.log.Error("Encode observer mirror", zap.Error(err))
		return
	}
	for _, o := range observers {
		err := o.Send(frame)
		r.metrics.recordDelivery("observer", err)
	}
}

// Disconnect purges every entry pointing at c. It is safe to call more than
// once.
func (r *Router) Disconnect(c Conn) {
	name, released := r.presence.Release(c)
	wasObserver := r.observers.Remove(c)
	if released || wasObserver {
		r.log.Info("Session released",
			zap.String("conn", c.ID()),
			zap.String("identity", name),
			zap.Bool("observer", wasObserver))
	}
}

func (r *Router) supersede(name string, displaced Conn) {
	r.metrics.recordSuperseded()
	r.log.Info("Session superseded", zap.String("identity", name), zap.String("conn", displaced.ID()))

	frame, err := EncodeFrame(EventSessionSuperseded, supersededNotice{Username: name})
	if err != nil {
		r.log.Error("Encode superseded notice", zap.Error(err))
		return
	}
	_ = displaced.Send(frame)
}
