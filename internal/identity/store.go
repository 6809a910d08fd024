// Package identity keeps the registered identities for the lifetime of the
// process: their hashed shared secret and the discovery code handed out at
// registration.
package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/gorelay/internal/errs"
)

// maxCodeAttempts bounds the collision retry loop in Register.
const maxCodeAttempts = 32

// Presence reports whether an identity currently has a live connection.
type Presence interface {
	IsOnline(identity string) bool
}

// Record is a registered identity as returned by Lookup. The discovery code
// never changes once assigned.
type Record struct {
	Name      string
	Code      string
	CreatedAt time.Time

	secretHash []byte
}

// Store is a concurrency-safe in-memory identity store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	codes   map[string]string

	cost    int
	genCode func() string
	nowFn   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithBcryptCost sets the bcrypt work factor used to hash secrets.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithCodeGenerator replaces the discovery code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.genCode = gen
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*Record),
		codes:   make(map[string]string),
		cost:    bcrypt.DefaultCost,
		genCode: GenerateCode,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new identity and returns its discovery code.
func (s *Store) Register(name, secret string) (string, error) {
	if name == "" || secret == "" {
		return "", errs.ErrMissingField
	}

	// Hash outside the lock; bcrypt is deliberately slow.
	hash, err := bcrypt.GenerateFromPassword(prehash(secret), s.cost)
	if err != nil {
		return "", errors.Wrap(err, "hash secret")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[name]; exists {
		return "", errs.ErrDuplicateName
	}

	code, err := s.uniqueCodeLocked()
	if err != nil {
		return "", err
	}

	s.records[name] = &Record{
		Name:       name,
		Code:       code,
		CreatedAt:  s.nowFn(),
		secretHash: hash,
	}
	s.codes[code] = name
	return code, nil
}

func (s *Store) uniqueCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.genCode()
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
	return "", errors.Errorf("no free discovery code after %d attempts", maxCodeAttempts)
}

// prehash folds a secret of any length into a fixed 44-byte input, since
// bcrypt rejects secrets longer than 72 bytes.
func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// Verify checks the presented secret. It never touches connection state.
func (s *Store) Verify(name, secret string) error {
	s.mu.RLock()
	rec, ok := s.records[name]
	s.mu.RUnlock()

	if !ok || secret == "" {
		return errs.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.secretHash, prehash(secret)); err != nil {
		return errs.ErrInvalidCredentials
	}
	return nil
}

// LookupByCode locates an identity by name and discovery code and reports
// whether it is online according to presence.
func (s *Store) LookupByCode(name, code string, presence Presence) (bool, error) {
	s.mu.RLock()
	rec, ok := s.records[name]
	s.mu.RUnlock()

	if !ok || code == "" || rec.Code != code {
		return false, errs.ErrNotFound
	}
	if presence == nil {
		return false, nil
	}
	return presence.IsOnline(name), nil
}

// Lookup returns a copy of the record registered under name.
func (s *Store) Lookup(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return Record{}, false
	}
	return Record{Name: rec.Name, Code: rec.Code, CreatedAt: rec.CreatedAt}, true
}

// Code returns the discovery code of a registered identity.
func (s *Store) Code(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return "", false
	}
	return rec.Code, true
}

// Len returns the number of registered identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
