// Package idx generates the ULID identifiers used for users, sessions,
// MFA challenges and request ids. ULIDs sort by creation time, which keeps
// SQLite primary-key inserts append-only.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

// source serialises access to a monotonic entropy reader so IDs minted in
// the same millisecond still sort in creation order.
type source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var defaultSource = sync.OnceValue(func() *source {
	return &source{entropy: ulid.Monotonic(rand.Reader, 0)}
})

func (s *source) at(t time.Time) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), s.entropy).String())
}

// New returns a ULID for the current UTC time.
func New() ID {
	return defaultSource().at(time.Now().UTC())
}

// NewAt returns a ULID embedding t.
func NewAt(t time.Time) ID {
	return defaultSource().at(t.UTC())
}

// Parse validates s as a canonical ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// Valid reports whether s is a canonical ULID.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time returns the timestamp embedded in id, or the zero time when id is
// not a valid ULID.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
