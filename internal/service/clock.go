package service

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// Clock supplies the current day. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
	Today() domain.Date
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}

// Today returns the current calendar date in the clock's location.
func (c SystemClock) Today() domain.Date {
	return domain.DateOf(c.Now())
}

// FixedClock always reports the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time     { return c.T }
func (c FixedClock) Today() domain.Date { return domain.DateOf(c.T) }

// ReferenceGenerator mints loan reference numbers.
type ReferenceGenerator interface {
	NewReference(t time.Time) string
}

// ULIDGenerator mints monotonic ULIDs, so references sort by issue time.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewULIDGenerator creates a generator reading entropy from crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewReference returns a new ULID for t.
func (g *ULIDGenerator) NewReference(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
