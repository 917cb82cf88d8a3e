package clock

import (
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oklog/ulid"
)

var GlobalClock clock.Clock = realtimeClock{clock.New()}

// the monotonic instance is not thread safe
var (
	monotonicLock = sync.Mutex{}
	monotonic     = ulid.Monotonic(rand.New(rand.NewSource(GlobalClock.Now().UnixNano())), 0)
)

// GenerateId returns a new lexicographically sortable event id.
func GenerateId() string {
	monotonicLock.Lock()
	defer monotonicLock.Unlock()

	id := ulid.MustNew(ulid.Timestamp(GlobalClock.Now()), monotonic)
	return id.String()
}

// TimeMillis returns the current time of the global clock in unix milliseconds.
// This is used as the key of most simulation events.
func TimeMillis() int64 {
	return GlobalClock.Now().UnixMilli()
}

// Sleep waits for the given duration on the given clock. Returns false if
// the done channel was closed before the duration elapsed.
func Sleep(c clock.Clock, d time.Duration, done <-chan struct{}) bool {
	select {
	case <-c.After(d):
		return true
	case <-done:
		return false
	}
}

type realtimeClock struct {
	clock.Clock
}

// Now returns the current time in UTC.
func (receiver realtimeClock) Now() time.Time {
	return receiver.Clock.Now().UTC()
}
