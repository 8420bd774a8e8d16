// Package clock abstracts time for components that need fakeable clocks.
package clock

import "time"

// Clock supplies the current time. Production code uses the system clock;
// tests substitute a fake to control lease and timestamp behavior.
type Clock interface {
	Now() time.Time
}
