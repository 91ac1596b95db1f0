// Package infra implements infrastructure concerns (clock, process,
// hosts file, sentinel listener, encrypted store).
package infra

import (
	"time"

	"github.com/bastionhq/bastion/internal/domain"
)

// SystemClock implements domain.Clock on the runtime clock.
// time.Now carries a monotonic reading, so Sub-based remaining-time
// arithmetic is immune to wall-clock jumps within a process lifetime.
type SystemClock struct{}

// NewSystemClock creates a system clock.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current instant.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Ensure SystemClock implements domain.Clock.
var _ domain.Clock = SystemClock{}
