package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vehicle-agent/vehicle"
)

// Bounds of the telemetry period
const (
	MinPeriod = 10 * time.Millisecond
	MaxPeriod = 24 * time.Hour
)

var (
	ErrInvalidPeriod    = errors.New("telemetry period out of range")
	ErrUnknownAttribute = errors.New("attribute not available for telemetry")
)

// Vocabulary lists the attributes a telemetry push may carry
var Vocabulary = []vehicle.Attribute{
	vehicle.Attitude,
	vehicle.Location,
	vehicle.Velocity,
	vehicle.Battery,
	vehicle.State,
	vehicle.Groundspeed,
	vehicle.Airspeed,
	vehicle.Mode,
	vehicle.Armed,
}

// Allowed reports whether attr is in the telemetry vocabulary
func Allowed(attr vehicle.Attribute) bool {
	for _, a := range Vocabulary {
		if a == attr {
			return true
		}
	}
	return false
}

// Settings is the live telemetry configuration shared by the scheduler
// and the RPC operations that mutate it. Last writer wins.
type Settings struct {
	mu         sync.RWMutex
	period     time.Duration
	attributes []vehicle.Attribute
}

// NewSettings validates the initial configuration
func NewSettings(period time.Duration, attributes []vehicle.Attribute) (*Settings, error) {
	s := &Settings{}
	if err := s.SetPeriod(period); err != nil {
		return nil, err
	}
	if err := s.SetAttributes(attributes); err != nil {
		return nil, err
	}
	return s, nil
}

// Period returns the current cycle length
func (s *Settings) Period() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.period
}

// SetPeriod replaces the cycle length. It takes effect on the next cycle.
func (s *Settings) SetPeriod(period time.Duration) error {
	if period < MinPeriod || period > MaxPeriod {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidPeriod, period, MinPeriod, MaxPeriod)
	}
	s.mu.Lock()
	s.period = period
	s.mu.Unlock()
	return nil
}

// Attributes returns a copy of the configured attribute set
func (s *Settings) Attributes() []vehicle.Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attributes := make([]vehicle.Attribute, len(s.attributes))
	copy(attributes, s.attributes)
	return attributes
}

// SetAttributes replaces the attribute set wholesale. Duplicates collapse.
// On error the previous set is kept.
func (s *Settings) SetAttributes(attributes []vehicle.Attribute) error {
	set := make([]vehicle.Attribute, 0, len(attributes))
	seen := make(map[vehicle.Attribute]bool, len(attributes))
	for _, attr := range attributes {
		if !Allowed(attr) {
			return fmt.Errorf("%w: %v", ErrUnknownAttribute, attr)
		}
		if seen[attr] {
			continue
		}
		seen[attr] = true
		set = append(set, attr)
	}

	s.mu.Lock()
	s.attributes = set
	s.mu.Unlock()
	return nil
}
