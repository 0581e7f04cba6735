package vehicle

import (
	"errors"
	"fmt"
)

// ErrUnknownAttribute is returned for names outside the attribute vocabulary
var ErrUnknownAttribute = errors.New("unknown attribute")

// Attribute names one field of vehicle state
type Attribute int

const (
	Attitude Attribute = iota
	Location
	Velocity
	GPS
	Battery
	Mode
	Armed
	Groundspeed
	Airspeed
	State
	Heading
	EKFOk
	LastHeartbeat
	Rangefinder
	Gimbal

	attributeCount
)

var attributeNames = [attributeCount]string{
	Attitude:      "attitude",
	Location:      "location",
	Velocity:      "velocity",
	GPS:           "gps",
	Battery:       "battery",
	Mode:          "mode",
	Armed:         "armed",
	Groundspeed:   "groundspeed",
	Airspeed:      "airspeed",
	State:         "state",
	Heading:       "heading",
	EKFOk:         "ekf_ok",
	LastHeartbeat: "last_heartbeat",
	Rangefinder:   "rangefinder",
	Gimbal:        "gimbal",
}

// Attributes returns the whole vocabulary in declaration order
func Attributes() []Attribute {
	all := make([]Attribute, 0, attributeCount)
	for a := Attribute(0); a < attributeCount; a++ {
		all = append(all, a)
	}
	return all
}

// Valid reports whether a belongs to the vocabulary
func (a Attribute) Valid() bool {
	return a >= 0 && a < attributeCount
}

// Mutable reports whether a can be written through set_attributes
func (a Attribute) Mutable() bool {
	switch a {
	case Armed, Airspeed, Groundspeed, Mode:
		return true
	}
	return false
}

func (a Attribute) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Attribute(%d)", int(a))
	}
	return attributeNames[a]
}

// ParseAttribute looks up an attribute by its wire name
func ParseAttribute(name string) (Attribute, error) {
	for i, n := range attributeNames {
		if n == name {
			return Attribute(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
}

// MarshalText makes Attribute usable as a JSON string and map key
func (a Attribute) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAttribute, int(a))
	}
	return []byte(attributeNames[a]), nil
}

func (a *Attribute) UnmarshalText(text []byte) error {
	parsed, err := ParseAttribute(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
