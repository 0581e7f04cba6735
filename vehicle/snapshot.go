package vehicle

import (
	"fmt"
)

// Snapshot maps attribute to its current value
type Snapshot map[Attribute]any

// Projector builds snapshots from live vehicle state. Nothing is cached.
type Projector struct {
	vehicle Vehicle
}

// NewProjector returns a Projector reading from v
func NewProjector(v Vehicle) *Projector {
	return &Projector{vehicle: v}
}

// FullSnapshot reads every attribute in the vocabulary
func (p *Projector) FullSnapshot() (Snapshot, error) {
	snapshot := make(Snapshot, attributeCount)
	for _, attr := range Attributes() {
		value, err := p.vehicle.Read(attr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", attr, err)
		}
		snapshot[attr] = value
	}
	return snapshot, nil
}

// Filtered returns the sub-snapshot holding exactly names
func Filtered(s Snapshot, names []Attribute) (Snapshot, error) {
	filtered := make(Snapshot, len(names))
	for _, name := range names {
		if !name.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownAttribute, int(name))
		}
		value, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("%s missing from snapshot", name)
		}
		filtered[name] = value
	}
	return filtered, nil
}
