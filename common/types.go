package common

import (
	"encoding/json"
	"fmt"
)

// Frame is the coordinate reference a Location is expressed in
type Frame int

const (
	FrameGlobal         Frame = iota // absolute altitude above mean sea level
	FrameGlobalRelative              // altitude relative to home
	FrameLocalNED                    // metres north/east/down from home
)

var frameNames = map[Frame]string{
	FrameGlobal:         "global",
	FrameGlobalRelative: "relative",
	FrameLocalNED:       "local",
}

func (f Frame) String() string {
	if name, ok := frameNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Frame(%d)", int(f))
}

// ParseFrame converts a wire tag ("global", "relative", "local") to a Frame
func ParseFrame(s string) (Frame, error) {
	for f, name := range frameNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown frame %q", s)
}

// Location is a position in a specific frame. For FrameLocalNED, Lat/Lon/Alt
// hold north/east/down in metres.
type Location struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
	Frame Frame   `json:"-"`
}

// MarshalJSON encodes the frame tag next to the coordinates
func (l Location) MarshalJSON() ([]byte, error) {
	if l.Frame == FrameLocalNED {
		return json.Marshal(struct {
			North float64 `json:"north"`
			East  float64 `json:"east"`
			Down  float64 `json:"down"`
		}{l.Lat, l.Lon, l.Alt})
	}
	return json.Marshal(struct {
		Lat   float64 `json:"lat"`
		Lon   float64 `json:"lon"`
		Alt   float64 `json:"alt"`
		Frame string  `json:"frame"`
	}{l.Lat, l.Lon, l.Alt, l.Frame.String()})
}

// MissionItem is one waypoint of a mission
type MissionItem struct {
	Command  string   `json:"command"`
	Location Location `json:"location"`
}
