// Package geo converts between metre offsets and lat/lon positions.
//
// All functions are flat-Earth approximations: accurate to roughly 10m
// within 1km, and increasingly wrong over long distances and near the poles.
package geo

import (
	"errors"
	"fmt"
	"math"

	"vehicle-agent/common"
)

const (
	// EarthRadius is the radius of the "spherical" earth in metres
	EarthRadius = 6378137.0

	// metresPerDegree approximates one degree of latitude at the equator
	metresPerDegree = 1.113195e5
)

// ErrUnknownFrame is returned for locations that are not in a global frame
var ErrUnknownFrame = errors.New("unrecognized location frame")

// OffsetMeters returns the location dNorth and dEast metres from origin.
// Altitude and frame are carried over unchanged.
func OffsetMeters(origin common.Location, dNorth, dEast float64) (common.Location, error) {
	switch origin.Frame {
	case common.FrameGlobal, common.FrameGlobalRelative:
	default:
		return common.Location{}, fmt.Errorf("offset from %v: %w", origin.Frame, ErrUnknownFrame)
	}

	dLat := dNorth / EarthRadius
	dLon := dEast / (EarthRadius * math.Cos(math.Pi*origin.Lat/180))

	return common.Location{
		Lat:   origin.Lat + dLat*180/math.Pi,
		Lon:   origin.Lon + dLon*180/math.Pi,
		Alt:   origin.Alt,
		Frame: origin.Frame,
	}, nil
}

// Distance returns the approximate ground distance in metres between a and b
func Distance(a, b common.Location) float64 {
	dLat := b.Lat - a.Lat
	dLon := b.Lon - a.Lon
	return math.Sqrt(dLat*dLat+dLon*dLon) * metresPerDegree
}

// Bearing returns the bearing from a to b in degrees, in [0, 360).
// Bearing(a, a) is 90.
func Bearing(a, b common.Location) float64 {
	offX := b.Lon - a.Lon
	offY := b.Lat - a.Lat
	bearing := 90 + math.Atan2(-offY, offX)*180/math.Pi
	bearing = math.Mod(bearing, 360)
	if bearing < 0 {
		bearing += 360
	}
	return bearing
}
