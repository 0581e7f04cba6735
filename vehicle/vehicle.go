// Package vehicle defines the vehicle-control boundary and projects vehicle
// state into attribute snapshots.
package vehicle

import (
	"vehicle-agent/common"
)

// Vehicle is the vehicle-control interface the agent drives.
// Reads cover the whole attribute vocabulary; writes are limited to the
// mutable attributes. Calls are synchronous.
type Vehicle interface {
	Read(attr Attribute) (any, error)
	CurrentLocation(frame common.Frame) (common.Location, error)

	SetArmed(armed bool) error
	SetMode(mode string) error
	SetAirspeed(speed float64) error
	SetGroundspeed(speed float64) error

	Takeoff(alt float64) error
	Goto(target common.Location, groundspeed float64) error
	SetVelocity(vx, vy, vz float64) error
	ConditionYaw(heading float64, relative bool) error
	SetROI(target common.Location) error

	ClearMission() error
	AddMissionItem(item common.MissionItem) error
	UploadMission() error
	StartMission() error

	SendRaw(msg []byte) error
}

// AttitudeValue is roll/pitch/yaw in radians
type AttitudeValue struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// LocationValue carries the vehicle position in all three frames
type LocationValue struct {
	Global         common.Location `json:"global_frame"`
	GlobalRelative common.Location `json:"global_relative_frame"`
	Local          common.Location `json:"local_frame"`
}

type GPSValue struct {
	FixType    int `json:"fix_type"`
	Satellites int `json:"satellites_visible"`
	EPH        int `json:"eph"`
	EPV        int `json:"epv"`
}

type BatteryValue struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Level   int     `json:"level"`
}

type RangefinderValue struct {
	Distance float64 `json:"distance"`
	Voltage  float64 `json:"voltage"`
}

type GimbalValue struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}
