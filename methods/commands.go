package methods

import (
	"context"
	"encoding/json"
	"fmt"

	"vehicle-agent/common"
	"vehicle-agent/geo"
	"vehicle-agent/link"
	"vehicle-agent/rpc"
)

const takeoffMode = "GUIDED"

// armAndTakeoff switches to GUIDED, arms and climbs to {"alt"}
func (m *Methods) armAndTakeoff(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	alt, ok := p.float("alt")
	if !ok || alt <= 0 {
		return rpc.Failure, nil
	}

	if err := m.vehicle.SetMode(takeoffMode); err != nil {
		return m.outcome("arm_and_takeoff", err)
	}
	if err := m.vehicle.SetArmed(true); err != nil {
		return m.outcome("arm_and_takeoff", err)
	}
	return m.outcome("arm_and_takeoff", m.vehicle.Takeoff(alt))
}

// gotoLocation flies to {"lat","lon","alt"}. "relative" (default true)
// selects the global-relative frame; false means absolute altitude.
func (m *Methods) gotoLocation(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	coords, ok := p.floats("lat", "lon", "alt")
	if !ok {
		return rpc.Failure, nil
	}
	relative, ok := p.optionalBool("relative", true)
	if !ok {
		return rpc.Failure, nil
	}
	groundspeed, ok := p.optionalFloat("groundspeed", 0)
	if !ok || groundspeed < 0 {
		return rpc.Failure, nil
	}

	frame := common.FrameGlobal
	if relative {
		frame = common.FrameGlobalRelative
	}
	target := common.Location{Lat: coords[0], Lon: coords[1], Alt: coords[2], Frame: frame}
	return m.outcome("goto", m.vehicle.Goto(target, groundspeed))
}

// gotoRelative flies {"dNorth","dEast"} metres from the current position,
// keeping the current altitude unless "alt" is given.
func (m *Methods) gotoRelative(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	offsets, ok := p.floats("dNorth", "dEast")
	if !ok {
		return rpc.Failure, nil
	}

	current, err := m.vehicle.CurrentLocation(common.FrameGlobalRelative)
	if err != nil {
		return nil, fmt.Errorf("goto_relative: %w", err)
	}
	alt, ok := p.optionalFloat("alt", current.Alt)
	if !ok {
		return rpc.Failure, nil
	}

	target, err := geo.OffsetMeters(current, offsets[0], offsets[1])
	if err != nil {
		return nil, fmt.Errorf("goto_relative: %w", err)
	}
	target.Alt = alt
	return m.outcome("goto_relative", m.vehicle.Goto(target, 0))
}

// setVelocity sends a NED velocity vector in m/s
func (m *Methods) setVelocity(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	v, ok := p.floats("velocity_x", "velocity_y", "velocity_z")
	if !ok {
		return rpc.Failure, nil
	}
	return m.outcome("set_velocity", m.vehicle.SetVelocity(v[0], v[1], v[2]))
}

func (m *Methods) conditionYaw(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	heading, ok := p.float("heading")
	if !ok {
		return rpc.Failure, nil
	}
	relative, ok := p.optionalBool("relative", false)
	if !ok {
		return rpc.Failure, nil
	}
	return m.outcome("condition_yaw", m.vehicle.ConditionYaw(heading, relative))
}

// setROI points the camera at {"lat","lon","alt"} (global-relative)
func (m *Methods) setROI(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	coords, ok := p.floats("lat", "lon", "alt")
	if !ok {
		return rpc.Failure, nil
	}
	target := common.Location{Lat: coords[0], Lon: coords[1], Alt: coords[2], Frame: common.FrameGlobalRelative}
	return m.outcome("set_roi", m.vehicle.SetROI(target))
}

func (m *Methods) clearMission(_ context.Context, _ json.RawMessage) (any, error) {
	return m.outcome("clear_mission", m.vehicle.ClearMission())
}

// addMissionItem appends {"lat","lon","alt"} with an optional "command"
// (default WAYPOINT) to the pending mission.
func (m *Methods) addMissionItem(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	coords, ok := p.floats("lat", "lon", "alt")
	if !ok {
		return rpc.Failure, nil
	}
	command := "WAYPOINT"
	if p.has("command") {
		if command, ok = p.str("command"); !ok || command == "" {
			return rpc.Failure, nil
		}
	}

	item := common.MissionItem{
		Command:  command,
		Location: common.Location{Lat: coords[0], Lon: coords[1], Alt: coords[2], Frame: common.FrameGlobalRelative},
	}
	return m.outcome("add_mission_item", m.vehicle.AddMissionItem(item))
}

func (m *Methods) uploadMission(_ context.Context, _ json.RawMessage) (any, error) {
	return m.outcome("upload_mission", m.vehicle.UploadMission())
}

func (m *Methods) startMission(_ context.Context, _ json.RawMessage) (any, error) {
	return m.outcome("start_mission", m.vehicle.StartMission())
}

type distanceResult struct {
	Distance float64 `json:"distance"`
	Bearing  float64 `json:"bearing"`
}

// distanceTo reports distance and bearing from the vehicle to {"lat","lon"}
func (m *Methods) distanceTo(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	coords, ok := p.floats("lat", "lon")
	if !ok {
		return rpc.Failure, nil
	}

	current, err := m.vehicle.CurrentLocation(common.FrameGlobalRelative)
	if err != nil {
		return nil, fmt.Errorf("distance_to: %w", err)
	}
	target := common.Location{Lat: coords[0], Lon: coords[1], Frame: common.FrameGlobalRelative}
	return distanceResult{
		Distance: geo.Distance(current, target),
		Bearing:  geo.Bearing(current, target),
	}, nil
}

// sendRawMessage writes {"message": "<hex>"} to the autopilot unchanged
func (m *Methods) sendRawMessage(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	hex, ok := p.str("message")
	if !ok {
		return rpc.Failure, nil
	}
	frame, err := link.ParseFrame(hex)
	if err != nil {
		m.logger.Warn("Rejected raw message", "error", err)
		return rpc.Failure, nil
	}
	return m.outcome("send_raw_message", m.vehicle.SendRaw(frame))
}
