// Package methods is the agent's operation table: every RPC method the
// agent answers, bound to the vehicle, the telemetry settings and the shell.
package methods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vehicle-agent/rpc"
	"vehicle-agent/telemetry"
	"vehicle-agent/vehicle"
)

// CommandRunner executes diagnostic shell commands
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// Methods holds the collaborators the operations act on
type Methods struct {
	vehicle   vehicle.Vehicle
	projector *vehicle.Projector
	telemetry *telemetry.Settings
	shell     CommandRunner // nil disables the shell method
	logger    *slog.Logger
}

// New creates the operation set. shell may be nil.
func New(v vehicle.Vehicle, settings *telemetry.Settings, shell CommandRunner, logger *slog.Logger) *Methods {
	return &Methods{
		vehicle:   v,
		projector: vehicle.NewProjector(v),
		telemetry: settings,
		shell:     shell,
		logger:    logger,
	}
}

// Registry returns the static operation table
func (m *Methods) Registry() (*rpc.Registry, error) {
	return rpc.NewRegistry(
		rpc.Operation{Name: "get_attributes", Kind: rpc.KindQuery, Handler: m.getAttributes},
		rpc.Operation{Name: "set_attributes", Kind: rpc.KindMutation, Handler: m.setAttributes},
		rpc.Operation{Name: "get_telemetry", Kind: rpc.KindQuery, Handler: m.getTelemetry},
		rpc.Operation{Name: "set_telemetry_period", Kind: rpc.KindMutation, Handler: m.setTelemetryPeriod},
		rpc.Operation{Name: "set_telemetry_attributes", Kind: rpc.KindMutation, Handler: m.setTelemetryAttributes},
		rpc.Operation{Name: "arm_and_takeoff", Kind: rpc.KindCommand, Handler: m.armAndTakeoff},
		rpc.Operation{Name: "goto", Kind: rpc.KindCommand, Handler: m.gotoLocation},
		rpc.Operation{Name: "goto_relative", Kind: rpc.KindCommand, Handler: m.gotoRelative},
		rpc.Operation{Name: "set_velocity", Kind: rpc.KindCommand, Handler: m.setVelocity},
		rpc.Operation{Name: "condition_yaw", Kind: rpc.KindCommand, Handler: m.conditionYaw},
		rpc.Operation{Name: "set_roi", Kind: rpc.KindCommand, Handler: m.setROI},
		rpc.Operation{Name: "clear_mission", Kind: rpc.KindCommand, Handler: m.clearMission},
		rpc.Operation{Name: "add_mission_item", Kind: rpc.KindCommand, Handler: m.addMissionItem},
		rpc.Operation{Name: "upload_mission", Kind: rpc.KindCommand, Handler: m.uploadMission},
		rpc.Operation{Name: "start_mission", Kind: rpc.KindCommand, Handler: m.startMission},
		rpc.Operation{Name: "distance_to", Kind: rpc.KindQuery, Handler: m.distanceTo},
		rpc.Operation{Name: "send_raw_message", Kind: rpc.KindCommand, Handler: m.sendRawMessage},
		rpc.Operation{Name: "shell", Kind: rpc.KindCommand, Handler: m.runShell},
	)
}

// outcome maps a vehicle error to a result. Precondition failures are
// ordinary failures; anything else is reported as an internal error.
func (m *Methods) outcome(op string, err error) (any, error) {
	switch {
	case err == nil:
		return rpc.Success, nil
	case errors.Is(err, vehicle.ErrNotArmed), errors.Is(err, vehicle.ErrEmptyMission), errors.Is(err, vehicle.ErrNoRawTransport):
		m.logger.Warn("Operation refused by vehicle", "method", op, "reason", err)
		return rpc.Failure, nil
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

func (m *Methods) getAttributes(_ context.Context, _ json.RawMessage) (any, error) {
	return m.projector.FullSnapshot()
}

// setAttributes applies a partial update of the mutable attributes. Any key
// outside the whitelist, or any value of the wrong type, rejects the whole
// request before anything is written. Writes run in attribute order (mode
// before armed) and stop at the first vehicle error.
func (m *Methods) setAttributes(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}

	writes := make(map[vehicle.Attribute]func() error, len(p))
	for key := range p {
		attr, err := vehicle.ParseAttribute(key)
		if err != nil || !attr.Mutable() {
			m.logger.Warn("Rejected attribute update", "attribute", key)
			return rpc.Failure, nil
		}

		switch attr {
		case vehicle.Armed:
			armed, ok := p.boolean(key)
			if !ok {
				return rpc.Failure, nil
			}
			writes[attr] = func() error { return m.vehicle.SetArmed(armed) }
		case vehicle.Mode:
			mode, ok := p.str(key)
			if !ok || mode == "" {
				return rpc.Failure, nil
			}
			writes[attr] = func() error { return m.vehicle.SetMode(mode) }
		case vehicle.Airspeed:
			speed, ok := p.float(key)
			if !ok || speed < 0 {
				return rpc.Failure, nil
			}
			writes[attr] = func() error { return m.vehicle.SetAirspeed(speed) }
		case vehicle.Groundspeed:
			speed, ok := p.float(key)
			if !ok || speed < 0 {
				return rpc.Failure, nil
			}
			writes[attr] = func() error { return m.vehicle.SetGroundspeed(speed) }
		}
	}

	for _, attr := range vehicle.Attributes() {
		write, ok := writes[attr]
		if !ok {
			continue
		}
		if err := write(); err != nil {
			return m.outcome("set_attributes", err)
		}
	}
	return rpc.Success, nil
}

type telemetryConfig struct {
	Period     float64             `json:"period"`
	Attributes []vehicle.Attribute `json:"attributes"`
}

func (m *Methods) getTelemetry(_ context.Context, _ json.RawMessage) (any, error) {
	return telemetryConfig{
		Period:     m.telemetry.Period().Seconds(),
		Attributes: m.telemetry.Attributes(),
	}, nil
}

func (m *Methods) setTelemetryPeriod(_ context.Context, raw json.RawMessage) (any, error) {
	p, ok := decodeObject(raw)
	if !ok {
		return rpc.Failure, nil
	}
	seconds, ok := p.float("period")
	if !ok || seconds < telemetry.MinPeriod.Seconds() || seconds > telemetry.MaxPeriod.Seconds() {
		return rpc.Failure, nil
	}

	if err := m.telemetry.SetPeriod(time.Duration(seconds * float64(time.Second))); err != nil {
		return rpc.Failure, nil
	}
	m.logger.Info("Telemetry period changed", "period", m.telemetry.Period())
	return rpc.Success, nil
}

// setTelemetryAttributes accepts either a bare list of names or
// {"attributes": [...]} and replaces the telemetry attribute set.
func (m *Methods) setTelemetryAttributes(_ context.Context, raw json.RawMessage) (any, error) {
	names, ok := stringList(raw)
	if !ok {
		p, isObject := decodeObject(raw)
		if !isObject || !p.has("attributes") {
			return rpc.Failure, nil
		}
		if names, ok = stringList(p["attributes"]); !ok {
			return rpc.Failure, nil
		}
	}

	attributes := make([]vehicle.Attribute, 0, len(names))
	for _, name := range names {
		attr, err := vehicle.ParseAttribute(name)
		if err != nil {
			return rpc.Failure, nil
		}
		attributes = append(attributes, attr)
	}

	if err := m.telemetry.SetAttributes(attributes); err != nil {
		m.logger.Warn("Rejected telemetry attributes", "error", err)
		return rpc.Failure, nil
	}
	m.logger.Info("Telemetry attributes changed", "attributes", names)
	return rpc.Success, nil
}

// runShell expects ["<command>"]
func (m *Methods) runShell(ctx context.Context, raw json.RawMessage) (any, error) {
	if m.shell == nil {
		return rpc.Failure, nil
	}
	args, ok := stringList(raw)
	if !ok || len(args) == 0 || args[0] == "" {
		return rpc.Failure, nil
	}
	return m.shell.Run(ctx, args[0])
}
