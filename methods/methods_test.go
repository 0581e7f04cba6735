package methods

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vehicle-agent/common"
	"vehicle-agent/rpc"
	"vehicle-agent/telemetry"
	"vehicle-agent/vehicle"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockVehicle records vehicle calls made by operations
type MockVehicle struct {
	mock.Mock
}

func (m *MockVehicle) Read(attr vehicle.Attribute) (any, error) {
	args := m.Called(attr)
	return args.Get(0), args.Error(1)
}

func (m *MockVehicle) CurrentLocation(frame common.Frame) (common.Location, error) {
	args := m.Called(frame)
	return args.Get(0).(common.Location), args.Error(1)
}

func (m *MockVehicle) SetArmed(armed bool) error         { return m.Called(armed).Error(0) }
func (m *MockVehicle) SetMode(mode string) error          { return m.Called(mode).Error(0) }
func (m *MockVehicle) SetAirspeed(speed float64) error    { return m.Called(speed).Error(0) }
func (m *MockVehicle) SetGroundspeed(speed float64) error { return m.Called(speed).Error(0) }
func (m *MockVehicle) Takeoff(alt float64) error          { return m.Called(alt).Error(0) }

func (m *MockVehicle) Goto(target common.Location, groundspeed float64) error {
	return m.Called(target, groundspeed).Error(0)
}

func (m *MockVehicle) SetVelocity(vx, vy, vz float64) error {
	return m.Called(vx, vy, vz).Error(0)
}

func (m *MockVehicle) ConditionYaw(heading float64, relative bool) error {
	return m.Called(heading, relative).Error(0)
}

func (m *MockVehicle) SetROI(target common.Location) error { return m.Called(target).Error(0) }
func (m *MockVehicle) ClearMission() error                 { return m.Called().Error(0) }
func (m *MockVehicle) UploadMission() error                { return m.Called().Error(0) }
func (m *MockVehicle) StartMission() error                 { return m.Called().Error(0) }
func (m *MockVehicle) SendRaw(msg []byte) error            { return m.Called(msg).Error(0) }

func (m *MockVehicle) AddMissionItem(item common.MissionItem) error {
	return m.Called(item).Error(0)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, command string) (string, error) {
	args := m.Called(command)
	return args.String(0), args.Error(1)
}

type fixture struct {
	vehicle    *MockVehicle
	runner     *MockRunner
	settings   *telemetry.Settings
	dispatcher *rpc.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings, err := telemetry.NewSettings(time.Second, []vehicle.Attribute{vehicle.Mode, vehicle.Armed})
	require.NoError(t, err)

	f := &fixture{vehicle: new(MockVehicle), runner: new(MockRunner), settings: settings}
	registry, err := New(f.vehicle, settings, f.runner, testLogger).Registry()
	require.NoError(t, err)
	f.dispatcher = rpc.NewDispatcher(registry, testLogger)
	return f
}

func (f *fixture) call(method string, params string) string {
	raw := `{"jsonrpc":"2.0","method":"` + method + `","params":` + params + `,"id":1}`
	return string(f.dispatcher.Dispatch(context.Background(), []byte(raw)))
}

const (
	success  = `{"jsonrpc":"2.0","result":{"success":true},"id":1}`
	failure  = `{"jsonrpc":"2.0","result":{"success":false},"id":1}`
	internal = `{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal error"},"id":1}`
)

func TestEndToEndScenarios(t *testing.T) {
	f := newFixture(t)

	got := f.dispatcher.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"set_telemetry_period","params":{"period":5},"id":7}`))
	assert.Equal(t, `{"jsonrpc":"2.0","result":{"success":true},"id":7}`, string(got))
	assert.Equal(t, 5*time.Second, f.settings.Period())

	got = f.dispatcher.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"set_attributes","params":{"unknown_field":1},"id":2}`))
	assert.Equal(t, `{"jsonrpc":"2.0","result":{"success":false},"id":2}`, string(got))

	got = f.dispatcher.Dispatch(context.Background(), []byte(`not-json`))
	assert.Equal(t, `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`, string(got))

	f.vehicle.AssertExpectations(t)
}

func TestRegistryNames(t *testing.T) {
	registry, err := New(new(MockVehicle), nil, nil, testLogger).Registry()
	require.NoError(t, err)
	assert.Contains(t, registry.Names(), "get_attributes")
	assert.Contains(t, registry.Names(), "set_telemetry_attributes")
	assert.Contains(t, registry.Names(), "shell")
}

func TestGetAttributes(t *testing.T) {
	f := newFixture(t)
	for _, attr := range vehicle.Attributes() {
		f.vehicle.On("Read", attr).Return(attr.String(), nil)
	}

	var resp struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.call("get_attributes", "null")), &resp))
	assert.Len(t, resp.Result, len(vehicle.Attributes()))
	assert.Equal(t, "ekf_ok", resp.Result["ekf_ok"])
}

func TestGetAttributesVehicleFailure(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("Read", mock.Anything).Return(nil, errors.New("link lost"))

	assert.Equal(t, internal, f.call("get_attributes", "{}"))
}

func TestSetAttributes(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("SetArmed", true).Return(nil).Once()
	f.vehicle.On("SetMode", "GUIDED").Return(nil).Once()
	f.vehicle.On("SetAirspeed", 12.5).Return(nil).Once()
	f.vehicle.On("SetGroundspeed", 7.0).Return(nil).Once()

	got := f.call("set_attributes", `{"armed":true,"mode":"GUIDED","airspeed":12.5,"groundspeed":7}`)
	assert.Equal(t, success, got)
	f.vehicle.AssertExpectations(t)
}

func TestSetAttributesWriteOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		mock.InOrder(
			f.vehicle.On("SetMode", "GUIDED").Return(nil).Once(),
			f.vehicle.On("SetArmed", true).Return(nil).Once(),
			f.vehicle.On("SetGroundspeed", 7.0).Return(nil).Once(),
			f.vehicle.On("SetAirspeed", 12.5).Return(nil).Once(),
		)

		got := f.call("set_attributes", `{"airspeed":12.5,"armed":true,"groundspeed":7,"mode":"GUIDED"}`)
		require.Equal(t, success, got)
		f.vehicle.AssertExpectations(t)
	}
}

func TestSetAttributesStopsAtFirstVehicleError(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("SetMode", "GUIDED").Return(errors.New("mode rejected")).Once()

	assert.Equal(t, internal, f.call("set_attributes", `{"armed":true,"mode":"GUIDED"}`))
	f.vehicle.AssertNotCalled(t, "SetArmed", mock.Anything)
}

func TestSetAttributesFailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		params string
	}{
		{"unknown key", `{"unknown_field":1}`},
		{"read only attribute", `{"armed":true,"battery":50}`},
		{"location not writable", `{"mode":"GUIDED","location":{}}`},
		{"armed wrong type", `{"armed":"yes"}`},
		{"mode wrong type", `{"mode":3}`},
		{"empty mode", `{"mode":""}`},
		{"negative speed", `{"groundspeed":-1}`},
		{"not an object", `["armed"]`},
		{"null params", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, failure, f.call("set_attributes", tt.params))
			f.vehicle.AssertNotCalled(t, "SetArmed", mock.Anything)
			f.vehicle.AssertNotCalled(t, "SetMode", mock.Anything)
			f.vehicle.AssertNotCalled(t, "SetGroundspeed", mock.Anything)
		})
	}
}

func TestSetTelemetryPeriod(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
		period time.Duration
	}{
		{"integer seconds", `{"period":5}`, success, 5 * time.Second},
		{"fractional seconds", `{"period":0.5}`, success, 500 * time.Millisecond},
		{"zero", `{"period":0}`, failure, time.Second},
		{"negative", `{"period":-3}`, failure, time.Second},
		{"missing", `{}`, failure, time.Second},
		{"null", `{"period":null}`, failure, time.Second},
		{"string", `{"period":"5"}`, failure, time.Second},
		{"not an object", `[5]`, failure, time.Second},
		{"below the floor", `{"period":1e-9}`, failure, time.Second},
		{"would overflow", `{"period":1e10}`, failure, time.Second},
		{"shortest", `{"period":0.01}`, success, 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, tt.want, f.call("set_telemetry_period", tt.params))
			assert.Equal(t, tt.period, f.settings.Period())
		})
	}
}

func TestSetTelemetryAttributes(t *testing.T) {
	prior := []vehicle.Attribute{vehicle.Mode, vehicle.Armed}

	tests := []struct {
		name   string
		params string
		want   string
		attrs  []vehicle.Attribute
	}{
		{"bare list", `["attitude","location"]`, success, []vehicle.Attribute{vehicle.Attitude, vehicle.Location}},
		{"wrapped list", `{"attributes":["battery"]}`, success, []vehicle.Attribute{vehicle.Battery}},
		{"empty list", `[]`, success, []vehicle.Attribute{}},
		{"outside telemetry vocabulary", `["attitude","gps"]`, failure, prior},
		{"unknown name", `["attitude","altitude"]`, failure, prior},
		{"not a sequence", `"attitude"`, failure, prior},
		{"object without list", `{"attitude":true}`, failure, prior},
		{"mixed types", `["attitude",1]`, failure, prior},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, tt.want, f.call("set_telemetry_attributes", tt.params))
			assert.Equal(t, tt.attrs, f.settings.Attributes())
		})
	}
}

func TestSetTelemetryAttributesIdempotent(t *testing.T) {
	f := newFixture(t)
	params := `["velocity","groundspeed","armed"]`

	require.Equal(t, success, f.call("set_telemetry_attributes", params))
	first := f.settings.Attributes()
	require.Equal(t, success, f.call("set_telemetry_attributes", params))
	assert.Equal(t, first, f.settings.Attributes())
}

func TestGetTelemetry(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, `{"jsonrpc":"2.0","result":{"period":1,"attributes":["mode","armed"]},"id":1}`, f.call("get_telemetry", "null"))
}

func TestArmAndTakeoff(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("SetMode", "GUIDED").Return(nil)
	f.vehicle.On("SetArmed", true).Return(nil)
	f.vehicle.On("Takeoff", 20.0).Return(nil)

	assert.Equal(t, success, f.call("arm_and_takeoff", `{"alt":20}`))
	f.vehicle.AssertExpectations(t)

	assert.Equal(t, failure, f.call("arm_and_takeoff", `{"alt":0}`))
	assert.Equal(t, failure, f.call("arm_and_takeoff", `{}`))
}

func TestGoto(t *testing.T) {
	f := newFixture(t)
	relative := common.Location{Lat: 1, Lon: 2, Alt: 30, Frame: common.FrameGlobalRelative}
	absolute := common.Location{Lat: 1, Lon: 2, Alt: 130, Frame: common.FrameGlobal}
	f.vehicle.On("Goto", relative, 0.0).Return(nil)
	f.vehicle.On("Goto", absolute, 8.0).Return(nil)

	assert.Equal(t, success, f.call("goto", `{"lat":1,"lon":2,"alt":30}`))
	assert.Equal(t, success, f.call("goto", `{"lat":1,"lon":2,"alt":130,"relative":false,"groundspeed":8}`))
	f.vehicle.AssertExpectations(t)
}

func TestGotoRequiresEveryCoordinate(t *testing.T) {
	f := newFixture(t)

	for _, params := range []string{
		`{"lon":2,"alt":30}`,
		`{"lat":1,"alt":30}`,
		`{"lat":1,"lon":2}`,
		`{"lat":"1","lon":2,"alt":30}`,
		`{"lat":1,"lon":2,"alt":30,"relative":"yes"}`,
	} {
		assert.Equal(t, failure, f.call("goto", params), params)
	}
	f.vehicle.AssertNotCalled(t, "Goto", mock.Anything, mock.Anything)
}

func TestGotoNotArmed(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("Goto", mock.Anything, mock.Anything).Return(vehicle.ErrNotArmed)

	assert.Equal(t, failure, f.call("goto", `{"lat":1,"lon":2,"alt":30}`))
}

func TestGotoRelative(t *testing.T) {
	f := newFixture(t)
	here := common.Location{Lat: 0, Lon: 0, Alt: 10, Frame: common.FrameGlobalRelative}
	f.vehicle.On("CurrentLocation", common.FrameGlobalRelative).Return(here, nil)
	f.vehicle.On("Goto", mock.MatchedBy(func(target common.Location) bool {
		return target.Frame == common.FrameGlobalRelative && target.Lat > 0 && target.Lon == 0 && target.Alt == 10
	}), 0.0).Return(nil).Once()
	f.vehicle.On("Goto", mock.MatchedBy(func(target common.Location) bool {
		return target.Lat == 0 && target.Lon > 0 && target.Alt == 25
	}), 0.0).Return(nil).Once()

	assert.Equal(t, success, f.call("goto_relative", `{"dNorth":100,"dEast":0}`))
	assert.Equal(t, success, f.call("goto_relative", `{"dNorth":0,"dEast":100,"alt":25}`))
	assert.Equal(t, failure, f.call("goto_relative", `{"dNorth":100}`))
	f.vehicle.AssertExpectations(t)
}

func TestSetVelocity(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("SetVelocity", 1.0, -2.0, 0.5).Return(nil)

	assert.Equal(t, success, f.call("set_velocity", `{"velocity_x":1,"velocity_y":-2,"velocity_z":0.5}`))
	assert.Equal(t, failure, f.call("set_velocity", `{"velocity_x":1,"velocity_y":-2}`))
	f.vehicle.AssertNumberOfCalls(t, "SetVelocity", 1)
}

func TestConditionYawAndROI(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("ConditionYaw", 90.0, false).Return(nil)
	f.vehicle.On("ConditionYaw", 15.0, true).Return(nil)
	f.vehicle.On("SetROI", common.Location{Lat: 1, Lon: 2, Alt: 3, Frame: common.FrameGlobalRelative}).Return(nil)

	assert.Equal(t, success, f.call("condition_yaw", `{"heading":90}`))
	assert.Equal(t, success, f.call("condition_yaw", `{"heading":15,"relative":true}`))
	assert.Equal(t, success, f.call("set_roi", `{"lat":1,"lon":2,"alt":3}`))
	assert.Equal(t, failure, f.call("set_roi", `{"lat":1,"lon":2}`))
	f.vehicle.AssertExpectations(t)
}

func TestMission(t *testing.T) {
	f := newFixture(t)
	item := common.MissionItem{
		Command:  "WAYPOINT",
		Location: common.Location{Lat: 1, Lon: 2, Alt: 3, Frame: common.FrameGlobalRelative},
	}
	f.vehicle.On("ClearMission").Return(nil)
	f.vehicle.On("AddMissionItem", item).Return(nil)
	f.vehicle.On("UploadMission").Return(nil)
	f.vehicle.On("StartMission").Return(vehicle.ErrEmptyMission).Once()
	f.vehicle.On("StartMission").Return(nil)

	assert.Equal(t, success, f.call("clear_mission", "null"))
	assert.Equal(t, success, f.call("add_mission_item", `{"lat":1,"lon":2,"alt":3}`))
	assert.Equal(t, failure, f.call("add_mission_item", `{"lat":1,"lon":2,"alt":3,"command":""}`))
	assert.Equal(t, success, f.call("upload_mission", "null"))
	assert.Equal(t, failure, f.call("start_mission", "null"))
	assert.Equal(t, success, f.call("start_mission", "null"))
	f.vehicle.AssertExpectations(t)
}

func TestDistanceTo(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("CurrentLocation", common.FrameGlobalRelative).Return(common.Location{Frame: common.FrameGlobalRelative}, nil)

	var resp struct {
		Result distanceResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.call("distance_to", `{"lat":0,"lon":1}`)), &resp))
	assert.InDelta(t, 111319.5, resp.Result.Distance, 0.01)
	assert.InDelta(t, 90, resp.Result.Bearing, 1e-9)

	assert.Equal(t, failure, f.call("distance_to", `{"lat":0}`))
}

func TestSendRawMessage(t *testing.T) {
	f := newFixture(t)
	f.vehicle.On("SendRaw", []byte{0xFE, 0x09}).Return(nil).Once()
	f.vehicle.On("SendRaw", []byte{0x01}).Return(vehicle.ErrNoRawTransport).Once()
	f.vehicle.On("SendRaw", []byte{0x02}).Return(errors.New("device gone")).Once()

	assert.Equal(t, success, f.call("send_raw_message", `{"message":"FE 09"}`))
	assert.Equal(t, failure, f.call("send_raw_message", `{"message":"01"}`))
	assert.Equal(t, internal, f.call("send_raw_message", `{"message":"02"}`))
	assert.Equal(t, failure, f.call("send_raw_message", `{"message":"zz"}`))
	assert.Equal(t, failure, f.call("send_raw_message", `{}`))
	f.vehicle.AssertExpectations(t)
}

func TestShell(t *testing.T) {
	f := newFixture(t)
	f.runner.On("Run", "/bin/cat /etc/hosts").Return("127.0.0.1 localhost\n", nil)

	assert.Equal(t, `{"jsonrpc":"2.0","result":"127.0.0.1 localhost\n","id":1}`, f.call("shell", `["/bin/cat /etc/hosts"]`))
	assert.Equal(t, failure, f.call("shell", `[""]`))
	assert.Equal(t, failure, f.call("shell", `[]`))
	assert.Equal(t, failure, f.call("shell", `{"cmd":"ls"}`))
	f.runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestShellDisabled(t *testing.T) {
	settings, err := telemetry.NewSettings(time.Second, nil)
	require.NoError(t, err)
	registry, err := New(new(MockVehicle), settings, nil, testLogger).Registry()
	require.NoError(t, err)
	dispatcher := rpc.NewDispatcher(registry, testLogger)

	got := dispatcher.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"shell","params":["ls"],"id":1}`))
	assert.Equal(t, failure, string(got))
}

func TestAgainstSimulatedVehicle(t *testing.T) {
	sim := vehicle.NewSim(common.Location{Lat: -35.363261, Lon: 149.165230, Alt: 584}, nil, testLogger)
	settings, err := telemetry.NewSettings(time.Second, telemetry.Vocabulary)
	require.NoError(t, err)
	registry, err := New(sim, settings, nil, testLogger).Registry()
	require.NoError(t, err)
	dispatcher := rpc.NewDispatcher(registry, testLogger)

	call := func(method, params string) string {
		raw := `{"jsonrpc":"2.0","method":"` + method + `","params":` + params + `,"id":1}`
		return string(dispatcher.Dispatch(context.Background(), []byte(raw)))
	}

	assert.Equal(t, failure, call("goto_relative", `{"dNorth":10,"dEast":0}`))
	assert.Equal(t, success, call("arm_and_takeoff", `{"alt":10}`))
	for i := 0; i < 50; i++ {
		sim.Step(0.1)
	}
	assert.Equal(t, success, call("goto_relative", `{"dNorth":10,"dEast":0}`))
	assert.Equal(t, failure, call("send_raw_message", `{"message":"FE"}`))

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(call("get_attributes", "null")), &resp))
	assert.JSONEq(t, `true`, string(resp.Result["armed"]))
	assert.JSONEq(t, `"GUIDED"`, string(resp.Result["mode"]))
}
