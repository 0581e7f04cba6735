package vehicle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"vehicle-agent/common"
	"vehicle-agent/geo"
)

const (
	climbRate     = 2.5 // m/s
	stepInterval  = 100 * time.Millisecond
	arrivalRadius = 1.0 // m
)

var (
	ErrNotArmed       = errors.New("vehicle not armed")
	ErrEmptyMission   = errors.New("mission is empty")
	ErrNoRawTransport = errors.New("no raw message transport")
)

// RawSender carries raw autopilot messages, typically the serial link
type RawSender interface {
	Write(frame []byte) error
}

// Sim is an in-process vehicle. It keeps the full attribute vocabulary and
// flies toward goto targets on its own step loop.
type Sim struct {
	mu     sync.Mutex
	raw    RawSender
	logger *slog.Logger
	now    func() time.Time

	home        common.Location // FrameGlobal
	lat, lon    float64
	alt         float64 // relative to home
	vx, vy, vz  float64 // NED m/s
	heading     float64
	armed       bool
	mode        string
	groundspeed float64
	airspeed    float64
	battery     float64
	heartbeat   time.Time
	target      *common.Location // FrameGlobalRelative
	targetAlt   *float64
	roi         *common.Location

	mission        []common.MissionItem
	missionLoaded  []common.MissionItem
	missionCurrent int
}

// NewSim returns a disarmed vehicle sitting at home. raw may be nil.
func NewSim(home common.Location, raw RawSender, logger *slog.Logger) *Sim {
	home.Frame = common.FrameGlobal
	return &Sim{
		raw:         raw,
		logger:      logger,
		now:         time.Now,
		home:        home,
		lat:         home.Lat,
		lon:         home.Lon,
		mode:        "STABILIZE",
		groundspeed: 5,
		battery:     100,
		heartbeat:   time.Now(),
	}
}

// Run advances the simulation until ctx is done
func (s *Sim) Run(ctx context.Context) {
	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	s.logger.Info("Vehicle simulation started", "home_lat", s.home.Lat, "home_lon", s.home.Lon)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Vehicle simulation stopped")
			return
		case <-ticker.C:
			s.Step(stepInterval.Seconds())
		}
	}
}

// Step advances the simulation by dt seconds
func (s *Sim) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.heartbeat = s.now()
	if !s.armed {
		s.vx, s.vy, s.vz = 0, 0, 0
		return
	}
	s.battery = math.Max(0, s.battery-0.01*dt)

	switch s.mode {
	case "LAND":
		s.target, s.targetAlt = nil, nil
		s.vx, s.vy, s.vz = 0, 0, climbRate
	case "RTL":
		s.target = &common.Location{Lat: s.home.Lat, Lon: s.home.Lon, Alt: s.alt, Frame: common.FrameGlobalRelative}
	case "AUTO":
		s.advanceMission()
	}

	if s.target != nil {
		s.flyToward(*s.target, dt)
	} else {
		s.move(s.vx*dt, s.vy*dt)
	}

	switch {
	case s.targetAlt != nil:
		diff := *s.targetAlt - s.alt
		step := math.Min(math.Abs(diff), climbRate*dt)
		s.alt += math.Copysign(step, diff)
		if math.Abs(*s.targetAlt-s.alt) < 0.05 {
			s.targetAlt = nil
		}
	case s.target == nil:
		s.alt -= s.vz * dt
	}

	if s.alt <= 0 {
		s.alt = 0
		if s.mode == "LAND" {
			s.armed = false
			s.logger.Info("Vehicle landed and disarmed")
		}
	}
}

func (s *Sim) flyToward(target common.Location, dt float64) {
	here := common.Location{Lat: s.lat, Lon: s.lon}
	distance := geo.Distance(here, target)
	if distance < arrivalRadius {
		s.lat, s.lon = target.Lat, target.Lon
		s.vx, s.vy = 0, 0
		switch s.mode {
		case "AUTO":
		case "RTL":
			s.target = nil
			s.mode = "LAND"
		default:
			s.target = nil
		}
		return
	}

	bearing := geo.Bearing(here, target) * math.Pi / 180
	travel := math.Min(distance, s.groundspeed*dt)
	s.vx = math.Cos(bearing) * s.groundspeed
	s.vy = math.Sin(bearing) * s.groundspeed
	s.heading = bearing * 180 / math.Pi
	s.move(math.Cos(bearing)*travel, math.Sin(bearing)*travel)

	alt := target.Alt
	s.targetAlt = &alt
}

func (s *Sim) move(north, east float64) {
	if north == 0 && east == 0 {
		return
	}
	next, err := geo.OffsetMeters(common.Location{Lat: s.lat, Lon: s.lon, Frame: common.FrameGlobal}, north, east)
	if err != nil {
		return
	}
	s.lat, s.lon = next.Lat, next.Lon
}

func (s *Sim) advanceMission() {
	if s.missionCurrent >= len(s.missionLoaded) {
		s.target = nil
		s.mode = "LOITER"
		s.logger.Info("Mission complete")
		return
	}
	item := s.missionLoaded[s.missionCurrent]
	if geo.Distance(common.Location{Lat: s.lat, Lon: s.lon}, item.Location) < arrivalRadius && math.Abs(s.alt-item.Location.Alt) < 0.5 {
		s.missionCurrent++
		s.logger.Info("Reached mission item", "index", s.missionCurrent)
		return
	}
	target := item.Location
	s.target = &target
}

// Read implements Vehicle
func (s *Sim) Read(attr Attribute) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch attr {
	case Attitude:
		return AttitudeValue{Yaw: s.heading * math.Pi / 180}, nil
	case Location:
		return s.locationLocked(), nil
	case Velocity:
		return []float64{s.vx, s.vy, s.vz}, nil
	case GPS:
		return GPSValue{FixType: 3, Satellites: 10, EPH: 121, EPV: 65535}, nil
	case Battery:
		return BatteryValue{Voltage: 12.6 * (0.8 + 0.2*s.battery/100), Current: 0, Level: int(s.battery)}, nil
	case Mode:
		return s.mode, nil
	case Armed:
		return s.armed, nil
	case Groundspeed:
		return math.Hypot(s.vx, s.vy), nil
	case Airspeed:
		return s.airspeed, nil
	case State:
		if s.armed {
			return "ACTIVE", nil
		}
		return "STANDBY", nil
	case Heading:
		return int(s.heading), nil
	case EKFOk:
		return true, nil
	case LastHeartbeat:
		return s.now().Sub(s.heartbeat).Seconds(), nil
	case Rangefinder:
		return RangefinderValue{Distance: s.alt}, nil
	case Gimbal:
		return s.gimbalLocked(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownAttribute, int(attr))
}

func (s *Sim) locationLocked() LocationValue {
	north := (s.lat - s.home.Lat) * math.Pi / 180 * geo.EarthRadius
	east := (s.lon - s.home.Lon) * math.Pi / 180 * geo.EarthRadius * math.Cos(s.home.Lat*math.Pi/180)
	return LocationValue{
		Global:         common.Location{Lat: s.lat, Lon: s.lon, Alt: s.home.Alt + s.alt, Frame: common.FrameGlobal},
		GlobalRelative: common.Location{Lat: s.lat, Lon: s.lon, Alt: s.alt, Frame: common.FrameGlobalRelative},
		Local:          common.Location{Lat: north, Lon: east, Alt: -s.alt, Frame: common.FrameLocalNED},
	}
}

func (s *Sim) gimbalLocked() GimbalValue {
	if s.roi == nil {
		return GimbalValue{}
	}
	here := common.Location{Lat: s.lat, Lon: s.lon}
	horizontal := math.Max(geo.Distance(here, *s.roi), 0.01)
	return GimbalValue{
		Pitch: math.Atan2(s.roi.Alt-s.alt, horizontal) * 180 / math.Pi,
		Yaw:   geo.Bearing(here, *s.roi),
	}
}

// CurrentLocation implements Vehicle
func (s *Sim) CurrentLocation(frame common.Frame) (common.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.locationLocked()
	switch frame {
	case common.FrameGlobal:
		return loc.Global, nil
	case common.FrameGlobalRelative:
		return loc.GlobalRelative, nil
	case common.FrameLocalNED:
		return loc.Local, nil
	}
	return common.Location{}, fmt.Errorf("location in %v: %w", frame, geo.ErrUnknownFrame)
}

func (s *Sim) SetArmed(armed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = armed
	s.logger.Info("Armed state changed", "armed", armed)
	return nil
}

func (s *Sim) SetMode(mode string) error {
	if mode == "" {
		return errors.New("empty mode")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == "AUTO" {
		s.missionCurrent = 0
	}
	s.mode = mode
	s.logger.Info("Mode changed", "mode", mode)
	return nil
}

func (s *Sim) SetAirspeed(speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airspeed = speed
	return nil
}

func (s *Sim) SetGroundspeed(speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groundspeed = speed
	return nil
}

func (s *Sim) Takeoff(alt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return ErrNotArmed
	}
	s.targetAlt = &alt
	s.logger.Info("Taking off", "alt", alt)
	return nil
}

// Goto flies to target. Absolute targets are converted to relative altitude
// using the home altitude.
func (s *Sim) Goto(target common.Location, groundspeed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return ErrNotArmed
	}

	switch target.Frame {
	case common.FrameGlobalRelative:
	case common.FrameGlobal:
		target.Alt -= s.home.Alt
		target.Frame = common.FrameGlobalRelative
	default:
		return fmt.Errorf("goto in %v: %w", target.Frame, geo.ErrUnknownFrame)
	}

	if groundspeed > 0 {
		s.groundspeed = groundspeed
	}
	s.target = &target
	s.vx, s.vy, s.vz = 0, 0, 0
	s.logger.Info("Goto", "lat", target.Lat, "lon", target.Lon, "alt", target.Alt)
	return nil
}

func (s *Sim) SetVelocity(vx, vy, vz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return ErrNotArmed
	}
	s.target, s.targetAlt = nil, nil
	s.vx, s.vy, s.vz = vx, vy, vz
	return nil
}

func (s *Sim) ConditionYaw(heading float64, relative bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if relative {
		heading += s.heading
	}
	s.heading = math.Mod(math.Mod(heading, 360)+360, 360)
	return nil
}

func (s *Sim) SetROI(target common.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roi = &target
	return nil
}

func (s *Sim) ClearMission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mission = nil
	return nil
}

func (s *Sim) AddMissionItem(item common.MissionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mission = append(s.mission, item)
	return nil
}

func (s *Sim) UploadMission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missionLoaded = append([]common.MissionItem(nil), s.mission...)
	s.missionCurrent = 0
	s.logger.Info("Mission uploaded", "items", len(s.missionLoaded))
	return nil
}

func (s *Sim) StartMission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return ErrNotArmed
	}
	if len(s.missionLoaded) == 0 {
		return ErrEmptyMission
	}
	s.missionCurrent = 0
	s.mode = "AUTO"
	return nil
}

// SendRaw forwards msg to the raw transport
func (s *Sim) SendRaw(msg []byte) error {
	if s.raw == nil {
		return ErrNoRawTransport
	}
	return s.raw.Write(msg)
}
