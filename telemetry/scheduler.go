// Package telemetry periodically pushes a configurable projection of
// vehicle state to the messaging channel.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"vehicle-agent/vehicle"
)

// MessageType tags telemetry pushes on the wire
const MessageType = 1

// Publisher is the outbound side of the messaging channel
type Publisher interface {
	Send(payload []byte) error
}

// SnapshotSource produces full vehicle snapshots
type SnapshotSource interface {
	FullSnapshot() (vehicle.Snapshot, error)
}

// Scheduler runs the telemetry cycle
type Scheduler struct {
	settings  *Settings
	source    SnapshotSource
	publisher Publisher
	deviceID  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler; call Run to start it
func NewScheduler(settings *Settings, source SnapshotSource, publisher Publisher, deviceID string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		settings:  settings,
		source:    source,
		publisher: publisher,
		deviceID:  deviceID,
		logger:    logger,
		now:       time.Now,
	}
}

// Run waits one period, pushes, and repeats until ctx is done. The period
// is re-read at the top of every cycle, so a change never interrupts the
// wait already in progress: the pending cycle fires on the old period and
// the new one applies from the cycle after it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting telemetry loop", "period", s.settings.Period())

	for {
		timer := time.NewTimer(s.settings.Period())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Telemetry loop stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.Tick(); err != nil {
			s.logger.Warn("Telemetry cycle failed", "error", err)
		}
	}
}

// Tick runs one telemetry cycle
func (s *Scheduler) Tick() error {
	payload, err := s.Payload()
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	if err := s.publisher.Send(data); err != nil {
		return fmt.Errorf("failed to publish telemetry: %w", err)
	}

	s.logger.Debug("Published telemetry", "bytes", len(data))
	return nil
}

// Payload builds the filtered snapshot plus the id/time/type envelope
func (s *Scheduler) Payload() (map[string]any, error) {
	attributes := s.settings.Attributes()

	snapshot, err := s.source.FullSnapshot()
	if err != nil {
		return nil, err
	}
	filtered, err := vehicle.Filtered(snapshot, attributes)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(filtered)+3)
	for attr, value := range filtered {
		payload[attr.String()] = value
	}
	payload["id"] = s.deviceID
	payload["time"] = s.now().Unix()
	payload["type"] = MessageType
	return payload, nil
}
